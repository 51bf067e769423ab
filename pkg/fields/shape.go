package fields

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"

	"github.com/folioreads/folio/pkg/database"
)

// ShapeKind is the closed set of physical storage layouts a field can
// have.
type ShapeKind int

const (
	// ShapeScalarInline stores the value directly against the record, on
	// the record row for built-ins or in a per-column value table for
	// custom fields.
	ShapeScalarInline ShapeKind = iota
	// ShapeManyToOne stores a foreign key into a shared dictionary table;
	// many records may point at one entry.
	ShapeManyToOne
	// ShapeManyToMany links records to zero or more dictionary entries
	// through a link table.
	ShapeManyToMany
	// ShapeComposite is computed from other fields and never stored.
	ShapeComposite
)

// Shape binds a ShapeKind to the concrete tables and columns it operates
// on. All reads and writes for a field dispatch through here, so built-in
// and custom fields share one storage path.
type Shape struct {
	Kind ShapeKind

	// ValueTable holds values: the dictionary for normalized fields, the
	// per-record value table otherwise. For built-in inline scalars it is
	// the records table itself.
	ValueTable  string
	ValueColumn string

	// LinkTable and LinkColumn name the association for normalized
	// shapes; LinkColumn is the foreign key into ValueTable.
	LinkTable  string
	LinkColumn string

	// OrderColumn orders multi-valued reads when position matters.
	OrderColumn string

	// OnRecordRow marks built-in scalars stored as columns of the records
	// table.
	OnRecordRow bool

	// WithIndex marks series-shaped fields whose link rows carry a float
	// index alongside the dictionary reference.
	WithIndex bool
}

// SeriesValue pairs a series name with a record's position in it.
type SeriesValue struct {
	Name  string  `json:"name"`
	Index float64 `json:"index"`
}

// Shape maps a definition to its physical layout.
func (d *Definition) Shape() Shape {
	switch {
	case d.Datatype == DatatypeComposite:
		return Shape{Kind: ShapeComposite}
	case d.BuiltIn:
		return builtinShape(d.Label)
	case !d.Normalized:
		return Shape{
			Kind:        ShapeScalarInline,
			ValueTable:  d.valueTable(),
			ValueColumn: "value",
		}
	case d.IsMultiple:
		return Shape{
			Kind:        ShapeManyToMany,
			ValueTable:  d.valueTable(),
			ValueColumn: "value",
			LinkTable:   d.linkTable(),
			LinkColumn:  "value",
			OrderColumn: "id",
		}
	default:
		return Shape{
			Kind:        ShapeManyToOne,
			ValueTable:  d.valueTable(),
			ValueColumn: "value",
			LinkTable:   d.linkTable(),
			LinkColumn:  "value",
			WithIndex:   d.Datatype == DatatypeSeries,
		}
	}
}

func builtinShape(label string) Shape {
	switch label {
	case FieldAuthors:
		return Shape{
			Kind: ShapeManyToMany, ValueTable: "authors", ValueColumn: "name",
			LinkTable: "records_authors_link", LinkColumn: "author", OrderColumn: "position",
		}
	case FieldTags:
		return Shape{
			Kind: ShapeManyToMany, ValueTable: "tags", ValueColumn: "name",
			LinkTable: "records_tags_link", LinkColumn: "tag", OrderColumn: "id",
		}
	case FieldLanguages:
		return Shape{
			Kind: ShapeManyToMany, ValueTable: "languages", ValueColumn: "lang_code",
			LinkTable: "records_languages_link", LinkColumn: "lang_code", OrderColumn: "item_order",
		}
	case FieldPublisher:
		return Shape{
			Kind: ShapeManyToOne, ValueTable: "publishers", ValueColumn: "name",
			LinkTable: "records_publishers_link", LinkColumn: "publisher",
		}
	case FieldSeries:
		return Shape{
			Kind: ShapeManyToOne, ValueTable: "series", ValueColumn: "name",
			LinkTable: "records_series_link", LinkColumn: "series",
		}
	case FieldRating:
		return Shape{
			Kind: ShapeManyToOne, ValueTable: "ratings", ValueColumn: "rating",
			LinkTable: "records_ratings_link", LinkColumn: "rating",
		}
	case FieldComments:
		return Shape{
			Kind: ShapeScalarInline, ValueTable: "comments", ValueColumn: "text",
		}
	default:
		return Shape{
			Kind: ShapeScalarInline, ValueTable: "records", ValueColumn: label,
			OnRecordRow: true,
		}
	}
}

// ForRecord reads the field's value for one record. Multi-valued shapes
// return []string, series shapes return *SeriesValue, scalars return the
// stored value or nil.
func (s Shape) ForRecord(ctx context.Context, db bun.IDB, recordID int64) (any, error) {
	switch s.Kind {
	case ShapeComposite:
		return nil, nil
	case ShapeScalarInline:
		if s.OnRecordRow {
			var val any
			err := db.NewRaw("SELECT ? FROM records WHERE id = ?", bun.Ident(s.ValueColumn), recordID).
				Scan(ctx, &val)
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return val, errors.WithStack(err)
		}
		var val any
		err := db.NewRaw("SELECT ? FROM ? WHERE record = ?", bun.Ident(s.ValueColumn), bun.Ident(s.ValueTable), recordID).
			Scan(ctx, &val)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return val, errors.WithStack(err)
	case ShapeManyToOne:
		if s.WithIndex {
			var sv SeriesValue
			err := db.NewRaw(
				"SELECT v.?, COALESCE(l.extra, 1.0) FROM ? l JOIN ? v ON v.id = l.? WHERE l.record = ?",
				bun.Ident(s.ValueColumn), bun.Ident(s.LinkTable), bun.Ident(s.ValueTable), bun.Ident(s.LinkColumn), recordID,
			).Scan(ctx, &sv.Name, &sv.Index)
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			if err != nil {
				return nil, errors.WithStack(err)
			}
			return &sv, nil
		}
		var val any
		err := db.NewRaw(
			"SELECT v.? FROM ? l JOIN ? v ON v.id = l.? WHERE l.record = ?",
			bun.Ident(s.ValueColumn), bun.Ident(s.LinkTable), bun.Ident(s.ValueTable), bun.Ident(s.LinkColumn), recordID,
		).Scan(ctx, &val)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return val, errors.WithStack(err)
	case ShapeManyToMany:
		var vals []string
		err := db.NewRaw(
			"SELECT v.? FROM ? l JOIN ? v ON v.id = l.? WHERE l.record = ? ORDER BY l.?",
			bun.Ident(s.ValueColumn), bun.Ident(s.LinkTable), bun.Ident(s.ValueTable), bun.Ident(s.LinkColumn), recordID, bun.Ident(s.OrderColumn),
		).Scan(ctx, &vals)
		return vals, errors.WithStack(err)
	default:
		return nil, errors.Errorf("unknown shape kind %d", s.Kind)
	}
}

// Write replaces the field's value for one record. Callers run it inside a
// transaction together with any sibling writes so partial updates never
// become visible.
func (s Shape) Write(ctx context.Context, db bun.IDB, recordID int64, value any) error {
	switch s.Kind {
	case ShapeComposite:
		return errors.WithStack(errNotSettable)
	case ShapeScalarInline:
		return s.writeScalar(ctx, db, recordID, value)
	case ShapeManyToOne:
		return s.writeManyToOne(ctx, db, recordID, value)
	case ShapeManyToMany:
		return s.writeManyToMany(ctx, db, recordID, value)
	default:
		return errors.Errorf("unknown shape kind %d", s.Kind)
	}
}

func (s Shape) writeScalar(ctx context.Context, db bun.IDB, recordID int64, value any) error {
	if s.OnRecordRow {
		_, err := db.NewRaw("UPDATE records SET ? = ? WHERE id = ?", bun.Ident(s.ValueColumn), value, recordID).
			Exec(ctx)
		return database.MapError(err, "set_field")
	}

	_, err := db.NewRaw("DELETE FROM ? WHERE record = ?", bun.Ident(s.ValueTable), recordID).Exec(ctx)
	if err != nil {
		return database.MapError(err, "set_field")
	}
	if value == nil {
		return nil
	}
	_, err = db.NewRaw(
		"INSERT INTO ? (record, ?) VALUES (?, ?)",
		bun.Ident(s.ValueTable), bun.Ident(s.ValueColumn), recordID, value,
	).Exec(ctx)
	return database.MapError(err, "set_field")
}

func (s Shape) writeManyToOne(ctx context.Context, db bun.IDB, recordID int64, value any) error {
	_, err := db.NewRaw("DELETE FROM ? WHERE record = ?", bun.Ident(s.LinkTable), recordID).Exec(ctx)
	if err != nil {
		return database.MapError(err, "set_field")
	}
	if value == nil {
		return nil
	}

	var dictValue any = value
	index := 1.0
	if sv, ok := value.(*SeriesValue); ok {
		dictValue = sv.Name
		index = sv.Index
	} else if sv, ok := value.(SeriesValue); ok {
		dictValue = sv.Name
		index = sv.Index
	}

	dictID, err := s.findOrCreateEntry(ctx, db, dictValue)
	if err != nil {
		return err
	}

	if s.WithIndex {
		_, err = db.NewRaw(
			"INSERT INTO ? (record, ?, extra) VALUES (?, ?, ?)",
			bun.Ident(s.LinkTable), bun.Ident(s.LinkColumn), recordID, dictID, index,
		).Exec(ctx)
	} else {
		_, err = db.NewRaw(
			"INSERT INTO ? (record, ?) VALUES (?, ?)",
			bun.Ident(s.LinkTable), bun.Ident(s.LinkColumn), recordID, dictID,
		).Exec(ctx)
	}
	return database.MapError(err, "set_field")
}

func (s Shape) writeManyToMany(ctx context.Context, db bun.IDB, recordID int64, value any) error {
	_, err := db.NewRaw("DELETE FROM ? WHERE record = ?", bun.Ident(s.LinkTable), recordID).Exec(ctx)
	if err != nil {
		return database.MapError(err, "set_field")
	}

	var items []string
	switch v := value.(type) {
	case nil:
		return nil
	case []string:
		items = v
	case string:
		items = []string{v}
	default:
		return errors.Errorf("cannot store %T in a multi-valued field", value)
	}

	for pos, item := range items {
		dictID, err := s.findOrCreateEntry(ctx, db, item)
		if err != nil {
			return err
		}
		if s.OrderColumn == "id" {
			_, err = db.NewRaw(
				"INSERT INTO ? (record, ?) VALUES (?, ?)",
				bun.Ident(s.LinkTable), bun.Ident(s.LinkColumn), recordID, dictID,
			).Exec(ctx)
		} else {
			_, err = db.NewRaw(
				"INSERT INTO ? (record, ?, ?) VALUES (?, ?, ?)",
				bun.Ident(s.LinkTable), bun.Ident(s.LinkColumn), bun.Ident(s.OrderColumn), recordID, dictID, pos,
			).Exec(ctx)
		}
		if err != nil {
			return database.MapError(err, "set_field")
		}
	}
	return nil
}

// findOrCreateEntry resolves a dictionary entry case-insensitively,
// creating it when absent.
func (s Shape) findOrCreateEntry(ctx context.Context, db bun.IDB, value any) (int64, error) {
	var id int64
	err := db.NewRaw(
		"SELECT id FROM ? WHERE LOWER(?) = LOWER(?)",
		bun.Ident(s.ValueTable), bun.Ident(s.ValueColumn), value,
	).Scan(ctx, &id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, errors.WithStack(err)
	}

	res, err := db.NewRaw(
		"INSERT INTO ? (?) VALUES (?)",
		bun.Ident(s.ValueTable), bun.Ident(s.ValueColumn), value,
	).Exec(ctx)
	if err != nil {
		return 0, database.MapError(err, "set_field")
	}
	id, err = res.LastInsertId()
	return id, errors.WithStack(err)
}

package fields

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/iancoleman/strcase"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/uptrace/bun"

	"github.com/folioreads/folio/pkg/database"
	"github.com/folioreads/folio/pkg/errcodes"
	"github.com/folioreads/folio/pkg/models"
)

// Registry owns every field definition for an open library: the fixed
// built-ins plus the custom columns persisted in storage. It is rebuilt,
// never patched, whenever the schema changes.
type Registry struct {
	db *bun.DB

	// TristateBools mirrors the library-wide policy for bool adaptation.
	TristateBools bool

	mu         sync.RWMutex
	defs       map[string]*Definition
	projection *Projection
}

func NewRegistry(db *bun.DB) *Registry {
	return &Registry{db: db}
}

// AddColumnOptions declares a new custom column.
type AddColumnOptions struct {
	Label      string
	Name       string
	Datatype   Datatype
	IsMultiple bool
	Editable   bool
	Display    map[string]any
}

// Load builds the in-memory schema from persisted column definitions.
// Columns marked for deletion are physically dropped first; columns whose
// backing tables are missing are swept out of the metadata and reported in
// the returned slice rather than surfacing as live fields.
func (r *Registry) Load(ctx context.Context) (swept []string, err error) {
	if err := r.purgeMarked(ctx); err != nil {
		return nil, err
	}

	var rows []*models.CustomColumn
	if err := r.db.NewSelect().Model(&rows).Scan(ctx); err != nil {
		return nil, errors.WithStack(err)
	}

	defs := builtinDefinitions()
	for _, row := range rows {
		def, err := definitionFromRow(row)
		if err != nil {
			return nil, err
		}
		ok, err := r.tablesExist(ctx, def)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Partial delete or corruption. Drop the metadata row so the
			// library stays usable.
			if _, err := r.db.NewDelete().
				Model((*models.CustomColumn)(nil)).
				Where("id = ?", row.ID).
				Exec(ctx); err != nil {
				return nil, errors.WithStack(err)
			}
			swept = append(swept, row.Label)
			continue
		}
		defs[def.Label] = def
	}

	projection := BuildProjection(defs)

	r.mu.Lock()
	r.defs = defs
	r.projection = projection
	r.mu.Unlock()

	if err := r.installCascadeTrigger(ctx); err != nil {
		return nil, err
	}
	return swept, nil
}

// Definition resolves a field by label.
func (r *Registry) Definition(label string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[label]
	return def, ok
}

// CustomLabels returns the labels of live custom columns in sorted order.
func (r *Registry) CustomLabels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var labels []string
	for label, def := range r.defs {
		if !def.BuiltIn {
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)
	return labels
}

// Projection returns the current immutable slot assignment. Callers must
// re-fetch after any schema mutation.
func (r *Registry) Projection() *Projection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.projection
}

// Adapt coerces raw into the normalized value for the named field, using
// the library's tri-state bool policy.
func (r *Registry) Adapt(label string, raw any) (any, error) {
	def, ok := r.Definition(label)
	if !ok {
		return nil, errcodes.NotFound("field " + label)
	}
	return Adapt(def, raw, r.TristateBools)
}

// AddColumn creates the physical storage for a new custom field and
// registers it. The label must be unique; a duplicate fails with Conflict
// before any DDL runs.
func (r *Registry) AddColumn(ctx context.Context, opts AddColumnOptions) (*Definition, error) {
	if opts.Label == "" {
		// Derive the machine label from the display name.
		opts.Label = strcase.ToSnake(opts.Name)
	}
	if opts.Label == "" {
		return nil, errors.New("column label is required")
	}
	if !ValidDatatype(opts.Datatype) {
		return nil, errors.Errorf("unknown datatype %q", opts.Datatype)
	}
	if _, exists := r.Definition(opts.Label); exists {
		return nil, errcodes.Conflict(opts.Label)
	}

	display := opts.Display
	if display == nil {
		display = map[string]any{}
	}
	rawDisplay, err := json.Marshal(display)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	row := &models.CustomColumn{
		Label:      opts.Label,
		Name:       opts.Name,
		Datatype:   string(opts.Datatype),
		Editable:   opts.Editable,
		Display:    string(rawDisplay),
		IsMultiple: opts.IsMultiple,
		Normalized: normalizedDatatype(opts.Datatype),
	}

	err = r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return database.MapError(err, "add_column")
		}

		def, err := definitionFromRow(row)
		if err != nil {
			return err
		}
		for _, stmt := range createColumnDDL(def) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return database.MapError(err, "add_column")
			}
		}
		return nil
	})
	if err != nil {
		if errcodes.Code(err) == errcodes.CodeConstraint {
			return nil, errcodes.Conflict(opts.Label)
		}
		return nil, err
	}

	if _, err := r.Load(ctx); err != nil {
		return nil, err
	}
	def, _ := r.Definition(opts.Label)
	return def, nil
}

// MarkForDeletion flags a custom column for physical removal on the next
// Load. It is safe and reversible until then.
func (r *Registry) MarkForDeletion(ctx context.Context, label string) error {
	def, ok := r.Definition(label)
	if !ok || def.BuiltIn {
		return errcodes.NotFound("custom column " + label)
	}

	_, err := r.db.NewUpdate().
		Model((*models.CustomColumn)(nil)).
		Set("mark_for_delete = ?", true).
		Where("label = ?", label).
		Exec(ctx)
	return database.MapError(err, "mark_for_deletion")
}

// purgeMarked drops the tables, indexes and metadata of every column
// marked for deletion.
func (r *Registry) purgeMarked(ctx context.Context) error {
	var rows []*models.CustomColumn
	err := r.db.NewSelect().
		Model(&rows).
		Where("mark_for_delete = ?", true).
		Scan(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	for _, row := range rows {
		def, err := definitionFromRow(row)
		if err != nil {
			return err
		}
		err = r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			for _, stmt := range dropColumnDDL(def) {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return database.MapError(err, "purge_column")
				}
			}
			_, err := tx.NewDelete().
				Model((*models.CustomColumn)(nil)).
				Where("id = ?", row.ID).
				Exec(ctx)
			return database.MapError(err, "purge_column")
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// tablesExist verifies the physical tables backing a custom column.
func (r *Registry) tablesExist(ctx context.Context, def *Definition) (bool, error) {
	tables := []string{def.valueTable()}
	if def.Normalized {
		tables = append(tables, def.linkTable())
	}
	if def.Datatype == DatatypeComposite {
		return true, nil
	}
	for _, table := range tables {
		var count int
		err := r.db.NewRaw(
			"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(ctx, &count)
		if err != nil {
			return false, errors.WithStack(err)
		}
		if count == 0 {
			return false, nil
		}
	}
	return true, nil
}

// installCascadeTrigger recreates the TEMP trigger that cascades record
// deletion into every live custom column table. TEMP keeps it in lockstep
// with the in-memory schema; it is rebuilt on every load.
func (r *Registry) installCascadeTrigger(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DROP TRIGGER IF EXISTS temp.records_delete_custom_trg"); err != nil {
		return errors.WithStack(err)
	}

	r.mu.RLock()
	var stmts []string
	for _, def := range r.defs {
		if def.BuiltIn || def.Datatype == DatatypeComposite {
			continue
		}
		if def.Normalized {
			stmts = append(stmts, fmt.Sprintf("DELETE FROM %s WHERE record = OLD.id;", def.linkTable()))
		} else {
			stmts = append(stmts, fmt.Sprintf("DELETE FROM %s WHERE record = OLD.id;", def.valueTable()))
		}
	}
	r.mu.RUnlock()

	stmts = append(stmts, "DELETE FROM record_plugin_data WHERE record = OLD.id;")
	stmts = append(stmts, "DELETE FROM metadata_dirtied WHERE record = OLD.id;")
	sort.Strings(stmts)

	trigger := fmt.Sprintf(
		"CREATE TEMP TRIGGER records_delete_custom_trg AFTER DELETE ON records BEGIN %s END",
		strings.Join(stmts, " "),
	)
	_, err := r.db.ExecContext(ctx, trigger)
	return errors.WithStack(err)
}

func definitionFromRow(row *models.CustomColumn) (*Definition, error) {
	var display map[string]any
	if row.Display != "" {
		if err := json.Unmarshal([]byte(row.Display), &display); err != nil {
			return nil, errors.Wrapf(err, "display options for column %q", row.Label)
		}
	}
	dt := Datatype(row.Datatype)
	if !ValidDatatype(dt) {
		return nil, errors.Errorf("column %q has unknown datatype %q", row.Label, row.Datatype)
	}

	def := &Definition{
		ID:         row.ID,
		Label:      row.Label,
		Name:       row.Name,
		Datatype:   dt,
		IsMultiple: row.IsMultiple,
		Normalized: row.Normalized,
		Editable:   row.Editable,
		Display:    display,
		IsCategory: dt == DatatypeText || dt == DatatypeSeries || dt == DatatypeEnumeration,
	}
	if def.IsMultiple {
		def.Separators = DefaultSeparators()
	}
	return def, nil
}

// createColumnDDL emits the tables and indexes behind a new custom column.
func createColumnDDL(def *Definition) []string {
	if def.Datatype == DatatypeComposite {
		return nil
	}

	vt := def.valueTable()
	if !def.Normalized {
		return []string{
			fmt.Sprintf(`CREATE TABLE %s (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				record INTEGER NOT NULL,
				value %s NOT NULL,
				UNIQUE(record)
			)`, vt, sqlType(def.Datatype)),
			fmt.Sprintf("CREATE INDEX ix_%s_record ON %s (record)", vt, vt),
		}
	}

	lt := def.linkTable()
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			value %s NOT NULL COLLATE nocase_cmp,
			UNIQUE(value)
		)`, vt, sqlType(def.Datatype)),
	}
	if def.Datatype == DatatypeSeries {
		stmts = append(stmts, fmt.Sprintf(`CREATE TABLE %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			record INTEGER NOT NULL,
			value INTEGER NOT NULL,
			extra REAL NOT NULL DEFAULT 1.0,
			UNIQUE(record)
		)`, lt))
	} else if def.IsMultiple {
		stmts = append(stmts, fmt.Sprintf(`CREATE TABLE %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			record INTEGER NOT NULL,
			value INTEGER NOT NULL,
			UNIQUE(record, value)
		)`, lt))
	} else {
		stmts = append(stmts, fmt.Sprintf(`CREATE TABLE %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			record INTEGER NOT NULL,
			value INTEGER NOT NULL,
			UNIQUE(record)
		)`, lt))
	}
	stmts = append(stmts,
		fmt.Sprintf("CREATE INDEX ix_%s_record ON %s (record)", lt, lt),
		fmt.Sprintf("CREATE INDEX ix_%s_value ON %s (value)", lt, lt),
	)
	return stmts
}

func dropColumnDDL(def *Definition) []string {
	if def.Datatype == DatatypeComposite {
		return nil
	}
	stmts := []string{fmt.Sprintf("DROP TABLE IF EXISTS %s", def.valueTable())}
	if def.Normalized {
		stmts = append(stmts, fmt.Sprintf("DROP TABLE IF EXISTS %s", def.linkTable()))
	}
	return stmts
}

func sqlType(dt Datatype) string {
	switch dt {
	case DatatypeInt, DatatypeBool, DatatypeRating:
		return "INTEGER"
	case DatatypeFloat:
		return "REAL"
	case DatatypeDatetime:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

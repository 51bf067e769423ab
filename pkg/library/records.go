package library

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"

	"github.com/folioreads/folio/pkg/database"
	"github.com/folioreads/folio/pkg/errcodes"
	"github.com/folioreads/folio/pkg/fields"
	"github.com/folioreads/folio/pkg/models"
	"github.com/folioreads/folio/pkg/pathsync"
)

// readOnlyFields cannot be written through SetField. They are either
// assigned by the engine or derived from other state.
var readOnlyFields = map[string]bool{
	fields.FieldID:           true,
	fields.FieldUUID:         true,
	fields.FieldPath:         true,
	fields.FieldFormats:      true,
	fields.FieldSize:         true,
	fields.FieldCover:        true,
	fields.FieldAuthorMap:    true,
	fields.FieldLastModified: true,
}

// CreateOptions carries the initial metadata for a new record. Authors
// defaults to a single unknown author.
type CreateOptions struct {
	Title   string
	Authors []string
}

// Create inserts a record, links its authors, and creates its directory.
// Insert triggers assign the UUID and title sort.
func (l *Library) Create(ctx context.Context, opts CreateOptions) (*models.Record, error) {
	if opts.Title == "" {
		opts.Title = pathsync.UnknownToken
	}
	if len(opts.Authors) == 0 {
		opts.Authors = []string{pathsync.UnknownToken}
	}

	now := time.Now().UTC()
	record := &models.Record{
		Title:        opts.Title,
		Timestamp:    now,
		PubDate:      now,
		SeriesIndex:  1,
		Flags:        1,
		LastModified: now,
	}
	err := l.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(record).Returning("*").Exec(ctx); err != nil {
			return database.MapError(err, "create_record")
		}

		authorsDef, _ := l.Fields.Definition(fields.FieldAuthors)
		if err := authorsDef.Shape().Write(ctx, tx, record.ID, opts.Authors); err != nil {
			return err
		}
		if err := l.refreshAuthorSort(ctx, tx, record.ID); err != nil {
			return err
		}
		return markDirty(ctx, tx, record.ID)
	})
	if err != nil {
		return nil, err
	}

	if _, err := l.SyncPath(ctx, record.ID); err != nil {
		return nil, err
	}
	return l.Get(ctx, record.ID)
}

// Get loads one record row.
func (l *Library) Get(ctx context.Context, recordID int64) (*models.Record, error) {
	return l.ensureRecord(ctx, recordID)
}

// Delete removes a record, its link rows, and (per the configured policy)
// its directory tree. Row cascades run through the delete triggers, which
// cover custom column tables as well.
func (l *Library) Delete(ctx context.Context, recordID int64) error {
	record, err := l.ensureRecord(ctx, recordID)
	if err != nil {
		return err
	}

	_, err = l.db.NewDelete().Model((*models.Record)(nil)).Where("id = ?", recordID).Exec(ctx)
	if err != nil {
		return database.MapError(err, "delete_record")
	}

	if record.Path == "" {
		return nil
	}
	dir := filepath.Join(l.cfg.LibraryPath, filepath.FromSlash(record.Path))
	return l.Trash.DeleteTree(dir, l.cfg.PermanentDelete)
}

// GetField reads one field for a record through its storage shape.
func (l *Library) GetField(ctx context.Context, recordID int64, label string) (any, error) {
	def, ok := l.Fields.Definition(label)
	if !ok {
		return nil, errcodes.NotFound("field " + label)
	}
	if _, err := l.ensureRecord(ctx, recordID); err != nil {
		return nil, err
	}
	return def.Shape().ForRecord(ctx, l.db, recordID)
}

// SetField coerces raw through the field's adaptation rules and writes it
// in one transaction, bumping last_modified. Title and author changes are
// followed by a path sync so the directory tracks the metadata.
func (l *Library) SetField(ctx context.Context, recordID int64, label string, raw any) error {
	if readOnlyFields[label] {
		return errors.Errorf("field %s is not settable", label)
	}
	def, ok := l.Fields.Definition(label)
	if !ok {
		return errcodes.NotFound("field " + label)
	}
	if _, err := l.ensureRecord(ctx, recordID); err != nil {
		return err
	}

	value, err := l.Fields.Adapt(label, raw)
	if err != nil {
		return err
	}

	err = l.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := def.Shape().Write(ctx, tx, recordID, value); err != nil {
			return err
		}
		if label == fields.FieldAuthors {
			if err := l.refreshAuthorSort(ctx, tx, recordID); err != nil {
				return err
			}
		}
		if err := markDirty(ctx, tx, recordID); err != nil {
			return err
		}
		return touchRecord(ctx, tx, recordID)
	})
	if err != nil {
		return err
	}

	if label == fields.FieldTitle || label == fields.FieldAuthors {
		if _, err := l.SyncPath(ctx, recordID); err != nil {
			return err
		}
	}
	return nil
}

// SyncPath brings the record's directory and file stems in line with its
// current title and lead author, persisting the new path only after files
// have moved.
func (l *Library) SyncPath(ctx context.Context, recordID int64) (*pathsync.Result, error) {
	record, err := l.ensureRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}

	var rows []models.Format
	err = l.db.NewSelect().Model(&rows).Where("d.record = ?", recordID).Order("d.format").Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	refs := make([]pathsync.FormatRef, 0, len(rows))
	for _, row := range rows {
		refs = append(refs, pathsync.FormatRef{Format: row.Format, Stem: row.Name})
	}

	author, err := l.leadAuthor(ctx, recordID)
	if err != nil {
		return nil, err
	}

	req := pathsync.Request{
		RecordID:    recordID,
		Title:       record.Title,
		Author:      author,
		CurrentPath: record.Path,
		Formats:     refs,
	}
	return l.Sync.UpdatePath(ctx, req, func(newPath, newStem string) error {
		return l.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			_, err := tx.NewUpdate().Model((*models.Record)(nil)).
				Set("path = ?", newPath).
				Where("id = ?", recordID).
				Exec(ctx)
			if err != nil {
				return database.MapError(err, "sync_path")
			}
			_, err = tx.NewUpdate().Model((*models.Format)(nil)).
				Set("name = ?", newStem).
				Where("record = ?", recordID).
				Exec(ctx)
			if err != nil {
				return database.MapError(err, "sync_path")
			}
			return touchRecord(ctx, tx, recordID)
		})
	})
}

// RecordDir returns the absolute directory for a record, creating the
// path mapping first if the record has never been synced.
func (l *Library) RecordDir(ctx context.Context, recordID int64) (string, error) {
	record, err := l.ensureRecord(ctx, recordID)
	if err != nil {
		return "", err
	}
	if record.Path == "" {
		res, err := l.SyncPath(ctx, recordID)
		if err != nil {
			return "", err
		}
		return filepath.Join(l.cfg.LibraryPath, filepath.FromSlash(res.Path)), nil
	}
	return filepath.Join(l.cfg.LibraryPath, filepath.FromSlash(record.Path)), nil
}

// leadAuthor returns the first linked author's name, or the unknown token.
func (l *Library) leadAuthor(ctx context.Context, recordID int64) (string, error) {
	var name string
	err := l.db.NewRaw(
		"SELECT a.name FROM records_authors_link l JOIN authors a ON a.id = l.author WHERE l.record = ? ORDER BY l.position LIMIT 1",
		recordID,
	).Scan(ctx, &name)
	if errors.Is(err, sql.ErrNoRows) {
		return pathsync.UnknownToken, nil
	}
	if err != nil {
		return "", errors.WithStack(err)
	}
	return name, nil
}

// refreshAuthorSort rebuilds records.author_sort from the linked authors'
// sort strings.
func (l *Library) refreshAuthorSort(ctx context.Context, tx bun.Tx, recordID int64) error {
	var sorts []string
	err := tx.NewRaw(
		"SELECT a.sort FROM records_authors_link l JOIN authors a ON a.id = l.author WHERE l.record = ? ORDER BY l.position",
		recordID,
	).Scan(ctx, &sorts)
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = tx.NewUpdate().Model((*models.Record)(nil)).
		Set("author_sort = ?", strings.Join(sorts, " & ")).
		Where("id = ?", recordID).
		Exec(ctx)
	return database.MapError(err, "set_field")
}

// DirtiedRecords lists records whose sidecar metadata backup is stale.
func (l *Library) DirtiedRecords(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := l.db.NewSelect().Model((*models.DirtiedRecord)(nil)).
		Column("record").
		Order("id").
		Scan(ctx, &ids)
	return ids, errors.WithStack(err)
}

// ClearDirty drops a record from the stale-backup queue.
func (l *Library) ClearDirty(ctx context.Context, recordID int64) error {
	_, err := l.db.NewDelete().Model((*models.DirtiedRecord)(nil)).
		Where("record = ?", recordID).
		Exec(ctx)
	return database.MapError(err, "clear_dirty")
}

func markDirty(ctx context.Context, db bun.IDB, recordID int64) error {
	_, err := db.NewInsert().Model(&models.DirtiedRecord{RecordID: recordID}).
		On("CONFLICT (record) DO NOTHING").
		Exec(ctx)
	return database.MapError(err, "mark_dirty")
}

func touchRecord(ctx context.Context, db bun.IDB, recordID int64) error {
	_, err := db.NewUpdate().Model((*models.Record)(nil)).
		Set("last_modified = ?", time.Now().UTC()).
		Where("id = ?", recordID).
		Exec(ctx)
	return database.MapError(err, "touch_record")
}

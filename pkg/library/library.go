package library

import (
	"context"
	"database/sql"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"

	"github.com/folioreads/folio/pkg/config"
	"github.com/folioreads/folio/pkg/database"
	"github.com/folioreads/folio/pkg/errcodes"
	"github.com/folioreads/folio/pkg/fields"
	"github.com/folioreads/folio/pkg/fileutils"
	"github.com/folioreads/folio/pkg/formats"
	"github.com/folioreads/folio/pkg/migrations"
	"github.com/folioreads/folio/pkg/models"
	"github.com/folioreads/folio/pkg/pathsync"
	"github.com/folioreads/folio/pkg/preferences"
)

// schemaVersion is the persisted user_version gate. Zero means the
// database is uninitialized; a value above this means the library was
// created by a newer build.
const schemaVersion = 1

// Library is an open document library: one database plus the directory
// tree beside it. All higher-level operations go through here.
type Library struct {
	cfg *config.Config
	db  *bun.DB

	Prefs   *preferences.Store
	Fields  *fields.Registry
	Formats *formats.Store
	Sync    *pathsync.Synchronizer
	Trash   *fileutils.Trash
}

// Open connects to the library at cfg.LibraryPath, bootstrapping the
// schema on first use, and builds every layer above the connection. A
// bootstrap failure rolls back and leaves the library uninitialized.
func Open(ctx context.Context, cfg *config.Config) (*Library, error) {
	log := logger.FromContext(ctx)

	if err := pathsync.ValidateRoot(cfg.LibraryPath); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.LibraryPath, 0o755); err != nil {
		return nil, errors.WithStack(err)
	}

	db, err := database.New(cfg)
	if err != nil {
		return nil, err
	}

	fresh := false
	version, err := database.UserVersion(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	switch {
	case version == 0:
		fresh = true
	case version > schemaVersion:
		db.Close()
		return nil, errors.Errorf("library schema version %d is newer than this build supports (%d)", version, schemaVersion)
	}

	if _, err := migrations.BringUpToDate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if version != schemaVersion {
		if err := database.SetUserVersion(ctx, db, schemaVersion); err != nil {
			db.Close()
			return nil, err
		}
	}

	prefs, err := preferences.NewStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if fresh {
		if err := prefs.SeedDefaults(ctx); err != nil {
			db.Close()
			return nil, err
		}
	} else {
		renamed, err := prefs.MigrateLegacy(ctx)
		if err != nil {
			db.Close()
			return nil, err
		}
		if len(renamed) > 0 {
			log.Warn("renamed user categories to repair case collisions", logger.Data{
				"renamed": renamed,
			})
		}
	}
	if err := prefs.WriteBackup(cfg.LibraryPath); err != nil {
		// Best-effort; the database copy is authoritative.
		log.Err(err).Warn("could not write preference backup")
	}

	registry := fields.NewRegistry(db)
	if tristate, ok := prefs.Get(preferences.KeyTristateBools); ok {
		if b, ok := tristate.(bool); ok {
			registry.TristateBools = b
		}
	}
	swept, err := registry.Load(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	if len(swept) > 0 {
		log.Warn("dropped custom columns with missing backing tables", logger.Data{
			"labels": swept,
		})
	}

	trash := fileutils.NewTrash(cfg.LibraryPath)
	lib := &Library{
		cfg:     cfg,
		db:      db,
		Prefs:   prefs,
		Fields:  registry,
		Formats: formats.NewStore(db),
		Sync:    pathsync.NewSynchronizer(cfg.LibraryPath, trash, cfg.PermanentDelete, nil),
		Trash:   trash,
	}
	return lib, nil
}

// DB exposes the underlying connection for callers that need raw access.
func (l *Library) DB() *bun.DB {
	return l.db
}

// Path returns the library root directory.
func (l *Library) Path() string {
	return l.cfg.LibraryPath
}

func (l *Library) Close() error {
	return errors.WithStack(l.db.Close())
}

// UUID returns the library's stable identifier, minting it on first read.
func (l *Library) UUID(ctx context.Context) (string, error) {
	row := &models.LibraryID{}
	err := l.db.NewSelect().Model(row).Limit(1).Scan(ctx)
	if err == nil {
		return row.UUID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", errors.WithStack(err)
	}

	row = &models.LibraryID{UUID: uuid.New().String()}
	if _, err := l.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return "", database.MapError(err, "library_uuid")
	}
	return row.UUID, nil
}

// ensureRecord loads a record row or reports NotFound.
func (l *Library) ensureRecord(ctx context.Context, recordID int64) (*models.Record, error) {
	record := &models.Record{}
	err := l.db.NewSelect().Model(record).Where("r.id = ?", recordID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("record")
		}
		return nil, errors.WithStack(err)
	}
	return record, nil
}

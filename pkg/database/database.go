package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/folioreads/folio/pkg/config"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// DatabaseFileName is the metadata database inside a library root.
const DatabaseFileName = "metadata.db"

type key int

const ctxKey key = 0

func WithLogging(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey, true)
}

type logQueryHook struct {
	log logger.Logger
}

func (*logQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (qh *logQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	enabled, ok := ctx.Value(ctxKey).(bool)
	if !ok || !enabled {
		return
	}

	qh.log.Debug(event.Query)
}

// Path returns the metadata database path for a library root.
func Path(libraryPath string) string {
	return filepath.Join(libraryPath, DatabaseFileName)
}

// ExistsAt reports whether a library database already exists at the given
// library root.
func ExistsAt(libraryPath string) bool {
	_, err := os.Stat(Path(libraryPath))
	return err == nil
}

// New opens the metadata database for the library in cfg. The named
// comparison functions and scalar SQL functions are registered with the
// driver before the first connection opens, so SQL issued by any layer can
// reach them.
func New(cfg *config.Config) (*bun.DB, error) {
	if err := registerEngineExtensions(); err != nil {
		return nil, err
	}

	dsn := Path(cfg.LibraryPath)

	// The collations and scalar functions are registered on the driver
	// instance modernc exposes under the "sqlite" name. A freshly
	// constructed Driver would carry none of them, so the connector must
	// come from the registered one.
	base, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	drv := base.Driver()
	if err := base.Close(); err != nil {
		return nil, errors.WithStack(err)
	}

	var connector driver.Connector
	if drvCtx, ok := drv.(driver.DriverContext); ok {
		connector, err = drvCtx.OpenConnector(dsn)
		if err != nil {
			return nil, errors.WithStack(err)
		}
	} else {
		connector = newDriverConnector(drv, dsn)
	}

	// Wrap the connector with retry logic for SQLITE_BUSY errors.
	sqldb := sql.OpenDB(newRetryConnector(connector, cfg.DatabaseMaxRetries))

	// One connection per open library. SQLite only ever allows a single
	// writer per database; serializing through one connection keeps
	// writers in this process from racing each other for the lock.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	// print out all queries in debug mode
	if cfg.DatabaseDebug {
		db.AddQueryHook(&logQueryHook{logger.NewWithLevel("debug")})
	}

	// Retry up to a few times to ensure that the database can connect.
	for i := 0; i < cfg.DatabaseConnectRetryCount; i++ {
		_, err = db.Exec("SELECT 1")
		if err != nil {
			time.Sleep(cfg.DatabaseConnectRetryDelay)
			continue
		}
		break
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}

	// busy_timeout makes SQLite wait before returning SQLITE_BUSY, which
	// bounds how long a writer blocks on another process's lock before the
	// Busy error surfaces.
	_, err = db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.DatabaseBusyTimeout.Milliseconds()))
	if err != nil {
		return nil, errors.Wrap(err, "failed to set busy_timeout")
	}

	// WAL mode allows concurrent reads during writes.
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		return nil, errors.Wrap(err, "failed to enable WAL mode")
	}

	for _, pragma := range []string{
		"PRAGMA cache_size=5000",
		"PRAGMA temp_store=2",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err = db.Exec(pragma); err != nil {
			return nil, errors.Wrap(err, "failed to configure connection")
		}
	}

	return db, nil
}

// UserVersion reads the schema-version gate. 0 means uninitialized.
func UserVersion(ctx context.Context, db *bun.DB) (int, error) {
	var v int
	err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return v, nil
}

// SetUserVersion writes the schema-version gate. PRAGMA assignment does
// not take bound parameters, so the value is formatted into the statement.
func SetUserVersion(ctx context.Context, db *bun.DB, v int) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", v))
	return errors.WithStack(err)
}

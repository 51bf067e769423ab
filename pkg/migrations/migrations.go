package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

var Migrations = migrate.NewMigrations()

// BringUpToDate applies any pending migrations. It is safe to call on every
// library open; an up-to-date database yields an empty migration group. A
// migration is recorded as applied only after it succeeds, so a failed
// bootstrap leaves the library uninitialized and retryable.
func BringUpToDate(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	migrator := migrate.NewMigrator(db, Migrations, migrate.WithMarkAppliedOnSuccess(true))
	err := migrator.Init(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	group, err := migrator.Migrate(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return group, nil
}

// Status reports applied and pending migrations for diagnostics output.
func Status(ctx context.Context, db *bun.DB) (applied, pending migrate.MigrationSlice, err error) {
	migrator := migrate.NewMigrator(db, Migrations)
	if err := migrator.Init(ctx); err != nil {
		return nil, nil, errors.WithStack(err)
	}
	ms, err := migrator.MigrationsWithStatus(ctx)
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}
	return ms.Applied(), ms.Unapplied(), nil
}

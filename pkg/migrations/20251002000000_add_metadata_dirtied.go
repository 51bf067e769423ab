package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(ctx context.Context, db *bun.DB) error {
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			// Queue of records whose metadata changed since their sidecar
			// backup was last written. Persisted so a crash does not lose
			// pending backups.
			_, err := tx.ExecContext(ctx, `
				CREATE TABLE metadata_dirtied (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					record INTEGER NOT NULL,
					UNIQUE(record)
				)
`)
			return errors.WithStack(err)
		})
	}

	down := func(ctx context.Context, db *bun.DB) error {
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			_, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS metadata_dirtied")
			return errors.WithStack(err)
		})
	}

	Migrations.MustRegister(up, down)
}

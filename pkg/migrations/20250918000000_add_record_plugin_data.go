package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(ctx context.Context, db *bun.DB) error {
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			_, err := tx.ExecContext(ctx, `
				CREATE TABLE record_plugin_data (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					record INTEGER NOT NULL,
					name TEXT NOT NULL,
					val TEXT NOT NULL,
					UNIQUE(record, name)
				)
`)
			if err != nil {
				return errors.WithStack(err)
			}
			_, err = tx.ExecContext(ctx, `CREATE INDEX ix_record_plugin_data_record ON record_plugin_data (record)`)
			return errors.WithStack(err)
		})
	}

	down := func(ctx context.Context, db *bun.DB) error {
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			_, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS record_plugin_data")
			return errors.WithStack(err)
		})
	}

	Migrations.MustRegister(up, down)
}

package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(ctx context.Context, db *bun.DB) error {
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			stmts := []string{
				`
				CREATE TABLE preferences (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					key TEXT NOT NULL,
					val TEXT NOT NULL,
					UNIQUE(key)
				)
`,
				`
				CREATE TABLE library_id (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					uuid TEXT NOT NULL,
					UNIQUE(uuid)
				)
`,
				`
				CREATE TABLE custom_columns (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					label TEXT NOT NULL,
					name TEXT NOT NULL,
					datatype TEXT NOT NULL,
					mark_for_delete BOOL NOT NULL DEFAULT 0,
					editable BOOL NOT NULL DEFAULT 1,
					display TEXT NOT NULL DEFAULT '{}',
					is_multiple BOOL NOT NULL DEFAULT 0,
					normalized BOOL NOT NULL,
					UNIQUE(label)
				)
`,
			}
			for _, stmt := range stmts {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return errors.WithStack(err)
				}
			}
			return nil
		})
	}

	down := func(ctx context.Context, db *bun.DB) error {
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			for _, table := range []string{"custom_columns", "library_id", "preferences"} {
				if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
					return errors.WithStack(err)
				}
			}
			return nil
		})
	}

	Migrations.MustRegister(up, down)
}

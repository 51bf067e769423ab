package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	// The whole baseline runs in one transaction so a failure part way
	// through leaves the library file empty rather than half built.
	up := func(ctx context.Context, db *bun.DB) error {
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			stmts := []string{
				`
				CREATE TABLE records (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					title TEXT NOT NULL DEFAULT 'Unknown',
					sort TEXT COLLATE nocase_cmp,
					timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					pubdate TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					series_index REAL NOT NULL DEFAULT 1.0,
					author_sort TEXT COLLATE nocase_cmp,
					isbn TEXT DEFAULT '' COLLATE nocase_cmp,
					lccn TEXT DEFAULT '' COLLATE nocase_cmp,
					path TEXT NOT NULL DEFAULT '',
					flags INTEGER NOT NULL DEFAULT 1,
					uuid TEXT,
					has_cover BOOL DEFAULT 0,
					last_modified TIMESTAMP NOT NULL DEFAULT '2000-01-01 00:00:00+00:00'
				)
`,
				// New rows get their sort and uuid from the registered SQL
				// functions so inserts from any layer stay consistent.
				`
				CREATE TRIGGER records_insert_trg AFTER INSERT ON records
				BEGIN
					UPDATE records SET sort = title_sort(NEW.title), uuid = uuid4() WHERE id = NEW.id;
				END
`,
				`
				CREATE TRIGGER records_update_trg AFTER UPDATE ON records
				WHEN NEW.title <> OLD.title
				BEGIN
					UPDATE records SET sort = title_sort(NEW.title) WHERE id = NEW.id;
				END
`,
				`
				CREATE TABLE authors (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL COLLATE nocase_cmp,
					sort TEXT COLLATE nocase_cmp,
					link TEXT NOT NULL DEFAULT '',
					UNIQUE(name)
				)
`,
				`
				CREATE TRIGGER authors_insert_trg AFTER INSERT ON authors
				BEGIN
					UPDATE authors SET sort = author_to_author_sort(NEW.name) WHERE id = NEW.id AND NEW.sort IS NULL;
				END
`,
				`
				CREATE TABLE publishers (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL COLLATE nocase_cmp,
					sort TEXT COLLATE nocase_cmp,
					UNIQUE(name)
				)
`,
				`
				CREATE TABLE series (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL COLLATE nocase_cmp,
					sort TEXT COLLATE nocase_cmp,
					UNIQUE(name)
				)
`,
				`
				CREATE TABLE ratings (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					rating INTEGER CHECK(rating > -1 AND rating < 11),
					UNIQUE(rating)
				)
`,
				`
				CREATE TABLE tags (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL COLLATE nocase_cmp,
					UNIQUE(name)
				)
`,
				`
				CREATE TABLE languages (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					lang_code TEXT NOT NULL COLLATE nocase_cmp,
					UNIQUE(lang_code)
				)
`,
				`
				CREATE TABLE records_authors_link (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					record INTEGER NOT NULL,
					author INTEGER NOT NULL,
					position INTEGER NOT NULL DEFAULT 0,
					UNIQUE(record, author)
				)
`,
				`
				CREATE TABLE records_publishers_link (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					record INTEGER NOT NULL,
					publisher INTEGER NOT NULL,
					UNIQUE(record)
				)
`,
				`
				CREATE TABLE records_series_link (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					record INTEGER NOT NULL,
					series INTEGER NOT NULL,
					UNIQUE(record)
				)
`,
				`
				CREATE TABLE records_ratings_link (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					record INTEGER NOT NULL,
					rating INTEGER NOT NULL,
					UNIQUE(record, rating)
				)
`,
				`
				CREATE TABLE records_tags_link (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					record INTEGER NOT NULL,
					tag INTEGER NOT NULL,
					UNIQUE(record, tag)
				)
`,
				`
				CREATE TABLE records_languages_link (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					record INTEGER NOT NULL,
					lang_code INTEGER NOT NULL,
					item_order INTEGER NOT NULL DEFAULT 0,
					UNIQUE(record, lang_code)
				)
`,
				`
				CREATE TABLE comments (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					record INTEGER NOT NULL,
					text TEXT NOT NULL COLLATE nocase_cmp,
					UNIQUE(record)
				)
`,
				`
				CREATE TABLE data (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					record INTEGER NOT NULL,
					format TEXT NOT NULL COLLATE nocase_cmp,
					uncompressed_size INTEGER NOT NULL,
					name TEXT NOT NULL,
					mimetype TEXT NOT NULL DEFAULT '',
					UNIQUE(record, format)
				)
`,
				`
				CREATE TABLE identifiers (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					record INTEGER NOT NULL,
					type TEXT NOT NULL DEFAULT 'isbn' COLLATE nocase_cmp,
					val TEXT NOT NULL COLLATE nocase_cmp,
					UNIQUE(record, type)
				)
`,
				// Removing a record removes every row that referenced it.
				`
				CREATE TRIGGER records_delete_trg AFTER DELETE ON records
				BEGIN
					DELETE FROM records_authors_link WHERE record = OLD.id;
					DELETE FROM records_publishers_link WHERE record = OLD.id;
					DELETE FROM records_series_link WHERE record = OLD.id;
					DELETE FROM records_ratings_link WHERE record = OLD.id;
					DELETE FROM records_tags_link WHERE record = OLD.id;
					DELETE FROM records_languages_link WHERE record = OLD.id;
					DELETE FROM comments WHERE record = OLD.id;
					DELETE FROM data WHERE record = OLD.id;
					DELETE FROM identifiers WHERE record = OLD.id;
				END
`,
				`CREATE INDEX ix_records_sort ON records (sort COLLATE nocase_cmp)`,
				`CREATE INDEX ix_authors_sort ON authors (sort COLLATE nocase_cmp)`,
				`CREATE INDEX ix_records_authors_link_record ON records_authors_link (record)`,
				`CREATE INDEX ix_records_authors_link_author ON records_authors_link (author)`,
				`CREATE INDEX ix_records_tags_link_record ON records_tags_link (record)`,
				`CREATE INDEX ix_records_tags_link_tag ON records_tags_link (tag)`,
				`CREATE INDEX ix_data_record ON data (record)`,
				`CREATE INDEX ix_identifiers_record ON identifiers (record)`,
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
			for _, table := range []string{
				"identifiers", "data", "comments",
				"records_languages_link", "records_tags_link", "records_ratings_link",
				"records_series_link", "records_publishers_link", "records_authors_link",
				"languages", "tags", "ratings", "series", "publishers", "authors", "records",
			} {
				if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
					return errors.WithStack(err)
				}
			}
			return nil
		})
	}

	Migrations.MustRegister(up, down)
}

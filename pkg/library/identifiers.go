package library

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"

	"github.com/folioreads/folio/pkg/database"
	"github.com/folioreads/folio/pkg/models"
)

// Identifiers returns the record's external identifiers keyed by scheme,
// e.g. isbn or doi.
func (l *Library) Identifiers(ctx context.Context, recordID int64) (map[string]string, error) {
	if _, err := l.ensureRecord(ctx, recordID); err != nil {
		return nil, err
	}

	var rows []models.Identifier
	err := l.db.NewSelect().Model(&rows).Where("idf.record = ?", recordID).Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Type] = row.Val
	}
	return out, nil
}

// SetIdentifier stores one identifier for a record, replacing any previous
// value for the same scheme. An empty value removes the identifier.
func (l *Library) SetIdentifier(ctx context.Context, recordID int64, scheme, value string) error {
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	if scheme == "" {
		return errors.New("an identifier scheme is required")
	}
	if _, err := l.ensureRecord(ctx, recordID); err != nil {
		return err
	}

	return l.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().Model((*models.Identifier)(nil)).
			Where("record = ?", recordID).
			Where("type = ?", scheme).
			Exec(ctx)
		if err != nil {
			return database.MapError(err, "set_identifier")
		}
		if value != "" {
			row := &models.Identifier{RecordID: recordID, Type: scheme, Val: value}
			if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
				return database.MapError(err, "set_identifier")
			}
		}
		if err := markDirty(ctx, tx, recordID); err != nil {
			return err
		}
		return touchRecord(ctx, tx, recordID)
	})
}

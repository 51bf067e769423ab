package library

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"

	"github.com/folioreads/folio/pkg/database"
	"github.com/folioreads/folio/pkg/errcodes"
	"github.com/folioreads/folio/pkg/models"
)

// SetPluginData stores an arbitrary JSON-encodable value for a record
// under a plugin name, replacing any previous value.
func (l *Library) SetPluginData(ctx context.Context, recordID int64, name string, value any) error {
	if _, err := l.ensureRecord(ctx, recordID); err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.WithStack(err)
	}

	row := &models.RecordPluginData{RecordID: recordID, Name: name, Val: string(raw)}
	_, err = l.db.NewInsert().Model(row).
		On("CONFLICT (record, name) DO UPDATE").
		Set("val = EXCLUDED.val").
		Exec(ctx)
	return database.MapError(err, "set_plugin_data")
}

// GetPluginData decodes the stored value for a record and plugin name into
// dest. It reports NotFound when nothing is stored.
func (l *Library) GetPluginData(ctx context.Context, recordID int64, name string, dest any) error {
	row := &models.RecordPluginData{}
	err := l.db.NewSelect().Model(row).
		Where("rpd.record = ?", recordID).
		Where("rpd.name = ?", name).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errcodes.NotFound("plugin data")
		}
		return errors.WithStack(err)
	}
	return errors.WithStack(json.Unmarshal([]byte(row.Val), dest))
}

// DeletePluginData removes the stored value; deleting absent data is not
// an error.
func (l *Library) DeletePluginData(ctx context.Context, recordID int64, name string) error {
	_, err := l.db.NewDelete().Model((*models.RecordPluginData)(nil)).
		Where("record = ?", recordID).
		Where("name = ?", name).
		Exec(ctx)
	return database.MapError(err, "delete_plugin_data")
}

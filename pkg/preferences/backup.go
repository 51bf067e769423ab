package preferences

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

// BackupFileName is the disaster-recovery mirror written into the library
// root. It is never authoritative; the database always wins.
const BackupFileName = "metadata_db_prefs_backup.json"

// WriteBackup writes a human-readable JSON snapshot of the store next to
// the database. Callers treat failures as best-effort and only log them.
func (s *Store) WriteBackup(libraryPath string) error {
	snapshot := s.Snapshot()

	// Stable key order keeps the file diffable across writes.
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make(map[string]any, len(keys))
	for _, k := range keys {
		ordered[k] = snapshot[k]
	}

	raw, err := json.MarshalIndent(ordered, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}

	target := filepath.Join(libraryPath, BackupFileName)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.Rename(tmp, target))
}

// RestoreBackup loads the sidecar snapshot into the store, overwriting
// current values for every key the snapshot carries. Disaster recovery
// only; the database copy wins in normal operation.
func (s *Store) RestoreBackup(ctx context.Context, libraryPath string) error {
	snapshot, err := ReadBackup(libraryPath)
	if err != nil {
		return err
	}
	for key, val := range snapshot {
		if err := s.Set(ctx, key, val); err != nil {
			return err
		}
	}
	return nil
}

// ReadBackup parses the sidecar snapshot, for recovery tooling.
func ReadBackup(libraryPath string) (map[string]any, error) {
	raw, err := os.ReadFile(filepath.Join(libraryPath, BackupFileName))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.WithStack(err)
	}
	return out, nil
}

package preferences

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/uptrace/bun"

	"github.com/folioreads/folio/pkg/database"
	"github.com/folioreads/folio/pkg/errcodes"
	"github.com/folioreads/folio/pkg/models"
)

// namespaceSeparator is reserved for building namespaced keys.
const namespaceSeparator = ":"

const namespacedPrefix = "namespaced:"

// Store persists typed key-value settings for one library. All reads are
// served from an in-memory mirror loaded at open; every mutation persists
// in its own transaction before the mirror is updated, so the mirror is
// never ahead of storage.
type Store struct {
	db       *bun.DB
	defaults map[string]any

	mu     sync.RWMutex
	mirror map[string]any
}

// NewStore loads every persisted preference into the mirror. Rows whose
// values no longer parse as JSON are skipped rather than failing the open.
func NewStore(ctx context.Context, db *bun.DB) (*Store, error) {
	s := &Store{
		db:       db,
		defaults: defaultValues(),
		mirror:   map[string]any{},
	}

	var rows []*models.Preference
	err := db.NewSelect().Model(&rows).Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	for _, row := range rows {
		var val any
		if err := json.Unmarshal([]byte(row.Val), &val); err != nil {
			continue
		}
		s.mirror[row.Key] = val
	}

	return s, nil
}

// Get returns the stored value for key, falling back to the registered
// default. The second return reports whether either existed.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if val, ok := s.mirror[key]; ok {
		return val, true
	}
	if val, ok := s.defaults[key]; ok {
		return val, true
	}
	return nil, false
}

// Has reports whether key is explicitly stored, ignoring defaults.
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.mirror[key]
	return ok
}

// Keys returns every explicitly stored key in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.mirror))
	for k := range s.mirror {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set serializes value to JSON and persists it before the mirror picks it
// up. A failed write leaves the mirror untouched.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.WithStack(err)
	}

	row := &models.Preference{Key: key, Val: string(raw)}
	_, err = s.db.
		NewInsert().
		Model(row).
		On("CONFLICT (key) DO UPDATE").
		Set("val = EXCLUDED.val").
		Exec(ctx)
	if err != nil {
		return database.MapError(err, "set_preference")
	}

	// Round-trip through JSON so the mirror holds exactly what a reload
	// would produce.
	var stored any
	if err := json.Unmarshal(raw, &stored); err != nil {
		return errors.WithStack(err)
	}

	s.mu.Lock()
	s.mirror[key] = stored
	s.mu.Unlock()
	return nil
}

// Delete removes key from storage and then the mirror. Deleting an absent
// key is a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.
		NewDelete().
		Model((*models.Preference)(nil)).
		Where("key = ?", key).
		Exec(ctx)
	if err != nil {
		return database.MapError(err, "delete_preference")
	}

	s.mu.Lock()
	delete(s.mirror, key)
	s.mu.Unlock()
	return nil
}

// NamespacedKey builds the storage key for a namespaced preference. The
// namespace and key must not contain the separator character.
func NamespacedKey(ns, key string) (string, error) {
	if strings.Contains(ns, namespaceSeparator) {
		return "", errcodes.InvalidKey("namespace must not contain " + namespaceSeparator)
	}
	if strings.Contains(key, namespaceSeparator) {
		return "", errcodes.InvalidKey("key must not contain " + namespaceSeparator)
	}
	return namespacedPrefix + ns + namespaceSeparator + key, nil
}

// GetNamespaced reads a preference scoped to an external tool's namespace.
func (s *Store) GetNamespaced(ns, key string) (any, bool, error) {
	full, err := NamespacedKey(ns, key)
	if err != nil {
		return nil, false, err
	}
	val, ok := s.Get(full)
	return val, ok, nil
}

// SetNamespaced writes a preference scoped to an external tool's namespace.
func (s *Store) SetNamespaced(ctx context.Context, ns, key string, value any) error {
	full, err := NamespacedKey(ns, key)
	if err != nil {
		return err
	}
	return s.Set(ctx, full, value)
}

// Snapshot returns a copy of the effective store contents, defaults
// included underneath explicit values.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.mirror)+len(s.defaults))
	for k, v := range s.defaults {
		out[k] = v
	}
	for k, v := range s.mirror {
		out[k] = v
	}
	return out
}

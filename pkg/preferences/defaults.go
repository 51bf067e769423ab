package preferences

import (
	"context"
)

// Well-known preference keys used by the engine itself. External tools are
// expected to use the namespaced accessors instead.
const (
	KeyUserCategories     = "user_categories"
	KeySavedSearches      = "saved_searches"
	KeyVirtualSubsets     = "virtual_subsets"
	KeyGroupedSearchTerms = "grouped_search_terms"
	KeyFieldOrder         = "field_order"
	KeyTristateBools      = "bools_are_tristate"
	KeyLegacyMigrated     = "legacy_settings_migrated"
)

// defaultValues seeds the lazily defaulted keys. Values here are returned
// by Get until a caller explicitly stores something.
func defaultValues() map[string]any {
	return map[string]any{
		KeyUserCategories:     map[string]any{},
		KeySavedSearches:      map[string]any{},
		KeyVirtualSubsets:     map[string]any{},
		KeyGroupedSearchTerms: map[string]any{},
		KeyFieldOrder:         []any{},
		KeyTristateBools:      true,
	}
}

// SeedDefaults persists the default values that a freshly created library
// should carry explicitly, so exports and backups show them.
func (s *Store) SeedDefaults(ctx context.Context) error {
	for key, val := range s.defaults {
		if s.Has(key) {
			continue
		}
		if err := s.Set(ctx, key, val); err != nil {
			return err
		}
	}
	return nil
}

package preferences

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Legacy flat settings folded into named virtual subsets. Each held a
// single restriction expression in older libraries.
var legacyRestrictionKeys = []string{"gui_restriction", "cs_restriction"}

// Deprecated keys whose values move to a new name unchanged.
var legacyRenames = map[string]string{
	"virt_libs":         KeyVirtualSubsets,
	"saved_search_list": KeySavedSearches,
}

// MigrateLegacy performs the one-time relocation of legacy settings on the
// first open of an existing library. It returns the names it had to rename
// to repair case-insensitive collisions; callers log those. Subsequent
// calls are no-ops.
func (s *Store) MigrateLegacy(ctx context.Context) ([]string, error) {
	if s.Has(KeyLegacyMigrated) {
		return nil, nil
	}

	for old, current := range legacyRenames {
		if !s.Has(old) || s.Has(current) {
			continue
		}
		val, _ := s.Get(old)
		if err := s.Set(ctx, current, val); err != nil {
			return nil, err
		}
		if err := s.Delete(ctx, old); err != nil {
			return nil, err
		}
	}

	if err := s.foldRestrictions(ctx); err != nil {
		return nil, err
	}

	renamed, err := s.repairCategoryCollisions(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.Set(ctx, KeyLegacyMigrated, true); err != nil {
		return nil, err
	}
	return renamed, nil
}

// foldRestrictions converts the two legacy single-expression restriction
// settings into named virtual subsets holding a search expression.
func (s *Store) foldRestrictions(ctx context.Context) error {
	subsets := map[string]any{}
	if existing, ok := s.Get(KeyVirtualSubsets); ok {
		if m, ok := existing.(map[string]any); ok {
			for k, v := range m {
				subsets[k] = v
			}
		}
	}

	changed := false
	for _, key := range legacyRestrictionKeys {
		if !s.Has(key) {
			continue
		}
		val, _ := s.Get(key)
		expr, ok := val.(string)
		if ok && expr != "" {
			if _, exists := subsets[expr]; !exists {
				subsets[expr] = fmt.Sprintf("search:%q", expr)
			}
		}
		if err := s.Delete(ctx, key); err != nil {
			return err
		}
		changed = true
	}

	if !changed {
		return nil
	}
	return s.Set(ctx, KeyVirtualSubsets, subsets)
}

// repairCategoryCollisions renames user categories that collide under
// case-insensitive comparison. The first name seen keeps itself; each later
// collider gets the smallest positive integer suffix not already in use.
func (s *Store) repairCategoryCollisions(ctx context.Context) ([]string, error) {
	val, ok := s.Get(KeyUserCategories)
	if !ok {
		return nil, nil
	}
	categories, ok := val.(map[string]any)
	if !ok || len(categories) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	// Deterministic order so the same input always yields the same repair.
	sort.Strings(names)

	seen := map[string]bool{}
	for _, name := range names {
		seen[strings.ToLower(name)] = true
	}

	repaired := make(map[string]any, len(categories))
	taken := map[string]bool{}
	var renamed []string
	for _, name := range names {
		lower := strings.ToLower(name)
		if !taken[lower] {
			taken[lower] = true
			repaired[name] = categories[name]
			continue
		}

		next := name
		for n := 1; ; n++ {
			candidate := fmt.Sprintf("%s %d", name, n)
			if !taken[strings.ToLower(candidate)] && !seen[strings.ToLower(candidate)] {
				next = candidate
				break
			}
		}
		taken[strings.ToLower(next)] = true
		repaired[next] = categories[name]
		renamed = append(renamed, next)
	}

	if len(renamed) == 0 {
		return nil, nil
	}
	if err := s.Set(ctx, KeyUserCategories, repaired); err != nil {
		return nil, err
	}
	return renamed, nil
}

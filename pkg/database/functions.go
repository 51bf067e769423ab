package database

import (
	"database/sql/driver"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	sqlite "modernc.org/sqlite"

	"github.com/folioreads/folio/pkg/sortname"
)

// Collation is a named string comparator made available to the engine so
// that ORDER BY and COLLATE clauses can sort the way the application does.
type Collation struct {
	Name    string
	Compare func(left, right string) int
}

// ScalarFunc is a custom SQL function callable from any statement.
type ScalarFunc struct {
	Name          string
	NArgs         int32
	Deterministic bool
	Apply         func(args []driver.Value) (driver.Value, error)
}

var localeCollator = collate.New(language.Und, collate.Loose)

// Collations returns the comparators registered on every connection.
func Collations() []Collation {
	return []Collation{
		{
			Name: "nocase_cmp",
			Compare: func(left, right string) int {
				return strings.Compare(strings.ToLower(left), strings.ToLower(right))
			},
		},
		{
			Name: "locale_cmp",
			Compare: func(left, right string) int {
				return localeCollator.CompareString(left, right)
			},
		},
	}
}

// ScalarFuncs returns the custom SQL functions registered on every
// connection.
func ScalarFuncs() []ScalarFunc {
	return []ScalarFunc{
		{
			Name:  "uuid4",
			NArgs: 0,
			Apply: func(_ []driver.Value) (driver.Value, error) {
				return uuid.New().String(), nil
			},
		},
		{
			Name:          "title_sort",
			NArgs:         1,
			Deterministic: true,
			Apply: func(args []driver.Value) (driver.Value, error) {
				s, ok := args[0].(string)
				if !ok {
					return args[0], nil
				}
				return sortname.ForTitle(s), nil
			},
		},
		{
			Name:          "author_to_author_sort",
			NArgs:         1,
			Deterministic: true,
			Apply: func(args []driver.Value) (driver.Value, error) {
				s, ok := args[0].(string)
				if !ok {
					return args[0], nil
				}
				return sortname.ForAuthor(s), nil
			},
		},
		{
			// Placeholder used by saved-search style queries. Always
			// matches until a search context narrows it.
			Name:  "record_list_filter",
			NArgs: 1,
			Apply: func(_ []driver.Value) (driver.Value, error) {
				return int64(1), nil
			},
		},
	}
}

var registerOnce sync.Once

// RegisterExtensions registers the collations and scalar functions with
// the sqlite driver. Registration is process wide and happens once; New
// calls it, and tests that open their own connections call it directly.
func RegisterExtensions() error {
	return registerEngineExtensions()
}

func registerEngineExtensions() error {
	var err error
	registerOnce.Do(func() {
		for _, c := range Collations() {
			if regErr := sqlite.RegisterCollationUtf8(c.Name, c.Compare); regErr != nil {
				err = regErr
				return
			}
		}
		for _, f := range ScalarFuncs() {
			apply := f.Apply
			impl := func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
				return apply(args)
			}
			var regErr error
			if f.Deterministic {
				regErr = sqlite.RegisterDeterministicScalarFunction(f.Name, f.NArgs, impl)
			} else {
				regErr = sqlite.RegisterScalarFunction(f.Name, f.NArgs, impl)
			}
			if regErr != nil {
				err = regErr
				return
			}
		}
	})
	return err
}

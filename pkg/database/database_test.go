package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioreads/folio/pkg/config"
)

func openForTest(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.New(t.TempDir())
	require.NoError(t, err)
	cfg.DatabaseConnectRetryDelay = 0
	return cfg
}

// Connections handed out by New must see the registered collations and
// scalar functions, not just connections opened by hand.
func TestNewConnectionsCarryExtensions(t *testing.T) {
	t.Parallel()

	cfg := openForTest(t)
	db, err := New(cfg)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	var sorted string
	err = db.QueryRowContext(ctx, "SELECT title_sort('The Left Hand of Darkness')").Scan(&sorted)
	require.NoError(t, err)
	assert.Equal(t, "Left Hand of Darkness, The", sorted)

	var authorSort string
	err = db.QueryRowContext(ctx, "SELECT author_to_author_sort('Ursula K. Le Guin')").Scan(&authorSort)
	require.NoError(t, err)
	assert.Equal(t, "Guin, Ursula K. Le", authorSort)

	var id string
	err = db.QueryRowContext(ctx, "SELECT uuid4()").Scan(&id)
	require.NoError(t, err)
	assert.Len(t, id, 36)

	// COLLATE clauses resolve the registered comparators.
	var eq int
	err = db.QueryRowContext(ctx, "SELECT 'ABC' = 'abc' COLLATE nocase_cmp").Scan(&eq)
	require.NoError(t, err)
	assert.Equal(t, 1, eq)

	var cmp int
	err = db.QueryRowContext(ctx, "SELECT 'a' < 'B' COLLATE locale_cmp").Scan(&cmp)
	require.NoError(t, err)
	assert.Equal(t, 1, cmp)
}

// A table whose DDL uses the registered collation must be creatable and
// queryable through a connection from New.
func TestNewSupportsCollatedDDL(t *testing.T) {
	t.Parallel()

	cfg := openForTest(t)
	db, err := New(cfg)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	_, err = db.ExecContext(ctx, "CREATE TABLE names (name TEXT COLLATE nocase_cmp UNIQUE)")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "INSERT INTO names (name) VALUES ('Fiction')")
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, "INSERT INTO names (name) VALUES ('FICTION')")
	require.Error(t, err)
	assert.True(t, isConstraintError(err))
}

package migrations_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/folioreads/folio/pkg/config"
	"github.com/folioreads/folio/pkg/database"
	"github.com/folioreads/folio/pkg/migrations"
)

func openForTest(t *testing.T) *bun.DB {
	t.Helper()
	cfg, err := config.New(t.TempDir())
	require.NoError(t, err)
	cfg.DatabaseConnectRetryDelay = 0
	db, err := database.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBringUpToDateFreshDatabase(t *testing.T) {
	t.Parallel()

	db := openForTest(t)
	ctx := context.Background()

	group, err := migrations.BringUpToDate(ctx, db)
	require.NoError(t, err)
	assert.NotEmpty(t, group.Migrations)

	var n int
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// A second pass finds nothing to do.
	group, err = migrations.BringUpToDate(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, group.Migrations)
}

// A bootstrap that fails part way through must leave no trace: no tables
// from the failed migration and no applied entry for it, so the next open
// can retry from scratch.
func TestBringUpToDateFailureRollsBack(t *testing.T) {
	t.Parallel()

	db := openForTest(t)
	ctx := context.Background()

	// Occupy a name the baseline wants, so its last CREATE TABLE fails.
	_, err := db.ExecContext(ctx, "CREATE TABLE identifiers (bogus TEXT)")
	require.NoError(t, err)

	_, err = migrations.BringUpToDate(ctx, db)
	require.Error(t, err)

	var applied int
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bun_migrations").Scan(&applied)
	require.NoError(t, err)
	assert.Equal(t, 0, applied)

	// The tables created before the failure were rolled back with it.
	var n int
	err = db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'records'").Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Once the conflict is gone the same database bootstraps cleanly.
	_, err = db.ExecContext(ctx, "DROP TABLE identifiers")
	require.NoError(t, err)

	group, err := migrations.BringUpToDate(ctx, db)
	require.NoError(t, err)
	assert.NotEmpty(t, group.Migrations)

	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

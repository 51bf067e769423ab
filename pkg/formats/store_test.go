package formats

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"

	"github.com/folioreads/folio/pkg/database"
	"github.com/folioreads/folio/pkg/errcodes"
	"github.com/folioreads/folio/pkg/fileutils"
	"github.com/folioreads/folio/pkg/migrations"
	"github.com/folioreads/folio/pkg/models"
)

func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	require.NoError(t, database.RegisterExtensions())

	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func setupStore(t *testing.T) (*Store, *bun.DB, int64) {
	t.Helper()

	db := setupTestDB(t)
	// The timestamp columns are NOT NULL and nullzero, so inserts must
	// carry real values the way Library.Create does.
	now := time.Now().UTC()
	record := &models.Record{
		Title: "Dune", Path: "Frank Herbert/Dune (1)",
		Timestamp: now, PubDate: now, LastModified: now,
		SeriesIndex: 1, Flags: 1,
	}
	_, err := db.NewInsert().Model(record).Exec(context.Background())
	require.NoError(t, err)
	return NewStore(db), db, record.ID
}

func TestAddFormat(t *testing.T) {
	t.Parallel()
	store, _, recordID := setupStore(t)
	ctx := context.Background()
	dir := t.TempDir()

	content := []byte("the spice must flow")
	size, stem, err := store.AddFormat(ctx, recordID, "epub", bytes.NewReader(content), "Dune", "Frank Herbert", dir)
	require.NoError(t, err)
	assert.EqualValues(t, len(content), size)
	assert.Equal(t, "Dune - Frank Herbert", stem)

	stored, err := os.ReadFile(filepath.Join(dir, stem+".epub"))
	require.NoError(t, err)
	assert.Equal(t, content, stored)

	row, err := store.FormatMetadata(ctx, recordID, "EPUB")
	require.NoError(t, err)
	assert.Equal(t, "EPUB", row.Format)
	assert.EqualValues(t, len(content), row.UncompressedSize)
}

func TestAddFormatIdempotentOnSameFile(t *testing.T) {
	t.Parallel()
	store, _, recordID := setupStore(t)
	ctx := context.Background()
	dir := t.TempDir()

	content := []byte("fear is the mind-killer")
	_, stem, err := store.AddFormat(ctx, recordID, "txt", bytes.NewReader(content), "Dune", "Frank Herbert", dir)
	require.NoError(t, err)

	// Re-adding the stored file itself reports its size without writing.
	f, err := os.Open(filepath.Join(dir, stem+".txt"))
	require.NoError(t, err)
	defer f.Close()

	size, stem2, err := store.AddFormat(ctx, recordID, "txt", f, "Dune", "Frank Herbert", dir)
	require.NoError(t, err)
	assert.EqualValues(t, len(content), size)
	assert.Equal(t, stem, stem2)
}

func TestFormatHash(t *testing.T) {
	t.Parallel()
	store, _, recordID := setupStore(t)
	ctx := context.Background()
	dir := t.TempDir()

	content := []byte("a fixed byte sequence")
	_, _, err := store.AddFormat(ctx, recordID, "txt", bytes.NewReader(content), "Dune", "Frank Herbert", dir)
	require.NoError(t, err)

	got, err := store.FormatHash(ctx, recordID, "txt", dir)
	require.NoError(t, err)

	ref := sha256.Sum256(content)
	assert.Equal(t, hex.EncodeToString(ref[:]), got)

	// Deterministic across calls.
	again, err := store.FormatHash(ctx, recordID, "txt", dir)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestFormatAbsPathRecoversStrays(t *testing.T) {
	t.Parallel()
	store, _, recordID := setupStore(t)
	ctx := context.Background()
	dir := t.TempDir()

	_, stem, err := store.AddFormat(ctx, recordID, "epub", strings.NewReader("x"), "Dune", "Frank Herbert", dir)
	require.NoError(t, err)

	// Someone renamed the file out from under the metadata.
	expected := filepath.Join(dir, stem+".epub")
	stray := filepath.Join(dir, "renamed.epub")
	require.NoError(t, os.Rename(expected, stray))

	got, err := store.FormatAbsPath(ctx, recordID, "epub", dir)
	require.NoError(t, err)
	assert.Equal(t, expected, got)

	_, err = os.Stat(expected)
	require.NoError(t, err)
}

func TestFormatMissingEverywhere(t *testing.T) {
	t.Parallel()
	store, _, recordID := setupStore(t)
	ctx := context.Background()
	dir := t.TempDir()

	_, err := store.FormatHash(ctx, recordID, "pdf", dir)
	assert.Equal(t, errcodes.CodeNoSuchFormat, errcodes.Code(err))

	// Metadata present, file gone, nothing to adopt.
	_, stem, err := store.AddFormat(ctx, recordID, "pdf", strings.NewReader("x"), "Dune", "Frank Herbert", dir)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, stem+".pdf")))

	_, err = store.FormatAbsPath(ctx, recordID, "pdf", dir)
	assert.Equal(t, errcodes.CodeNoSuchFormat, errcodes.Code(err))

	ok, err := store.HasFormat(ctx, recordID, "pdf", dir)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemoveFormat(t *testing.T) {
	t.Parallel()
	store, _, recordID := setupStore(t)
	ctx := context.Background()
	root := t.TempDir()
	dir := filepath.Join(root, "Frank Herbert", "Dune (1)")
	trash := fileutils.NewTrash(root)

	_, stem, err := store.AddFormat(ctx, recordID, "epub", strings.NewReader("x"), "Dune", "Frank Herbert", dir)
	require.NoError(t, err)

	require.NoError(t, store.RemoveFormat(ctx, recordID, "epub", dir, trash, false))

	_, err = store.FormatMetadata(ctx, recordID, "epub")
	assert.Equal(t, errcodes.CodeNoSuchFormat, errcodes.Code(err))
	_, err = os.Stat(filepath.Join(dir, stem+".epub"))
	assert.True(t, os.IsNotExist(err))
}

func TestCopyFormatTo(t *testing.T) {
	t.Parallel()
	store, _, recordID := setupStore(t)
	ctx := context.Background()
	dir := t.TempDir()
	content := []byte("copy me")

	_, _, err := store.AddFormat(ctx, recordID, "txt", bytes.NewReader(content), "Dune", "Frank Herbert", dir)
	require.NoError(t, err)

	t.Run("to a writer", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, store.CopyFormatTo(ctx, recordID, "txt", dir, CopyOptions{Dest: &buf}))
		assert.Equal(t, content, buf.Bytes())
	})

	t.Run("to a path with hardlink preference", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "out.txt")
		require.NoError(t, store.CopyFormatTo(ctx, recordID, "txt", dir, CopyOptions{
			DestPath: dest, UseHardlink: true,
		}))
		got, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, content, got)
	})

	t.Run("through a folder hold", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "held.txt")
		require.NoError(t, store.CopyFormatTo(ctx, recordID, "txt", dir, CopyOptions{
			DestPath: dest, Mover: fileutils.NewFolderMover(),
		}))
		got, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, content, got)
	})

	t.Run("onto itself is a no-op", func(t *testing.T) {
		src, err := store.FormatAbsPath(ctx, recordID, "txt", dir)
		require.NoError(t, err)
		require.NoError(t, store.CopyFormatTo(ctx, recordID, "txt", dir, CopyOptions{DestPath: src}))
	})
}

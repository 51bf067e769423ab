package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioreads/folio/pkg/config"
	"github.com/folioreads/folio/pkg/database"
	"github.com/folioreads/folio/pkg/errcodes"
	"github.com/folioreads/folio/pkg/fields"
	"github.com/folioreads/folio/pkg/preferences"
)

func openTestLibrary(t *testing.T) *Library {
	t.Helper()

	root := t.TempDir()
	cfg, err := config.New(root)
	require.NoError(t, err)
	cfg.DatabaseConnectRetryDelay = 0

	lib, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, lib.Close())
	})
	return lib
}

func TestOpenInitializesFreshLibrary(t *testing.T) {
	t.Parallel()

	lib := openTestLibrary(t)
	ctx := context.Background()

	assert.True(t, database.ExistsAt(lib.Path()))

	// The schema gate is set so reopening skips bootstrap.
	version, err := database.UserVersion(ctx, lib.DB())
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, version)

	// Defaults are persisted, not just mirrored.
	val, ok := lib.Prefs.Get(preferences.KeyUserCategories)
	assert.True(t, ok)
	assert.NotNil(t, val)

	// The JSON preference backup sits beside the database.
	_, err = os.Stat(filepath.Join(lib.Path(), preferences.BackupFileName))
	assert.NoError(t, err)
}

func TestOpenRejectsNewerSchema(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	cfg, err := config.New(root)
	require.NoError(t, err)
	cfg.DatabaseConnectRetryDelay = 0

	ctx := context.Background()
	lib, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, database.SetUserVersion(ctx, lib.DB(), schemaVersion+1))
	require.NoError(t, lib.Close())

	_, err = Open(ctx, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer")
}

func TestOpenRejectsDeepLibraryPath(t *testing.T) {
	t.Parallel()

	// Deep enough that no record directory could fit under it. The
	// check runs before anything touches the filesystem, so the path
	// never needs to exist.
	root := filepath.Join(t.TempDir(), strings.Repeat("d", 4100))
	cfg, err := config.New(root)
	require.NoError(t, err)
	cfg.DatabaseConnectRetryDelay = 0

	_, err = Open(context.Background(), cfg)
	require.Error(t, err)
	assert.Equal(t, errcodes.CodePathTooLong, errcodes.Code(err))

	_, statErr := os.Stat(root)
	assert.True(t, os.IsNotExist(statErr))
}

func TestUUIDIsLazyAndStable(t *testing.T) {
	t.Parallel()

	lib := openTestLibrary(t)
	ctx := context.Background()

	first, err := lib.UUID(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := lib.UUID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCreateAssignsPathAndDirectory(t *testing.T) {
	t.Parallel()

	lib := openTestLibrary(t)
	ctx := context.Background()

	record, err := lib.Create(ctx, CreateOptions{
		Title:   "The Dispossessed",
		Authors: []string{"Ursula K. Le Guin"},
	})
	require.NoError(t, err)

	assert.NotZero(t, record.ID)
	assert.NotEmpty(t, record.UUID)
	require.NotNil(t, record.Sort)
	assert.Equal(t, "Dispossessed, The", *record.Sort)
	assert.Equal(t, fmt.Sprintf("Ursula K. Le Guin/The Dispossessed (%d)", record.ID), record.Path)

	info, err := os.Stat(filepath.Join(lib.Path(), filepath.FromSlash(record.Path)))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCreateDefaultsUnknown(t *testing.T) {
	t.Parallel()

	lib := openTestLibrary(t)

	record, err := lib.Create(context.Background(), CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Unknown", record.Title)
	assert.True(t, strings.HasPrefix(record.Path, "Unknown/Unknown ("))
}

func TestGetUnknownRecord(t *testing.T) {
	t.Parallel()

	lib := openTestLibrary(t)

	_, err := lib.Get(context.Background(), 9999)
	assert.Equal(t, errcodes.CodeNotFound, errcodes.Code(err))
}

func TestSetFieldTags(t *testing.T) {
	t.Parallel()

	lib := openTestLibrary(t)
	ctx := context.Background()

	record, err := lib.Create(ctx, CreateOptions{Title: "Annals", Authors: []string{"Tacitus"}})
	require.NoError(t, err)

	require.NoError(t, lib.SetField(ctx, record.ID, fields.FieldTags, "history, rome"))

	val, err := lib.GetField(ctx, record.ID, fields.FieldTags)
	require.NoError(t, err)
	assert.Equal(t, []string{"history", "rome"}, val)

	updated, err := lib.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.True(t, updated.LastModified.After(record.LastModified))
}

func TestSetFieldTitleMovesDirectory(t *testing.T) {
	t.Parallel()

	lib := openTestLibrary(t)
	ctx := context.Background()

	record, err := lib.Create(ctx, CreateOptions{Title: "Draft", Authors: []string{"Anne Carson"}})
	require.NoError(t, err)
	oldDir := filepath.Join(lib.Path(), filepath.FromSlash(record.Path))

	require.NoError(t, lib.SetField(ctx, record.ID, fields.FieldTitle, "Autobiography of Red"))

	updated, err := lib.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("Anne Carson/Autobiography of Red (%d)", record.ID), updated.Path)

	_, err = os.Stat(filepath.Join(lib.Path(), filepath.FromSlash(updated.Path)))
	assert.NoError(t, err)
	_, err = os.Stat(oldDir)
	assert.True(t, os.IsNotExist(err))
}

func TestSetFieldAuthorsRefreshesSort(t *testing.T) {
	t.Parallel()

	lib := openTestLibrary(t)
	ctx := context.Background()

	record, err := lib.Create(ctx, CreateOptions{Title: "Essays", Authors: []string{"Michel de Montaigne"}})
	require.NoError(t, err)

	require.NoError(t, lib.SetField(ctx, record.ID, fields.FieldAuthors, []string{"Virginia Woolf", "Leonard Woolf"}))

	updated, err := lib.Get(ctx, record.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.AuthorSort)
	assert.Equal(t, "Woolf, Virginia & Woolf, Leonard", *updated.AuthorSort)
	assert.True(t, strings.HasPrefix(updated.Path, "Virginia Woolf/"))
}

func TestSetFieldRejectsReadOnly(t *testing.T) {
	t.Parallel()

	lib := openTestLibrary(t)
	ctx := context.Background()

	record, err := lib.Create(ctx, CreateOptions{Title: "X", Authors: []string{"Y"}})
	require.NoError(t, err)

	err = lib.SetField(ctx, record.ID, fields.FieldUUID, "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not settable")
}

func TestDeleteRemovesRowsAndTree(t *testing.T) {
	t.Parallel()

	lib := openTestLibrary(t)
	ctx := context.Background()

	record, err := lib.Create(ctx, CreateOptions{Title: "Gone", Authors: []string{"Nobody"}})
	require.NoError(t, err)
	require.NoError(t, lib.SetField(ctx, record.ID, fields.FieldTags, "ephemera"))
	dir := filepath.Join(lib.Path(), filepath.FromSlash(record.Path))

	require.NoError(t, lib.Delete(ctx, record.ID))

	_, err = lib.Get(ctx, record.ID)
	assert.Equal(t, errcodes.CodeNotFound, errcodes.Code(err))

	var linkCount int
	err = lib.DB().NewRaw("SELECT COUNT(*) FROM records_tags_link WHERE record = ?", record.ID).Scan(ctx, &linkCount)
	require.NoError(t, err)
	assert.Zero(t, linkCount)

	// Default policy trashes the tree instead of removing it outright.
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
	entries, err := os.ReadDir(lib.Trash.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPluginDataRoundTrip(t *testing.T) {
	t.Parallel()

	lib := openTestLibrary(t)
	ctx := context.Background()

	record, err := lib.Create(ctx, CreateOptions{Title: "Host", Authors: []string{"A"}})
	require.NoError(t, err)

	require.NoError(t, lib.SetPluginData(ctx, record.ID, "annotator", map[string]any{"page": 12}))
	require.NoError(t, lib.SetPluginData(ctx, record.ID, "annotator", map[string]any{"page": 13}))

	var out map[string]any
	require.NoError(t, lib.GetPluginData(ctx, record.ID, "annotator", &out))
	assert.Equal(t, float64(13), out["page"])

	require.NoError(t, lib.DeletePluginData(ctx, record.ID, "annotator"))
	err = lib.GetPluginData(ctx, record.ID, "annotator", &out)
	assert.Equal(t, errcodes.CodeNotFound, errcodes.Code(err))
}

func TestIdentifiers(t *testing.T) {
	t.Parallel()

	lib := openTestLibrary(t)
	ctx := context.Background()

	record, err := lib.Create(ctx, CreateOptions{Title: "Cited", Authors: []string{"C"}})
	require.NoError(t, err)

	require.NoError(t, lib.SetIdentifier(ctx, record.ID, "ISBN", "9780441007318"))
	require.NoError(t, lib.SetIdentifier(ctx, record.ID, "doi", "10.1000/x"))
	require.NoError(t, lib.SetIdentifier(ctx, record.ID, "isbn", "9780143111597"))

	ids, err := lib.Identifiers(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"isbn": "9780143111597",
		"doi":  "10.1000/x",
	}, ids)

	// An empty value removes the identifier.
	require.NoError(t, lib.SetIdentifier(ctx, record.ID, "doi", ""))
	ids, err = lib.Identifiers(ctx, record.ID)
	require.NoError(t, err)
	assert.NotContains(t, ids, "doi")
}

func TestMetadataBackup(t *testing.T) {
	t.Parallel()

	lib := openTestLibrary(t)
	ctx := context.Background()

	record, err := lib.Create(ctx, CreateOptions{Title: "Kindred", Authors: []string{"Octavia E. Butler"}})
	require.NoError(t, err)
	require.NoError(t, lib.SetField(ctx, record.ID, fields.FieldTags, "time travel"))

	require.NoError(t, lib.WriteMetadataBackup(ctx, record.ID))

	raw, err := lib.ReadMetadataBackup(ctx, record.ID)
	require.NoError(t, err)
	content := string(raw)
	assert.Contains(t, content, "<dc:title>Kindred</dc:title>")
	assert.Contains(t, content, "<dc:creator>Octavia E. Butler</dc:creator>")
	assert.Contains(t, content, "<dc:subject>time travel</dc:subject>")
	assert.Contains(t, content, record.UUID)
}

func TestReopenKeepsState(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	cfg, err := config.New(root)
	require.NoError(t, err)
	cfg.DatabaseConnectRetryDelay = 0

	ctx := context.Background()
	lib, err := Open(ctx, cfg)
	require.NoError(t, err)

	record, err := lib.Create(ctx, CreateOptions{Title: "Persisted", Authors: []string{"B"}})
	require.NoError(t, err)
	id, err := lib.UUID(ctx)
	require.NoError(t, err)
	require.NoError(t, lib.Close())

	lib2, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer lib2.Close()

	again, err := lib2.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, "Persisted", again.Title)

	id2, err := lib2.UUID(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, id2)
}

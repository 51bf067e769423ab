package pathsync

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioreads/folio/pkg/errcodes"
	"github.com/folioreads/folio/pkg/fileutils"
)

func testContext() context.Context {
	return logger.New().WithContext(context.Background())
}

func setupSync(t *testing.T) (*Synchronizer, string) {
	t.Helper()

	root := t.TempDir()
	return NewSynchronizer(root, fileutils.NewTrash(root), true, nil), root
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

type persistRecorder struct {
	calls int
	path  string
	stem  string
	fail  error
}

func (p *persistRecorder) persist(newPath, newStem string) error {
	if p.fail != nil {
		return p.fail
	}
	p.calls++
	p.path = newPath
	p.stem = newStem
	return nil
}

func TestUpdatePathCreatesDirectoryForNewRecord(t *testing.T) {
	t.Parallel()
	sync, root := setupSync(t)
	rec := &persistRecorder{}

	res, err := sync.UpdatePath(testContext(), Request{
		RecordID: 7, Title: "Foo", Author: "Bar",
	}, rec.persist)
	require.NoError(t, err)

	assert.Equal(t, "Bar/Foo (7)", res.Path)
	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, "Bar/Foo (7)", rec.path)
	assert.DirExists(t, filepath.Join(root, "Bar", "Foo (7)"))
}

func TestUpdatePathIdempotentFastExit(t *testing.T) {
	t.Parallel()
	sync, _ := setupSync(t)
	rec := &persistRecorder{}
	ctx := testContext()

	req := Request{RecordID: 7, Title: "Foo", Author: "Bar"}
	res, err := sync.UpdatePath(ctx, req, rec.persist)
	require.NoError(t, err)

	// Second call with unchanged metadata performs no writes at all.
	req.CurrentPath = res.Path
	res2, err := sync.UpdatePath(ctx, req, rec.persist)
	require.NoError(t, err)
	assert.Equal(t, res.Path, res2.Path)
	assert.False(t, res2.Moved)
	assert.Equal(t, 1, rec.calls)
}

func TestUpdatePathRelocatesFiles(t *testing.T) {
	t.Parallel()
	sync, root := setupSync(t)
	rec := &persistRecorder{}
	ctx := testContext()

	oldDir := filepath.Join(root, "Bar", "Foo (7)")
	oldStem := ConstructFileName("Foo", "Bar", 5)
	writeFile(t, filepath.Join(oldDir, oldStem+".epub"), "book body")
	writeFile(t, filepath.Join(oldDir, "cover.jpg"), "cover bytes")

	res, err := sync.UpdatePath(ctx, Request{
		RecordID: 7, Title: "Foo2", Author: "Bar",
		CurrentPath: "Bar/Foo (7)",
		Formats:     []FormatRef{{Format: "EPUB", Stem: oldStem}},
	}, rec.persist)
	require.NoError(t, err)

	assert.Equal(t, "Bar/Foo2 (7)", res.Path)
	assert.True(t, res.Moved)
	assert.Equal(t, "Bar/Foo2 (7)", rec.path)

	newDir := filepath.Join(root, "Bar", "Foo2 (7)")
	moved, err := os.ReadFile(filepath.Join(newDir, res.Stem+".epub"))
	require.NoError(t, err)
	assert.Equal(t, "book body", string(moved))
	assert.FileExists(t, filepath.Join(newDir, "cover.jpg"))

	// The old record directory is gone.
	_, err = os.Stat(oldDir)
	assert.True(t, os.IsNotExist(err))
}

func TestUpdatePathRemovesEmptyAuthorDir(t *testing.T) {
	t.Parallel()
	sync, root := setupSync(t)
	rec := &persistRecorder{}
	ctx := testContext()

	oldDir := filepath.Join(root, "Old Author", "Title (3)")
	stem := ConstructFileName("Title", "Old Author", 4)
	writeFile(t, filepath.Join(oldDir, stem+".txt"), "x")

	_, err := sync.UpdatePath(ctx, Request{
		RecordID: 3, Title: "Title", Author: "New Author",
		CurrentPath: "Old Author/Title (3)",
		Formats:     []FormatRef{{Format: "TXT", Stem: stem}},
	}, rec.persist)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, "Old Author"))
	assert.True(t, os.IsNotExist(err))
	assert.DirExists(t, filepath.Join(root, "New Author", "Title (3)"))
}

// failingMover fails every copy, standing in for a handle held by another
// process that never lets go.
type failingMover struct{}

type failingHold struct {
	names []string
}

func (failingMover) Hold(dir string) (fileutils.FolderHold, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	hold := &failingHold{}
	for _, e := range entries {
		if !e.IsDir() {
			hold.names = append(hold.names, e.Name())
		}
	}
	return hold, nil
}

func (h *failingHold) Names() []string            { return h.names }
func (h *failingHold) CopyFile(_, _ string) error { return errors.New("sharing violation") }
func (h *failingHold) DeleteOriginals() error     { return nil }
func (h *failingHold) Release()                   {}

func TestUpdatePathFailedCopyLeavesStateUnchanged(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	sync := NewSynchronizer(root, fileutils.NewTrash(root), true, failingMover{})
	rec := &persistRecorder{}
	ctx := testContext()

	oldDir := filepath.Join(root, "Bar", "Foo (7)")
	oldStem := ConstructFileName("Foo", "Bar", 5)
	writeFile(t, filepath.Join(oldDir, oldStem+".epub"), "book body")

	_, err := sync.UpdatePath(ctx, Request{
		RecordID: 7, Title: "Foo2", Author: "Bar",
		CurrentPath: "Bar/Foo (7)",
		Formats:     []FormatRef{{Format: "EPUB", Stem: oldStem}},
	}, rec.persist)
	require.Error(t, err)

	// Metadata was never touched and the source files are intact.
	assert.Equal(t, 0, rec.calls)
	assert.FileExists(t, filepath.Join(oldDir, oldStem+".epub"))
	_, statErr := os.Stat(filepath.Join(root, "Bar", "Foo2 (7)"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestUpdatePathPersistFailureRollsBackCopies(t *testing.T) {
	t.Parallel()
	sync, root := setupSync(t)
	rec := &persistRecorder{fail: errors.New("database is locked")}
	ctx := testContext()

	oldDir := filepath.Join(root, "Bar", "Foo (7)")
	oldStem := ConstructFileName("Foo", "Bar", 5)
	writeFile(t, filepath.Join(oldDir, oldStem+".epub"), "book body")

	_, err := sync.UpdatePath(ctx, Request{
		RecordID: 7, Title: "Foo2", Author: "Bar",
		CurrentPath: "Bar/Foo (7)",
		Formats:     []FormatRef{{Format: "EPUB", Stem: oldStem}},
	}, rec.persist)
	require.Error(t, err)

	assert.FileExists(t, filepath.Join(oldDir, oldStem+".epub"))
	_, statErr := os.Stat(filepath.Join(root, "Bar", "Foo2 (7)"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestUpdatePathTooLong(t *testing.T) {
	sync, _ := setupSync(t)
	rec := &persistRecorder{}

	saved := totalPathLimit
	totalPathLimit = 20
	t.Cleanup(func() { totalPathLimit = saved })

	_, err := sync.UpdatePath(testContext(), Request{
		RecordID: 7, Title: "A Very Long Title Indeed", Author: "Somebody",
	}, rec.persist)
	assert.Equal(t, errcodes.CodePathTooLong, errcodes.Code(err))
	assert.Equal(t, 0, rec.calls)
}

func TestValidateRoot(t *testing.T) {
	saved := totalPathLimit
	totalPathLimit = 2*segmentLimit + 40
	t.Cleanup(func() { totalPathLimit = saved })

	assert.NoError(t, ValidateRoot("/lib/"+strings.Repeat("d", 30)))

	err := ValidateRoot("/lib/" + strings.Repeat("d", 60))
	assert.Equal(t, errcodes.CodePathTooLong, errcodes.Code(err))
}

func TestReconcileCaseRenamesSegments(t *testing.T) {
	t.Parallel()
	sync, root := setupSync(t)

	writeFile(t, filepath.Join(root, "bar", "foo (7)", "file.txt"), "x")

	require.NoError(t, sync.reconcileCase("bar/foo (7)", "Bar/Foo (7)"))
	assert.FileExists(t, filepath.Join(root, "Bar", "Foo (7)", "file.txt"))
}

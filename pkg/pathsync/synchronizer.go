package pathsync

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"

	"github.com/folioreads/folio/pkg/errcodes"
	"github.com/folioreads/folio/pkg/fileutils"
)

// totalPathLimit bounds the absolute target directory length on the
// platform with a short total-path budget.
var totalPathLimit = func() int {
	if runtime.GOOS == "windows" {
		return 250
	}
	return 4000
}()

// CoverName is the cover file carried along during a move.
const CoverName = "cover.jpg"

// ValidateRoot rejects a library root so deep that a record directory
// underneath it could not fit the platform path budget even after
// segment truncation. Checked at library open so the failure surfaces
// before any record exists.
func ValidateRoot(root string) error {
	if len(root)+2*segmentLimit+2 > totalPathLimit {
		return errcodes.PathTooLong(totalPathLimit)
	}
	return nil
}

// FormatRef names one attached format and the stem its file currently has
// on disk.
type FormatRef struct {
	Format string
	Stem   string
}

// Request carries everything UpdatePath needs about the record. The
// caller reads it from persisted metadata; this package never queries
// storage itself.
type Request struct {
	RecordID    int64
	Title       string
	Author      string
	CurrentPath string
	Formats     []FormatRef
}

// Result reports the outcome of a sync.
type Result struct {
	Path  string
	Stem  string
	Moved bool
}

// Synchronizer relocates record directories when metadata renames their
// canonical path. Not safe for concurrent calls against the same record;
// callers serialize per-record structural changes.
type Synchronizer struct {
	root      string
	trash     *fileutils.Trash
	permanent bool
	mover     fileutils.AtomicMover
}

func NewSynchronizer(root string, trash *fileutils.Trash, permanent bool, mover fileutils.AtomicMover) *Synchronizer {
	if mover == nil {
		mover = fileutils.NewFolderMover()
	}
	return &Synchronizer{root: root, trash: trash, permanent: permanent, mover: mover}
}

// UpdatePath recomputes the canonical path and stem for the record and
// migrates files when they changed. persist is called with the new values
// only after every file copy has succeeded, never before; if persist
// fails the copies are rolled back and the old state stays authoritative.
func (s *Synchronizer) UpdatePath(ctx context.Context, req Request, persist func(newPath, newStem string) error) (*Result, error) {
	log := logger.FromContext(ctx)

	newPath := ConstructPathName(req.RecordID, req.Title, req.Author)
	newStem := ConstructFileName(req.Title, req.Author, maxExtLen(req.Formats)+1)

	stemsUnchanged := true
	for _, ref := range req.Formats {
		if ref.Stem != newStem {
			stemsUnchanged = false
			break
		}
	}

	// Idempotent fast exit: nothing to do, no I/O.
	if req.CurrentPath == newPath && stemsUnchanged {
		return &Result{Path: newPath, Stem: newStem}, nil
	}

	targetDir := filepath.Join(s.root, filepath.FromSlash(newPath))
	if len(targetDir) > totalPathLimit {
		return nil, errcodes.PathTooLong(totalPathLimit)
	}

	var srcDir string
	if req.CurrentPath != "" {
		srcDir = filepath.Join(s.root, filepath.FromSlash(req.CurrentPath))
	}

	caseOnly := req.CurrentPath != "" &&
		newPath != req.CurrentPath &&
		strings.EqualFold(newPath, req.CurrentPath) &&
		!fileutils.IsCaseSensitive(s.root)

	switch {
	case caseOnly:
		if err := persist(newPath, newStem); err != nil {
			return nil, err
		}
		// Best-effort: a failed segment rename leaves a case mismatch
		// that the next sync picks up again.
		if err := s.reconcileCase(req.CurrentPath, newPath); err != nil {
			log.Err(err).Warn("case-only rename left a mismatch")
		}
		s.renameStems(targetDir, req.Formats, newStem)
		return &Result{Path: newPath, Stem: newStem}, nil

	case srcDir == "" || !dirExists(srcDir):
		if err := os.MkdirAll(targetDir, 0o755); err != nil {
			return nil, errors.WithStack(err)
		}
		if err := persist(newPath, newStem); err != nil {
			return nil, err
		}
		return &Result{Path: newPath, Stem: newStem}, nil

	case srcDir == targetDir:
		// Only the stems changed. Rename in place, rolling back on
		// failure so the directory never holds a mix of old and new.
		renamed, err := s.renameStemsStrict(targetDir, req.Formats, newStem)
		if err != nil {
			for _, r := range renamed {
				os.Rename(r[1], r[0])
			}
			return nil, err
		}
		if err := persist(newPath, newStem); err != nil {
			for _, r := range renamed {
				os.Rename(r[1], r[0])
			}
			return nil, err
		}
		return &Result{Path: newPath, Stem: newStem}, nil

	default:
		return s.move(ctx, req, srcDir, targetDir, newPath, newStem, persist)
	}
}

// move copies everything into the target directory, persists, then
// retires the source tree.
func (s *Synchronizer) move(ctx context.Context, req Request, srcDir, targetDir, newPath, newStem string, persist func(string, string) error) (*Result, error) {
	log := logger.FromContext(ctx)

	hold, err := s.mover.Hold(srcDir)
	if err != nil {
		return nil, err
	}
	defer hold.Release()

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return nil, errors.WithStack(err)
	}

	held := map[string]bool{}
	for _, name := range hold.Names() {
		held[name] = true
	}

	var copied []string
	cleanup := func() {
		for _, path := range copied {
			os.Remove(path)
		}
		os.Remove(targetDir)
	}

	copyOne := func(srcName, dstName string) error {
		if !held[srcName] {
			// Metadata references a file that is not on disk; tolerated
			// until the caller resolves the divergence.
			return nil
		}
		dst := filepath.Join(targetDir, dstName)
		err := fileutils.WithRetry(func() error {
			return hold.CopyFile(srcName, dst)
		})
		if err != nil {
			return err
		}
		copied = append(copied, dst)
		return nil
	}

	if err := copyOne(CoverName, CoverName); err != nil {
		cleanup()
		return nil, err
	}
	for _, ref := range req.Formats {
		ext := strings.ToLower(ref.Format)
		if err := copyOne(ref.Stem+"."+ext, newStem+"."+ext); err != nil {
			cleanup()
			return nil, err
		}
	}

	if err := persist(newPath, newStem); err != nil {
		cleanup()
		return nil, err
	}

	// The copies are durable and metadata points at them; retire the old
	// tree.
	hold.Release()
	if err := s.trash.DeleteTree(srcDir, s.permanent); err != nil {
		log.Err(err).Warn("could not remove old record directory")
	}
	s.removeEmptyParent(srcDir)

	return &Result{Path: newPath, Stem: newStem, Moved: true}, nil
}

// reconcileCase renames each path segment whose case differs, in place.
func (s *Synchronizer) reconcileCase(oldRel, newRel string) error {
	oldSegs := strings.Split(oldRel, "/")
	newSegs := strings.Split(newRel, "/")
	if len(oldSegs) != len(newSegs) {
		return errors.New("segment count changed in case-only rename")
	}

	base := s.root
	for i := range oldSegs {
		if oldSegs[i] != newSegs[i] {
			from := filepath.Join(base, oldSegs[i])
			to := filepath.Join(base, newSegs[i])
			err := fileutils.WithRetry(func() error {
				return os.Rename(from, to)
			})
			if err != nil {
				return errors.WithStack(err)
			}
		}
		base = filepath.Join(base, newSegs[i])
	}
	return nil
}

// renameStems renames format files to the new stem, best-effort.
func (s *Synchronizer) renameStems(dir string, refs []FormatRef, newStem string) {
	for _, ref := range refs {
		if ref.Stem == newStem {
			continue
		}
		ext := strings.ToLower(ref.Format)
		os.Rename(filepath.Join(dir, ref.Stem+"."+ext), filepath.Join(dir, newStem+"."+ext))
	}
}

// renameStemsStrict renames format files and reports each performed
// rename as an [old, new] pair so the caller can roll back.
func (s *Synchronizer) renameStemsStrict(dir string, refs []FormatRef, newStem string) ([][2]string, error) {
	var renamed [][2]string
	for _, ref := range refs {
		if ref.Stem == newStem {
			continue
		}
		ext := strings.ToLower(ref.Format)
		from := filepath.Join(dir, ref.Stem+"."+ext)
		to := filepath.Join(dir, newStem+"."+ext)
		if _, err := os.Stat(from); os.IsNotExist(err) {
			continue
		}
		err := fileutils.WithRetry(func() error {
			return os.Rename(from, to)
		})
		if err != nil {
			return renamed, errors.WithStack(err)
		}
		renamed = append(renamed, [2]string{from, to})
	}
	return renamed, nil
}

// removeEmptyParent deletes the author directory once its last record
// moves out. The library root itself is never touched.
func (s *Synchronizer) removeEmptyParent(dir string) {
	parent := filepath.Dir(dir)
	if parent == s.root || parent == filepath.Dir(s.root) {
		return
	}
	entries, err := os.ReadDir(parent)
	if err != nil || len(entries) > 0 {
		return
	}
	os.Remove(parent)
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func maxExtLen(refs []FormatRef) int {
	max := 3
	for _, ref := range refs {
		if len(ref.Format) > max {
			max = len(ref.Format)
		}
	}
	return max
}

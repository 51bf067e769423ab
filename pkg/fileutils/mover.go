package fileutils

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// FolderHold is an acquired hold on every file in a directory. Copies read
// through the held handles, so files stay readable even if another process
// renames or deletes the directory entries mid-move.
type FolderHold interface {
	// CopyFile copies the held file with the given base name to dst.
	CopyFile(name, dst string) error
	// Names lists the held file base names.
	Names() []string
	// DeleteOriginals removes the held files after a successful copy of
	// all of them.
	DeleteOriginals() error
	// Release closes all held handles. Safe to call more than once.
	Release()
}

// AtomicMover acquires holds on directories about to be moved. The default
// implementation keeps open handles for the duration of the move; platform
// builds that need to enumerate and release other processes' handles can
// substitute their own.
type AtomicMover interface {
	Hold(dir string) (FolderHold, error)
}

type folderMover struct{}

// NewFolderMover returns the default AtomicMover.
func NewFolderMover() AtomicMover {
	return folderMover{}
}

func (folderMover) Hold(dir string) (FolderHold, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	hold := &folderHold{files: map[string]*os.File{}}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		f, err := os.Open(filepath.Join(dir, entry.Name()))
		if err != nil {
			hold.Release()
			return nil, errors.WithStack(err)
		}
		hold.files[entry.Name()] = f
		hold.order = append(hold.order, entry.Name())
	}
	return hold, nil
}

type folderHold struct {
	files map[string]*os.File
	order []string
}

func (h *folderHold) Names() []string {
	return append([]string(nil), h.order...)
}

func (h *folderHold) CopyFile(name, dst string) error {
	src, ok := h.files[name]
	if !ok {
		return errors.Errorf("no held file named %q", name)
	}

	// Prefer a hardlink when the destination is on the same device.
	// When linking fails (cross-device, source entry already renamed
	// away, filesystem without link support) fall back to copying
	// through the held handle.
	if err := os.Link(src.Name(), dst); err == nil {
		return nil
	}

	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return errors.WithStack(err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return errors.WithStack(err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dst)
		return errors.WithStack(err)
	}
	return errors.WithStack(out.Close())
}

func (h *folderHold) DeleteOriginals() error {
	var firstErr error
	for name, f := range h.files {
		path := f.Name()
		f.Close()
		delete(h.files, name)
		if err := os.Remove(path); err != nil && firstErr == nil {
			firstErr = errors.WithStack(err)
		}
	}
	return firstErr
}

func (h *folderHold) Release() {
	for name, f := range h.files {
		f.Close()
		delete(h.files, name)
	}
}

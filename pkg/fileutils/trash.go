package fileutils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// TrashDirName is the reversible-delete holding area inside the library
// root. Trees deleted without the permanent flag are moved here instead of
// being removed.
const TrashDirName = ".folio-trash"

// Trash implements the send-to-trash versus permanent-delete policy for a
// library root.
type Trash struct {
	root string
}

func NewTrash(root string) *Trash {
	return &Trash{root: root}
}

// Dir returns the on-disk trash directory.
func (t *Trash) Dir() string {
	return filepath.Join(t.root, TrashDirName)
}

// guard rejects deleting the library root itself or any of its ancestors.
func (t *Trash) guard(path string) error {
	rootAbs, err := filepath.Abs(t.root)
	if err != nil {
		return errors.WithStack(err)
	}
	pathAbs, err := filepath.Abs(path)
	if err != nil {
		return errors.WithStack(err)
	}
	if rootAbs == pathAbs || strings.HasPrefix(rootAbs+string(filepath.Separator), pathAbs+string(filepath.Separator)) {
		return errors.Errorf("refusing to delete %s: contains the library root", path)
	}
	return nil
}

// DeleteTree removes the directory tree at path. With permanent=false the
// tree is moved into the trash directory; if that move fails it is removed
// permanently rather than left behind.
func (t *Trash) DeleteTree(path string, permanent bool) error {
	if err := t.guard(path); err != nil {
		return err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if !permanent {
		if err := t.moveToTrash(path); err == nil {
			return nil
		}
	}
	return errors.WithStack(os.RemoveAll(path))
}

// DeleteFile removes a single file, honoring the same trash policy as
// DeleteTree.
func (t *Trash) DeleteFile(path string, permanent bool) error {
	if err := t.guard(path); err != nil {
		return err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if !permanent {
		if err := t.moveToTrash(path); err == nil {
			return nil
		}
	}
	return errors.WithStack(os.Remove(path))
}

// Empty permanently discards everything previously sent to the trash.
func (t *Trash) Empty() error {
	return errors.WithStack(os.RemoveAll(t.Dir()))
}

func (t *Trash) moveToTrash(path string) error {
	dest := filepath.Join(t.Dir(), fmt.Sprintf("%s-%d", filepath.Base(path), time.Now().UnixNano()))
	if err := os.MkdirAll(t.Dir(), 0755); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.Rename(path, dest))
}

package fileutils

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
)

// fsRetryDelay is how long to wait before the single retry of a filesystem
// operation that may have failed because another process still holds a
// handle on the file.
const fsRetryDelay = 200 * time.Millisecond

// WithRetry runs fn and, if it fails, retries it exactly once after a short
// fixed delay. Used around operations that can transiently fail while
// another process holds the file open.
func WithRetry(fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	time.Sleep(fsRetryDelay)
	return fn()
}

// SameFile reports whether a and b refer to the same underlying file.
// Missing files are never the same file.
func SameFile(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}

// CopyFile copies a file from source to destination, preserving the file
// mode.
func CopyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return errors.WithStack(err)
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return errors.WithStack(err)
	}
	defer destFile.Close()

	_, err = io.Copy(destFile, sourceFile)
	if err != nil {
		return errors.WithStack(err)
	}

	sourceInfo, err := sourceFile.Stat()
	if err != nil {
		return errors.WithStack(err)
	}

	err = destFile.Chmod(sourceInfo.Mode())
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// HardlinkOrCopy tries to hardlink src to dst and falls back to a full copy
// when linking fails (different volume, filesystem without link support).
func HardlinkOrCopy(src, dst string) error {
	if err := os.Link(src, dst); err == nil {
		return nil
	}
	return CopyFile(src, dst)
}

// MoveFile safely moves a file from source to destination. A plain rename
// is tried first; across volumes it degrades to copy + delete.
func MoveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}

	err = CopyFile(src, dst)
	if err != nil {
		return errors.WithStack(err)
	}

	err = os.Remove(src)
	if err != nil {
		// If we can't remove the source, clean up the destination so we
		// don't leave two live copies.
		os.Remove(dst)
		return errors.WithStack(err)
	}

	return nil
}

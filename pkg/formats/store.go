package formats

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"

	"github.com/folioreads/folio/pkg/database"
	"github.com/folioreads/folio/pkg/errcodes"
	"github.com/folioreads/folio/pkg/fileutils"
	"github.com/folioreads/folio/pkg/models"
	"github.com/folioreads/folio/pkg/pathsync"
)

// hashChunkSize is the read size used for streaming content hashes.
const hashChunkSize = 1 << 20

// Store manages a record's format files and their metadata rows. Paths are
// always taken from the caller because the persisted record path, not a
// recomputed one, decides where files live.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db}
}

// normalizeFormat uppercases the format tag for storage.
func normalizeFormat(format string) string {
	return strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(format), "."))
}

// fileName builds the on-disk name for a stem and format tag.
func fileName(stem, format string) string {
	return stem + "." + strings.ToLower(format)
}

// AddFormat writes src to "<dirPath>/<stem>.<format>" and upserts the
// metadata row. When src already is that exact file the write is skipped
// and only the existing size is reported.
func (s *Store) AddFormat(ctx context.Context, recordID int64, format string, src io.Reader, title, author, dirPath string) (int64, string, error) {
	format = normalizeFormat(format)
	stem := pathsync.ConstructFileName(title, author, len(format)+1)
	dest := filepath.Join(dirPath, fileName(stem, format))

	var size int64
	var mtype string
	if f, ok := src.(*os.File); ok && fileutils.SameFile(f.Name(), dest) {
		info, err := os.Stat(dest)
		if err != nil {
			return 0, "", errors.WithStack(err)
		}
		size = info.Size()
		if detected, err := mimetype.DetectFile(dest); err == nil {
			mtype = detected.String()
		}
	} else {
		header := make([]byte, 3072)
		n, err := io.ReadFull(src, header)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, "", errors.WithStack(err)
		}
		mtype = mimetype.Detect(header[:n]).String()

		if err := os.MkdirAll(dirPath, 0o755); err != nil {
			return 0, "", errors.WithStack(err)
		}
		out, err := os.Create(dest)
		if err != nil {
			return 0, "", errors.WithStack(err)
		}
		size, err = io.Copy(out, io.MultiReader(bytes.NewReader(header[:n]), src))
		if err != nil {
			out.Close()
			os.Remove(dest)
			return 0, "", errors.WithStack(err)
		}
		if err := out.Close(); err != nil {
			return 0, "", errors.WithStack(err)
		}
	}

	row := &models.Format{
		RecordID:         recordID,
		Format:           format,
		UncompressedSize: size,
		Name:             stem,
		Mimetype:         mtype,
	}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (record, format) DO UPDATE").
		Set("uncompressed_size = EXCLUDED.uncompressed_size").
		Set("name = EXCLUDED.name").
		Set("mimetype = EXCLUDED.mimetype").
		Exec(ctx)
	if err != nil {
		return 0, "", database.MapError(err, "add_format")
	}
	return size, stem, nil
}

// FormatMetadata returns the stored row for a record's format.
func (s *Store) FormatMetadata(ctx context.Context, recordID int64, format string) (*models.Format, error) {
	format = normalizeFormat(format)

	row := &models.Format{}
	err := s.db.NewSelect().
		Model(row).
		Where("record = ?", recordID).
		Where("format = ?", format).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NoSuchFormat(recordID, format)
		}
		return nil, errors.WithStack(err)
	}
	return row, nil
}

// Formats lists the format tags stored for a record.
func (s *Store) Formats(ctx context.Context, recordID int64) ([]string, error) {
	var tags []string
	err := s.db.NewSelect().
		Model((*models.Format)(nil)).
		Column("format").
		Where("record = ?", recordID).
		Order("format ASC").
		Scan(ctx, &tags)
	return tags, errors.WithStack(err)
}

// FormatAbsPath resolves the on-disk path of a format file. If the
// expected name is missing but a file with the right extension exists in
// the directory, it is adopted: renamed to the expected name and the
// metadata stem corrected. Returns NoSuchFormat when nothing usable is on
// disk.
func (s *Store) FormatAbsPath(ctx context.Context, recordID int64, format, dirPath string) (string, error) {
	row, err := s.FormatMetadata(ctx, recordID, format)
	if err != nil {
		return "", err
	}

	expected := filepath.Join(dirPath, fileName(row.Name, row.Format))
	if _, err := os.Stat(expected); err == nil {
		return expected, nil
	}

	// Metadata/filesystem divergence. Adopt a stray file with the right
	// extension if one exists.
	matches, err := filepath.Glob(filepath.Join(dirPath, "*."+strings.ToLower(row.Format)))
	if err != nil || len(matches) == 0 {
		return "", errcodes.NoSuchFormat(recordID, row.Format)
	}

	candidate := matches[0]
	renameErr := fileutils.WithRetry(func() error {
		return os.Rename(candidate, expected)
	})
	if renameErr != nil {
		// Still usable where it is.
		return candidate, nil
	}
	return expected, nil
}

// HasFormat reports whether the format exists in metadata and on disk.
func (s *Store) HasFormat(ctx context.Context, recordID int64, format, dirPath string) (bool, error) {
	_, err := s.FormatAbsPath(ctx, recordID, format, dirPath)
	if err != nil {
		if errcodes.Code(err) == errcodes.CodeNoSuchFormat {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// FormatHash computes the SHA-256 digest of the stored file in fixed-size
// chunks.
func (s *Store) FormatHash(ctx context.Context, recordID int64, format, dirPath string) (string, error) {
	path, err := s.FormatAbsPath(ctx, recordID, format, dirPath)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", errcodes.NoSuchFormat(recordID, normalizeFormat(format))
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", errors.WithStack(err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// RemoveFormat deletes the metadata row and sends the file to the trash,
// or removes it permanently when the library policy says so. A file
// already missing from disk is not an error.
func (s *Store) RemoveFormat(ctx context.Context, recordID int64, format, dirPath string, trash *fileutils.Trash, permanent bool) error {
	row, err := s.FormatMetadata(ctx, recordID, format)
	if err != nil {
		return err
	}

	_, err = s.db.NewDelete().
		Model((*models.Format)(nil)).
		Where("record = ?", recordID).
		Where("format = ?", row.Format).
		Exec(ctx)
	if err != nil {
		return database.MapError(err, "remove_format")
	}

	path := filepath.Join(dirPath, fileName(row.Name, row.Format))
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return trash.DeleteFile(path, permanent)
}

// CopyOptions selects one of the three copy destinations. Exactly one of
// Dest or DestPath is set; Mover and UseHardlink refine DestPath copies.
type CopyOptions struct {
	// Dest streams the file into a writable sink.
	Dest io.Writer
	// DestPath copies to a filesystem path.
	DestPath string
	// UseHardlink tries a hardlink first and falls back to a full copy.
	UseHardlink bool
	// Mover, when set, copies through an acquired folder hold so open
	// handles cannot break the transfer.
	Mover fileutils.AtomicMover
}

// CopyFormatTo copies the stored file to the chosen destination. Copying a
// path onto itself is a no-op.
func (s *Store) CopyFormatTo(ctx context.Context, recordID int64, format, dirPath string, opts CopyOptions) error {
	src, err := s.FormatAbsPath(ctx, recordID, format, dirPath)
	if err != nil {
		return err
	}

	if opts.Dest != nil {
		f, err := os.Open(src)
		if err != nil {
			return errcodes.NoSuchFormat(recordID, normalizeFormat(format))
		}
		defer f.Close()
		_, err = io.Copy(opts.Dest, f)
		return errors.WithStack(err)
	}

	if opts.DestPath == "" {
		return errors.New("copy destination required")
	}
	if fileutils.SameFile(src, opts.DestPath) {
		return nil
	}

	if opts.Mover != nil {
		hold, err := opts.Mover.Hold(filepath.Dir(src))
		if err != nil {
			return err
		}
		defer hold.Release()
		return hold.CopyFile(filepath.Base(src), opts.DestPath)
	}

	return fileutils.WithRetry(func() error {
		if opts.UseHardlink {
			return fileutils.HardlinkOrCopy(src, opts.DestPath)
		}
		return fileutils.CopyFile(src, opts.DestPath)
	})
}

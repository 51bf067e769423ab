package formats

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/folioreads/folio/pkg/database"
	"github.com/folioreads/folio/pkg/errcodes"
	"github.com/folioreads/folio/pkg/fileutils"
	"github.com/folioreads/folio/pkg/models"
)

// CoverFileName is the canonical cover name inside a record directory.
const CoverFileName = "cover.jpg"

const coverJPEGQuality = 90

// SetCover stores src as the record's cover. Non-JPEG images are
// re-encoded; the file lands atomically so a reader never sees a partial
// cover. The record's has_cover flag follows the write.
func (s *Store) SetCover(ctx context.Context, recordID int64, dirPath string, src io.Reader) error {
	data, err := io.ReadAll(src)
	if err != nil {
		return errors.WithStack(err)
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return errors.Errorf("cover data is %s, not an image", mtype.String())
	}

	if !mtype.Is("image/jpeg") {
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return errors.Wrap(err, "decode cover")
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: coverJPEGQuality}); err != nil {
			return errors.WithStack(err)
		}
		data = buf.Bytes()
	}

	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return errors.WithStack(err)
	}
	target := filepath.Join(dirPath, CoverFileName)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.WithStack(err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return errors.WithStack(err)
	}

	return s.setHasCover(ctx, recordID, true)
}

// CopyCoverTo streams the stored cover into dest. The boolean reports
// whether a cover existed.
func (s *Store) CopyCoverTo(ctx context.Context, recordID int64, dirPath string, dest io.Writer) (bool, error) {
	f, err := os.Open(filepath.Join(dirPath, CoverFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.WithStack(err)
	}
	defer f.Close()

	if _, err := io.Copy(dest, f); err != nil {
		return false, errors.WithStack(err)
	}
	return true, nil
}

// RemoveCover deletes the cover file and clears the record's flag.
func (s *Store) RemoveCover(ctx context.Context, recordID int64, dirPath string, trash *fileutils.Trash, permanent bool) error {
	path := filepath.Join(dirPath, CoverFileName)
	if _, err := os.Stat(path); err == nil {
		if err := trash.DeleteFile(path, permanent); err != nil {
			return err
		}
	}
	return s.setHasCover(ctx, recordID, false)
}

func (s *Store) setHasCover(ctx context.Context, recordID int64, has bool) error {
	res, err := s.db.NewUpdate().
		Model((*models.Record)(nil)).
		Set("has_cover = ?", has).
		Where("id = ?", recordID).
		Exec(ctx)
	if err != nil {
		return database.MapError(err, "set_cover")
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return errcodes.NotFound("record")
	}
	return errors.WithStack(err)
}

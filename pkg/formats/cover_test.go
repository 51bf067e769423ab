package formats

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioreads/folio/pkg/fileutils"
	"github.com/folioreads/folio/pkg/models"
)

func testImage(t *testing.T, encode func(*bytes.Buffer, image.Image) error) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 4, 6))
	for x := 0; x < 4; x++ {
		for y := 0; y < 6; y++ {
			img.Set(x, y, color.RGBA{R: uint8(40 * x), G: uint8(30 * y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, encode(&buf, img))
	return buf.Bytes()
}

func TestSetCoverReencodesToJPEG(t *testing.T) {
	t.Parallel()
	store, db, recordID := setupStore(t)
	ctx := context.Background()
	dir := t.TempDir()

	data := testImage(t, func(buf *bytes.Buffer, img image.Image) error {
		return png.Encode(buf, img)
	})
	require.NoError(t, store.SetCover(ctx, recordID, dir, bytes.NewReader(data)))

	stored, err := os.ReadFile(filepath.Join(dir, CoverFileName))
	require.NoError(t, err)
	_, format, err := image.Decode(bytes.NewReader(stored))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)

	record := &models.Record{}
	require.NoError(t, db.NewSelect().Model(record).Where("id = ?", recordID).Scan(ctx))
	assert.True(t, record.HasCover)
}

func TestSetCoverKeepsJPEGBytes(t *testing.T) {
	t.Parallel()
	store, _, recordID := setupStore(t)
	ctx := context.Background()
	dir := t.TempDir()

	data := testImage(t, func(buf *bytes.Buffer, img image.Image) error {
		return jpeg.Encode(buf, img, nil)
	})
	require.NoError(t, store.SetCover(ctx, recordID, dir, bytes.NewReader(data)))

	stored, err := os.ReadFile(filepath.Join(dir, CoverFileName))
	require.NoError(t, err)
	assert.Equal(t, data, stored)
}

func TestSetCoverRejectsNonImages(t *testing.T) {
	t.Parallel()
	store, _, recordID := setupStore(t)
	ctx := context.Background()

	err := store.SetCover(ctx, recordID, t.TempDir(), bytes.NewReader([]byte("plain text")))
	require.Error(t, err)
}

func TestCopyAndRemoveCover(t *testing.T) {
	t.Parallel()
	store, db, recordID := setupStore(t)
	ctx := context.Background()
	root := t.TempDir()
	dir := filepath.Join(root, "covers")
	trash := fileutils.NewTrash(root)

	var buf bytes.Buffer
	ok, err := store.CopyCoverTo(ctx, recordID, dir, &buf)
	require.NoError(t, err)
	assert.False(t, ok)

	data := testImage(t, func(buf *bytes.Buffer, img image.Image) error {
		return jpeg.Encode(buf, img, nil)
	})
	require.NoError(t, store.SetCover(ctx, recordID, dir, bytes.NewReader(data)))

	ok, err = store.CopyCoverTo(ctx, recordID, dir, &buf)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, data, buf.Bytes())

	require.NoError(t, store.RemoveCover(ctx, recordID, dir, trash, true))
	record := &models.Record{}
	require.NoError(t, db.NewSelect().Model(record).Where("id = ?", recordID).Scan(ctx))
	assert.False(t, record.HasCover)
	_, err = os.Stat(filepath.Join(dir, CoverFileName))
	assert.True(t, os.IsNotExist(err))
}

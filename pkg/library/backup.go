package library

import (
	"context"
	"encoding/xml"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/folioreads/folio/pkg/fields"
	"github.com/folioreads/folio/pkg/fileutils"
)

// MetadataBackupName is the per-record sidecar written next to the
// record's files. It lets external tools rebuild metadata if the database
// is lost.
const MetadataBackupName = "metadata.opf"

type opfPackage struct {
	XMLName  xml.Name    `xml:"package"`
	Version  string      `xml:"version,attr"`
	XMLNS    string      `xml:"xmlns,attr"`
	Metadata opfMetadata `xml:"metadata"`
}

type opfMetadata struct {
	XMLNSDC    string   `xml:"xmlns:dc,attr"`
	Title      string   `xml:"dc:title"`
	Creators   []string `xml:"dc:creator"`
	Identifier string   `xml:"dc:identifier"`
	Date       string   `xml:"dc:date,omitempty"`
	Publisher  string   `xml:"dc:publisher,omitempty"`
	Subjects   []string `xml:"dc:subject,omitempty"`
	Languages  []string `xml:"dc:language,omitempty"`
}

// WriteMetadataBackup renders the record's current metadata into the OPF
// sidecar in its directory. The write is atomic so a crash never leaves a
// truncated file.
func (l *Library) WriteMetadataBackup(ctx context.Context, recordID int64) error {
	record, err := l.ensureRecord(ctx, recordID)
	if err != nil {
		return err
	}
	dir, err := l.RecordDir(ctx, recordID)
	if err != nil {
		return err
	}

	authors, err := l.fieldStrings(ctx, recordID, fields.FieldAuthors)
	if err != nil {
		return err
	}
	tags, err := l.fieldStrings(ctx, recordID, fields.FieldTags)
	if err != nil {
		return err
	}
	langs, err := l.fieldStrings(ctx, recordID, fields.FieldLanguages)
	if err != nil {
		return err
	}
	var publisher string
	if v, err := l.GetField(ctx, recordID, fields.FieldPublisher); err != nil {
		return err
	} else if s, ok := v.(string); ok {
		publisher = s
	}

	pkg := opfPackage{
		Version: "2.0",
		XMLNS:   "http://www.idpf.org/2007/opf",
		Metadata: opfMetadata{
			XMLNSDC:    "http://purl.org/dc/elements/1.1/",
			Title:      record.Title,
			Creators:   authors,
			Identifier: record.UUID,
			Publisher:  publisher,
			Subjects:   tags,
			Languages:  langs,
		},
	}
	if !record.PubDate.IsZero() {
		pkg.Metadata.Date = record.PubDate.UTC().Format(time.RFC3339)
	}

	out, err := xml.MarshalIndent(pkg, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	out = append([]byte(xml.Header), out...)

	dest := filepath.Join(dir, MetadataBackupName)
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return errors.WithStack(err)
	}
	return fileutils.WithRetry(func() error {
		return errors.WithStack(os.Rename(tmp, dest))
	})
}

// ReadMetadataBackup returns the raw OPF sidecar for a record, or nil when
// none has been written.
func (l *Library) ReadMetadataBackup(ctx context.Context, recordID int64) ([]byte, error) {
	dir, err := l.RecordDir(ctx, recordID)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(filepath.Join(dir, MetadataBackupName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	return raw, errors.WithStack(err)
}

func (l *Library) fieldStrings(ctx context.Context, recordID int64, label string) ([]string, error) {
	v, err := l.GetField(ctx, recordID, label)
	if err != nil {
		return nil, err
	}
	items, _ := v.([]string)
	return items, nil
}

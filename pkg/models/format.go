package models

import (
	"github.com/uptrace/bun"
)

// Format is one stored file of a record. Name holds the filename stem
// without the extension; Format holds the uppercased extension.
type Format struct {
	bun.BaseModel `bun:"table:data,alias:d"`

	ID               int64  `bun:",pk,nullzero" json:"id"`
	RecordID         int64  `bun:"record" json:"record"`
	Format           string `json:"format"`
	UncompressedSize int64  `json:"uncompressed_size"`
	Name             string `json:"name"`
	Mimetype         string `json:"mimetype"`
}

type Comment struct {
	bun.BaseModel `bun:"table:comments,alias:c"`

	ID       int64  `bun:",pk,nullzero" json:"id"`
	RecordID int64  `bun:"record" json:"record"`
	Text     string `json:"text"`
}

type Identifier struct {
	bun.BaseModel `bun:"table:identifiers,alias:idf"`

	ID       int64  `bun:",pk,nullzero" json:"id"`
	RecordID int64  `bun:"record" json:"record"`
	Type     string `json:"type"`
	Val      string `json:"val"`
}

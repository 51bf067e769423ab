package models

import (
	"github.com/uptrace/bun"
)

type Author struct {
	bun.BaseModel `bun:"table:authors,alias:a"`

	ID   int64   `bun:",pk,nullzero" json:"id"`
	Name string  `json:"name"`
	Sort *string `json:"sort"`
	Link string  `json:"link"`
}

// RecordAuthorLink orders a record's authors. Position zero is the primary
// author used when building the record's directory path.
type RecordAuthorLink struct {
	bun.BaseModel `bun:"table:records_authors_link,alias:ral"`

	ID       int64 `bun:",pk,nullzero" json:"id"`
	RecordID int64 `bun:"record" json:"record"`
	AuthorID int64 `bun:"author" json:"author"`
	Position int   `json:"position"`
}

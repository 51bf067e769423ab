package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Record is a row in the records table, the hub of the library. Every
// taxonomy link, format row and custom column value hangs off its ID.
type Record struct {
	bun.BaseModel `bun:"table:records,alias:r"`

	ID           int64     `bun:",pk,nullzero" json:"id"`
	UUID         string    `bun:",nullzero" json:"uuid"`
	Title        string    `json:"title"`
	Sort         *string   `json:"sort"`
	Timestamp    time.Time `bun:",nullzero" json:"timestamp"`
	PubDate      time.Time `bun:"pubdate,nullzero" json:"pubdate"`
	SeriesIndex  float64   `json:"series_index"`
	AuthorSort   *string   `json:"author_sort"`
	ISBN         *string   `bun:"isbn" json:"isbn"`
	LCCN         *string   `bun:"lccn" json:"lccn"`
	Path         string    `json:"path"`
	Flags        int64     `json:"flags"`
	HasCover     bool      `json:"has_cover"`
	LastModified time.Time `bun:",nullzero" json:"last_modified"`
}

// DirtiedRecord marks a record whose sidecar metadata backup is stale.
type DirtiedRecord struct {
	bun.BaseModel `bun:"table:metadata_dirtied,alias:md"`

	ID       int64 `bun:",pk,nullzero" json:"id"`
	RecordID int64 `bun:"record" json:"record"`
}

package models

import (
	"github.com/uptrace/bun"
)

type Publisher struct {
	bun.BaseModel `bun:"table:publishers,alias:pub"`

	ID   int64   `bun:",pk,nullzero" json:"id"`
	Name string  `json:"name"`
	Sort *string `json:"sort"`
}

type Series struct {
	bun.BaseModel `bun:"table:series,alias:ser"`

	ID   int64   `bun:",pk,nullzero" json:"id"`
	Name string  `json:"name"`
	Sort *string `json:"sort"`
}

type Rating struct {
	bun.BaseModel `bun:"table:ratings,alias:rat"`

	ID     int64 `bun:",pk,nullzero" json:"id"`
	Rating int   `json:"rating"`
}

type Tag struct {
	bun.BaseModel `bun:"table:tags,alias:t"`

	ID   int64  `bun:",pk,nullzero" json:"id"`
	Name string `json:"name"`
}

type Language struct {
	bun.BaseModel `bun:"table:languages,alias:lang"`

	ID       int64  `bun:",pk,nullzero" json:"id"`
	LangCode string `json:"lang_code"`
}

type RecordPublisherLink struct {
	bun.BaseModel `bun:"table:records_publishers_link,alias:rpl"`

	ID          int64 `bun:",pk,nullzero" json:"id"`
	RecordID    int64 `bun:"record" json:"record"`
	PublisherID int64 `bun:"publisher" json:"publisher"`
}

type RecordSeriesLink struct {
	bun.BaseModel `bun:"table:records_series_link,alias:rsl"`

	ID       int64 `bun:",pk,nullzero" json:"id"`
	RecordID int64 `bun:"record" json:"record"`
	SeriesID int64 `bun:"series" json:"series"`
}

type RecordRatingLink struct {
	bun.BaseModel `bun:"table:records_ratings_link,alias:rrl"`

	ID       int64 `bun:",pk,nullzero" json:"id"`
	RecordID int64 `bun:"record" json:"record"`
	RatingID int64 `bun:"rating" json:"rating"`
}

type RecordTagLink struct {
	bun.BaseModel `bun:"table:records_tags_link,alias:rtl"`

	ID       int64 `bun:",pk,nullzero" json:"id"`
	RecordID int64 `bun:"record" json:"record"`
	TagID    int64 `bun:"tag" json:"tag"`
}

// RecordLanguageLink keeps item_order because a record's languages are an
// ordered list, unlike the other many-to-many taxonomies.
type RecordLanguageLink struct {
	bun.BaseModel `bun:"table:records_languages_link,alias:rll"`

	ID         int64 `bun:",pk,nullzero" json:"id"`
	RecordID   int64 `bun:"record" json:"record"`
	LanguageID int64 `bun:"lang_code" json:"lang_code"`
	ItemOrder  int   `json:"item_order"`
}

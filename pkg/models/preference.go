package models

import (
	"github.com/uptrace/bun"
)

// Preference is one persisted setting. Val holds the JSON encoding of the
// value; decoding happens in the preferences package.
type Preference struct {
	bun.BaseModel `bun:"table:preferences,alias:pref"`

	ID  int64  `bun:",pk,nullzero" json:"id"`
	Key string `json:"key"`
	Val string `json:"val"`
}

// LibraryID holds the library's identity row. The table only ever contains
// one row; the UUID is minted lazily on first read.
type LibraryID struct {
	bun.BaseModel `bun:"table:library_id,alias:lid"`

	ID   int64  `bun:",pk,nullzero" json:"id"`
	UUID string `json:"uuid"`
}

// RecordPluginData is opaque per-record storage for external tooling, keyed
// by plugin name.
type RecordPluginData struct {
	bun.BaseModel `bun:"table:record_plugin_data,alias:rpd"`

	ID       int64  `bun:",pk,nullzero" json:"id"`
	RecordID int64  `bun:"record" json:"record"`
	Name     string `json:"name"`
	Val      string `json:"val"`
}

package models

import (
	"github.com/uptrace/bun"
)

// CustomColumn describes a user-defined metadata field. Label is the
// machine lookup name, Display holds JSON rendering options, and
// MarkForDelete flags a column for physical removal on the next load.
type CustomColumn struct {
	bun.BaseModel `bun:"table:custom_columns,alias:cc"`

	ID            int64  `bun:",pk,nullzero" json:"id"`
	Label         string `json:"label"`
	Name          string `json:"name"`
	Datatype      string `json:"datatype"`
	MarkForDelete bool   `json:"mark_for_delete"`
	Editable      bool   `json:"editable"`
	Display       string `json:"display"`
	IsMultiple    bool   `json:"is_multiple"`
	Normalized    bool   `json:"normalized"`
}

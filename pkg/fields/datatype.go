package fields

import (
	"fmt"
)

// Datatype enumerates the value types a field can hold.
type Datatype string

const (
	DatatypeText        Datatype = "text"
	DatatypeSeries      Datatype = "series"
	DatatypeEnumeration Datatype = "enumeration"
	DatatypeDatetime    Datatype = "datetime"
	DatatypeBool        Datatype = "bool"
	DatatypeInt         Datatype = "int"
	DatatypeFloat       Datatype = "float"
	DatatypeRating      Datatype = "rating"
	DatatypeComments    Datatype = "comments"
	DatatypeComposite   Datatype = "composite"
)

// ValidDatatype reports whether dt names a supported datatype.
func ValidDatatype(dt Datatype) bool {
	switch dt {
	case DatatypeText, DatatypeSeries, DatatypeEnumeration, DatatypeDatetime,
		DatatypeBool, DatatypeInt, DatatypeFloat, DatatypeRating,
		DatatypeComments, DatatypeComposite:
		return true
	}
	return false
}

// normalizedDatatype reports whether values of dt live in a shared lookup
// table rather than directly keyed by record.
func normalizedDatatype(dt Datatype) bool {
	switch dt {
	case DatatypeDatetime, DatatypeComments, DatatypeInt, DatatypeFloat,
		DatatypeBool, DatatypeComposite:
		return false
	}
	return true
}

// Separators is the 3-tuple used by multi-valued text fields: how values
// are joined in storage, how user input is split, and how values are
// joined for display.
type Separators struct {
	Storage string `json:"storage"`
	UIInput string `json:"ui_input"`
	UIJoin  string `json:"ui_join"`
}

// DefaultSeparators matches how tag-like fields are stored and entered.
func DefaultSeparators() Separators {
	return Separators{Storage: "|", UIInput: ",", UIJoin: ", "}
}

// Definition describes one field, built-in or user-defined. Label is the
// durable identity; the ordinal slot lives in the Projection and is
// volatile across schema reloads.
type Definition struct {
	ID         int64
	Label      string
	Name       string
	Datatype   Datatype
	IsMultiple bool
	Separators Separators
	Normalized bool
	Editable   bool
	IsCategory bool
	Display    map[string]any
	BuiltIn    bool
}

// valueTable returns the table holding this custom field's values: the
// shared dictionary for normalized fields, the per-record value table
// otherwise.
func (d *Definition) valueTable() string {
	return fmt.Sprintf("custom_column_%d", d.ID)
}

// linkTable returns the record link table for normalized custom fields.
func (d *Definition) linkTable() string {
	return fmt.Sprintf("records_custom_column_%d_link", d.ID)
}

// enumValues returns the allowed values for an enumeration field, nil when
// unrestricted.
func (d *Definition) enumValues() []string {
	raw, ok := d.Display["enum_values"]
	if !ok {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

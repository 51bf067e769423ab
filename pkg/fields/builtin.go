package fields

// Built-in field labels. Their ordinal slots are fixed constants; custom
// fields slot in after the highest built-in.
const (
	FieldID           = "id"
	FieldTitle        = "title"
	FieldAuthors      = "authors"
	FieldTimestamp    = "timestamp"
	FieldSize         = "size"
	FieldRating       = "rating"
	FieldTags         = "tags"
	FieldComments     = "comments"
	FieldSeries       = "series"
	FieldPublisher    = "publisher"
	FieldSeriesIndex  = "series_index"
	FieldSort         = "sort"
	FieldAuthorSort   = "author_sort"
	FieldFormats      = "formats"
	FieldPath         = "path"
	FieldPubDate      = "pubdate"
	FieldUUID         = "uuid"
	FieldCover        = "cover"
	FieldAuthorMap    = "au_map"
	FieldLastModified = "last_modified"
	FieldIdentifiers  = "identifiers"
	FieldLanguages    = "languages"
)

// builtinOrdinals is the fixed slot assignment every library shares.
// Higher layers index record projections by these numbers, so the values
// never change.
var builtinOrdinals = map[string]int{
	FieldID:           0,
	FieldTitle:        1,
	FieldAuthors:      2,
	FieldTimestamp:    3,
	FieldSize:         4,
	FieldRating:       5,
	FieldTags:         6,
	FieldComments:     7,
	FieldSeries:       8,
	FieldPublisher:    9,
	FieldSeriesIndex:  10,
	FieldSort:         11,
	FieldAuthorSort:   12,
	FieldFormats:      13,
	FieldPath:         14,
	FieldPubDate:      15,
	FieldUUID:         16,
	FieldCover:        17,
	FieldAuthorMap:    18,
	FieldLastModified: 19,
	FieldIdentifiers:  20,
	FieldLanguages:    21,
}

// builtinDefinitions describes the fixed fields. Shapes here mirror the
// baseline schema: authors/tags/languages are many-to-many, publisher and
// series are many-to-one, the rest sit on the record row.
func builtinDefinitions() map[string]*Definition {
	defs := map[string]*Definition{}

	scalar := func(label string, dt Datatype) {
		defs[label] = &Definition{Label: label, Name: label, Datatype: dt, BuiltIn: true}
	}
	scalar(FieldID, DatatypeInt)
	scalar(FieldTitle, DatatypeText)
	scalar(FieldTimestamp, DatatypeDatetime)
	scalar(FieldSize, DatatypeInt)
	scalar(FieldComments, DatatypeComments)
	scalar(FieldSeriesIndex, DatatypeFloat)
	scalar(FieldSort, DatatypeText)
	scalar(FieldAuthorSort, DatatypeText)
	scalar(FieldPath, DatatypeText)
	scalar(FieldPubDate, DatatypeDatetime)
	scalar(FieldUUID, DatatypeText)
	scalar(FieldCover, DatatypeBool)
	scalar(FieldAuthorMap, DatatypeText)
	scalar(FieldLastModified, DatatypeDatetime)
	scalar(FieldFormats, DatatypeText)
	scalar(FieldIdentifiers, DatatypeText)

	defs[FieldAuthors] = &Definition{
		Label: FieldAuthors, Name: FieldAuthors, Datatype: DatatypeText,
		IsMultiple: true, Separators: Separators{Storage: ",", UIInput: "&", UIJoin: " & "},
		Normalized: true, IsCategory: true, BuiltIn: true,
	}
	defs[FieldTags] = &Definition{
		Label: FieldTags, Name: FieldTags, Datatype: DatatypeText,
		IsMultiple: true, Separators: DefaultSeparators(),
		Normalized: true, IsCategory: true, BuiltIn: true,
	}
	defs[FieldLanguages] = &Definition{
		Label: FieldLanguages, Name: FieldLanguages, Datatype: DatatypeText,
		IsMultiple: true, Separators: DefaultSeparators(),
		Normalized: true, BuiltIn: true,
	}
	defs[FieldPublisher] = &Definition{
		Label: FieldPublisher, Name: FieldPublisher, Datatype: DatatypeText,
		Normalized: true, IsCategory: true, BuiltIn: true,
	}
	defs[FieldSeries] = &Definition{
		Label: FieldSeries, Name: FieldSeries, Datatype: DatatypeSeries,
		Normalized: true, IsCategory: true, BuiltIn: true,
	}
	defs[FieldRating] = &Definition{
		Label: FieldRating, Name: FieldRating, Datatype: DatatypeRating,
		Normalized: true, BuiltIn: true,
	}

	return defs
}

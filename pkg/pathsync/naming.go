package pathsync

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/folioreads/folio/pkg/fileutils"
)

// UnknownToken replaces an author or title whose sanitized form is empty.
const UnknownToken = "Unknown"

// segmentLimit caps each generated path segment. Windows keeps a much
// shorter budget because of its historical total-path limit.
var segmentLimit = func() int {
	if runtime.GOOS == "windows" {
		return 40
	}
	return 1000
}()

// reservedNames are directory names Windows refuses regardless of
// extension.
var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// ConstructPathName builds the relative directory for a record:
// "<author>/<title> (<id>)" with both segments ASCII-sanitized and
// truncated. The result is deterministic for a given (id, title, author).
func ConstructPathName(recordID int64, title, author string) string {
	idSuffix := fmt.Sprintf(" (%d)", recordID)
	limit := segmentLimit - len(idSuffix)/2 - 2

	author = fileutils.TruncateSegment(fileutils.SanitizeASCII(author), limit)
	author = strings.TrimRight(author, " .")
	if author == "" {
		author = UnknownToken
	}
	if reservedNames[strings.ToUpper(author)] {
		author += "w"
	}

	title = fileutils.TruncateSegment(fileutils.SanitizeASCII(strings.TrimLeft(title, " ")), limit)
	title = strings.TrimRight(title, " ")
	if title == "" {
		title = fileutils.TruncateSegment(UnknownToken, limit)
	}

	return author + "/" + title + idSuffix
}

// ConstructFileName builds the stem used for a record's format files:
// "<title> - <author>", sanitized and truncated with room left for the
// extension.
func ConstructFileName(title, author string, extLen int) string {
	limit := segmentLimit - extLen/2 - 2
	if limit < 12 {
		limit = 12
	}

	author = fileutils.TruncateSegment(fileutils.SanitizeASCII(author), limit)
	title = fileutils.TruncateSegment(fileutils.SanitizeASCII(strings.TrimLeft(title, " ")), limit)
	if title == "" {
		title = UnknownToken
	}

	name := title + " - " + author
	name = strings.TrimRight(name, ". ")
	if name == "" {
		name = UnknownToken
	}
	return name
}

package fileutils

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// asciiFold decomposes accented characters and strips the combining marks,
// so "Café" becomes "Cafe".
var asciiFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

var (
	invalidChars   = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	whitespaceRuns = regexp.MustCompile(`\s+`)
)

// SanitizeASCII converts name into a filesystem-safe ASCII string. Accents
// are folded, any remaining non-ASCII runes become underscores, characters
// invalid on common filesystems are dropped, whitespace runs collapse to a
// single space, and leading/trailing spaces and dots are trimmed (Windows
// rejects trailing dots).
func SanitizeASCII(name string) string {
	if folded, _, err := transform.String(asciiFold, name); err == nil {
		name = folded
	}

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if r > unicode.MaxASCII {
			b.WriteByte('_')
		} else {
			b.WriteRune(r)
		}
	}
	name = b.String()

	name = invalidChars.ReplaceAllString(name, "")
	name = whitespaceRuns.ReplaceAllString(name, " ")
	return strings.Trim(name, " .")
}

// TruncateSegment caps a single path segment at limit bytes, re-trimming
// any spaces or dots the cut exposes at the end.
func TruncateSegment(name string, limit int) string {
	if limit > 0 && len(name) > limit {
		name = name[:limit]
	}
	return strings.Trim(name, " .")
}

// Package sortname derives bibliographic sort keys from display values.
// The database layer exposes these as the title_sort and
// author_to_author_sort SQL functions.
package sortname

import (
	"strings"
)

// TitleArticles are articles stripped from the beginning of titles and
// moved to the end (e.g. "The Hobbit" -> "Hobbit, The").
var TitleArticles = []string{
	"The",
	"A",
	"An",
}

// GenerationalSuffixes are preserved in the sort name since they
// distinguish different people.
var GenerationalSuffixes = []string{
	"Jr.",
	"Jr",
	"Sr.",
	"Sr",
	"II",
	"III",
	"IV",
}

// Particles are name particles that stay with the given name when the
// surname is moved to the front ("Ludwig van Beethoven" -> "Beethoven,
// Ludwig van").
var Particles = []string{
	"van",
	"von",
	"de",
	"da",
	"di",
	"du",
	"del",
	"della",
	"la",
	"le",
	"bin",
	"ibn",
}

// ForTitle generates a sort title from a display title. Leading articles
// are moved to the end:
//   - "The Hobbit" -> "Hobbit, The"
//   - "A Tale of Two Cities" -> "Tale of Two Cities, A"
//   - "Lord of the Rings" -> "Lord of the Rings" (no change)
func ForTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return ""
	}

	for _, article := range TitleArticles {
		prefix := article + " "
		if len(title) > len(prefix) && strings.EqualFold(title[:len(prefix)], prefix) {
			actual := title[:len(article)]
			rest := strings.TrimSpace(title[len(prefix):])
			if rest != "" {
				return rest + ", " + actual
			}
		}
	}

	return title
}

// ForAuthor generates a sort name from an author's display name, in
// "Last, First Middle" form. Author values stored with a "|" separator are
// normalized to "," first, matching how authors are kept in the dictionary
// table.
//
// Examples:
//   - "Stephen King" -> "King, Stephen"
//   - "Martin Luther King Jr." -> "King, Martin Luther, Jr."
//   - "Ludwig van Beethoven" -> "Beethoven, Ludwig van"
func ForAuthor(name string) string {
	name = strings.ReplaceAll(name, "|", ",")
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	parts := strings.Fields(name)
	if len(parts) <= 1 {
		return name
	}

	// Peel generational suffixes off the end.
	var suffixes []string
	for len(parts) > 1 && isGenerationalSuffix(parts[len(parts)-1]) {
		suffixes = append([]string{strings.TrimSuffix(parts[len(parts)-1], ",")}, suffixes...)
		parts = parts[:len(parts)-1]
	}

	if len(parts) == 1 {
		if len(suffixes) > 0 {
			return parts[0] + ", " + strings.Join(suffixes, ", ")
		}
		return parts[0]
	}

	surname := parts[len(parts)-1]
	given := parts[:len(parts)-1]

	// Particles preceding the surname move to the end with the given name.
	var particles []string
	for len(given) > 0 && isParticle(given[len(given)-1]) {
		particles = append([]string{given[len(given)-1]}, particles...)
		given = given[:len(given)-1]
	}

	var b strings.Builder
	b.WriteString(surname)
	if len(given) > 0 || len(particles) > 0 {
		b.WriteString(", ")
		b.WriteString(strings.Join(append(given, particles...), " "))
	}
	if len(suffixes) > 0 {
		b.WriteString(", ")
		b.WriteString(strings.Join(suffixes, ", "))
	}
	return b.String()
}

func isGenerationalSuffix(word string) bool {
	word = strings.TrimSuffix(word, ",")
	for _, suffix := range GenerationalSuffixes {
		if strings.EqualFold(word, suffix) {
			return true
		}
	}
	return false
}

func isParticle(word string) bool {
	for _, particle := range Particles {
		if strings.EqualFold(word, particle) {
			return true
		}
	}
	return false
}

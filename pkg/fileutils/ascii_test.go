package fileutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeASCII(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain ascii untouched",
			input:    "Pride and Prejudice",
			expected: "Pride and Prejudice",
		},
		{
			name:     "accents folded",
			input:    "Café Révolution",
			expected: "Cafe Revolution",
		},
		{
			name:     "non-latin becomes underscores",
			input:    "本",
			expected: "_",
		},
		{
			name:     "invalid filename characters dropped",
			input:    `a<b>c:d"e/f\g|h?i*j`,
			expected: "abcdefghij",
		},
		{
			name:     "whitespace runs collapse",
			input:    "To  the   Lighthouse",
			expected: "To the Lighthouse",
		},
		{
			name:     "trailing dots and spaces trimmed",
			input:    "Dr. ",
			expected: "Dr",
		},
		{
			name:     "empty",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, SanitizeASCII(tt.input))
		})
	}
}

func TestTruncateSegment(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "abc", TruncateSegment("abc", 10))
	assert.Equal(t, "abcde", TruncateSegment("abcdefgh", 5))
	// A cut that exposes a trailing space or dot re-trims.
	assert.Equal(t, "ab", TruncateSegment("ab cdef", 3))
	assert.Equal(t, "ab", TruncateSegment("ab.cdef", 3))
}

package util

import (
	"strings"
	"unicode"
)

// Slugify lowers input to a hyphenated identifier safe for file names.
// Runs of anything that is not a letter or digit collapse into a single
// hyphen, with no leading or trailing hyphens.
func Slugify(input string) string {
	words := strings.FieldsFunc(strings.ToLower(input), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(words) == 0 {
		return "trace"
	}
	return strings.Join(words, "-")
}

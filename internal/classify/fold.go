package classify

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks removes combining marks after NFD decomposition, so accented
// and plain vowels compare equal.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// fold lowercases and strips diacritics. Account names are Spanish;
// "Sueldo Líquido" must match a search for "liquido".
func fold(s string) string {
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// foldContains reports whether needle occurs in haystack, ignoring case
// and diacritics.
func foldContains(haystack, needle string) bool {
	return strings.Contains(fold(haystack), fold(needle))
}

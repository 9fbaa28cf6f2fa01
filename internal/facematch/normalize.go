package facematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// diacriticFold decomposes to NFD, strips the combining marks and
// recomposes, turning "Nováková" into "Novakova".
var diacriticFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// RemoveDiacritics folds accented characters to their base form. Member
// names arrive with and without accents depending on which system typed
// them, so comparisons and tags go through this fold first.
func RemoveDiacritics(s string) string {
	folded, _, err := transform.String(diacriticFold, s)
	if err != nil {
		return s
	}
	return folded
}

// NormalizePersonName prepares a member name for matching: folded,
// lowercased, hyphenated surnames split on spaces.
func NormalizePersonName(name string) string {
	name = strings.ToLower(RemoveDiacritics(name))
	name = strings.ReplaceAll(name, "-", " ")
	return strings.TrimSpace(name)
}

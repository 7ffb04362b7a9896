package router

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

var menuChoice = regexp.MustCompile(`^[0-9]{1,3}$`)

// normalize lowercases, trims, collapses inner whitespace and strips
// diacritics so "Más Tarde" and "mas tarde" compare equal.
func normalize(text string) string {
	folded, _, err := transform.String(stripMarks, text)
	if err != nil {
		folded = text
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// isMenuChoice reports whether the normalized input is a bare number.
func isMenuChoice(text string) bool {
	return menuChoice.MatchString(text)
}

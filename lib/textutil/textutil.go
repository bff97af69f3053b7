// Package textutil prepares instrument names for fuzzy comparison. The
// broker renders names inconsistently between releases ("Telefónica
// S.A.", "TELEFONICA SA"), so everything is folded to a canonical form
// before similarity scoring.
package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName lowercases, strips accents and collapses runs of
// whitespace to a single space.
func NormalizeName(name string) string {
	folded, _, err := transform.String(stripAccents, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(folded)
	return strings.Join(strings.Fields(folded), " ")
}

package unit

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	digitLetter = regexp.MustCompile(`(\d)(\p{L})`)
	letterDigit = regexp.MustCompile(`(\p{L})(\d)`)
	nonSlug     = regexp.MustCompile(`[^a-z0-9]+`)
)

// NormalizeUnitName turns a free-form unit name into a comparison-safe slug:
// "кв. 12А" and "12 а" both become "12-a", "II" becomes "2".
func (p *Parser) NormalizeUnitName(name string) string {
	s := digitLetter.ReplaceAllString(name, "$1 $2")
	s = letterDigit.ReplaceAllString(s, "$1 $2")
	s = strings.Map(blankOut, s)
	s = ReplaceRomanWithArabic(s)
	s = strings.ToLower(s)

	if stripped := trimEdges(p.stripKeywords(s)); stripped != "" {
		s = stripped
	}
	return Slugify(s)
}

// blankOut maps punctuation, symbols and invisible characters to a space.
func blankOut(r rune) rune {
	switch {
	case unicode.IsPunct(r), unicode.IsSymbol(r), unicode.IsControl(r), unicode.IsSpace(r):
		return ' '
	case unicode.Is(unicode.Cf, r):
		return ' '
	}
	return r
}

// Slugify strips diacritics, transliterates to ASCII, lowercases and joins
// alphanumeric runs with "-".
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(t, s); err == nil {
		s = out
	}
	s = strings.ToLower(unidecode.Unidecode(s))
	return strings.Trim(nonSlug.ReplaceAllString(s, "-"), "-")
}

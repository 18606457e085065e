// Package unit splits raw address strings into a house part and a unit part
// (flat, parking space, office, storeroom, apartment) and canonicalizes unit
// names for comparison.
package unit

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// UnknownUnitName is used when a unit keyword is present but no name follows it.
const UnknownUnitName = "б/н"

// Parsed is the result of splitting a raw address.
// UnitType and UnitName are both empty when no unit was found.
type Parsed struct {
	Address  string `json:"address"`
	UnitType Type   `json:"unit_type,omitempty"`
	UnitName string `json:"unit_name,omitempty"`
}

// HasUnit reports whether both unit fields are set.
func (p Parsed) HasUnit() bool {
	return p.UnitType != "" && p.UnitName != ""
}

// RE2 \b only knows ASCII word characters, so token edges are spelled out.
const (
	leftEdge  = `(^|[^\p{L}])`
	rightEdge = `([^\p{L}]|$)`
)

type typedPattern struct {
	typ Type
	re  *regexp.Regexp
}

// Parser splits addresses using one Dictionary. Patterns are compiled once
// in NewParser; a Parser is read-only afterwards and safe for concurrent use.
type Parser struct {
	dict    Dictionary
	unitRe  *regexp.Regexp
	typeRes []typedPattern
	houseRe *regexp.Regexp
}

// NewParser compiles the keyword patterns for dict.
func NewParser(dict Dictionary) *Parser {
	var all []string
	p := &Parser{dict: dict}
	for _, u := range dict.Units {
		all = append(all, u.Words...)
		p.typeRes = append(p.typeRes, typedPattern{
			typ: u.Type,
			re:  regexp.MustCompile(`(?i)` + leftEdge + `(` + alternation(u.Words) + `)` + rightEdge),
		})
	}
	p.unitRe = regexp.MustCompile(`(?i)` + leftEdge + `(` + alternation(all) + `)` + rightEdge)
	p.houseRe = regexp.MustCompile(`(?i)(?:^|[^\p{L}])(?:` + alternation(dict.HouseIDs) + `)\.?\s*\d+`)
	return p
}

var (
	defaultOnce   sync.Once
	defaultParser *Parser
)

// Default returns the shared Russian parser.
func Default() *Parser {
	defaultOnce.Do(func() {
		defaultParser = NewParser(Russian)
	})
	return defaultParser
}

// Dictionary returns the dictionary the parser was built from.
func (p *Parser) Dictionary() Dictionary {
	return p.dict
}

// alternation quotes words and joins them longest first, so a short keyword
// never shadows a longer one sharing its prefix. Spaces match any whitespace run.
func alternation(words []string) string {
	sorted := append([]string(nil), words...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len([]rune(sorted[i])) > len([]rune(sorted[j]))
	})
	quoted := make([]string, len(sorted))
	for i, w := range sorted {
		quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(w), " ", `\s+`)
	}
	return strings.Join(quoted, "|")
}

// Parse splits raw into address and unit parts.
//
// A unit keyword that follows the house number ("д 103, кладовая 212") starts
// the unit part. Otherwise the last comma-separated segment is taken as the
// unit when it looks like one: it carries a unit keyword, or it starts with a
// number or a Roman numeral. Anything else is returned whole as the address.
func (p *Parser) Parse(raw string) Parsed {
	s := trimEdges(raw)
	if s == "" {
		return Parsed{}
	}

	if addr, unitPart, ok := p.splitAfterHouse(s); ok {
		t, name := p.ParseUnit(unitPart)
		return Parsed{Address: addr, UnitType: t, UnitName: name}
	}

	if addr, unitPart, ok := p.splitLastSegment(s); ok {
		t, name := p.ParseUnit(unitPart)
		return Parsed{Address: addr, UnitType: t, UnitName: name}
	}

	return Parsed{Address: s}
}

func (p *Parser) splitAfterHouse(s string) (string, string, bool) {
	house := p.houseRe.FindStringIndex(s)
	if house == nil {
		return "", "", false
	}
	from := house[1]
	m := p.unitRe.FindStringSubmatchIndex(s[from:])
	if m == nil {
		return "", "", false
	}
	cut := from + m[4]
	addr := trimEdges(s[:cut])
	if addr == "" {
		return "", "", false
	}
	return addr, trimEdges(s[cut:]), true
}

func (p *Parser) splitLastSegment(s string) (string, string, bool) {
	i := strings.LastIndex(s, ",")
	if i < 0 {
		return "", "", false
	}
	addr, seg := trimEdges(s[:i]), trimEdges(s[i+1:])
	if addr == "" || seg == "" || p.houseRe.MatchString(seg) {
		return "", "", false
	}
	if !p.unitRe.MatchString(seg) && !looksLikeUnitName(seg) {
		return "", "", false
	}
	return addr, seg, true
}

func looksLikeUnitName(seg string) bool {
	first := strings.Fields(seg)[0]
	if unicode.IsDigit([]rune(first)[0]) {
		return true
	}
	return isRoman(first)
}

// ParseUnit classifies a unit part and extracts its name. The first type (in
// dictionary order) with a matching keyword wins; every keyword of every type
// is stripped from the name. With no keyword the type is Flat and the name is
// the trimmed input.
func (p *Parser) ParseUnit(unitPart string) (Type, string) {
	s := trimEdges(unitPart)

	var typ Type
	for _, tp := range p.typeRes {
		if tp.re.MatchString(s) {
			typ = tp.typ
			break
		}
	}
	if typ == "" {
		return Flat, s
	}

	name := trimEdges(p.stripKeywords(s))
	if name == "" {
		name = UnknownUnitName
	}
	return typ, name
}

// stripKeywords removes every unit keyword from s. Each match consumes one
// edge character, so adjacent keywords need more than one pass.
func (p *Parser) stripKeywords(s string) string {
	for i := 0; i < 4; i++ {
		next := p.unitRe.ReplaceAllString(s, "$1 $3")
		if next == s {
			break
		}
		s = next
	}
	return collapseSpaces(s)
}

func isEdgeRune(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}
	return strings.ContainsRune(",.;:-–—/\\#№", r)
}

func trimEdges(s string) string {
	return strings.TrimFunc(s, isEdgeRune)
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

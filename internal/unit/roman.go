package unit

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var romanRe = regexp.MustCompile(`^M{0,3}(CM|CD|D?C{0,3})(XC|XL|L?X{0,3})(IX|IV|V?I{0,3})$`)

var romanValues = map[byte]int{'I': 1, 'V': 5, 'X': 10, 'L': 50, 'C': 100, 'D': 500, 'M': 1000}

func isRoman(token string) bool {
	return token != "" && romanRe.MatchString(token)
}

func romanToInt(token string) int {
	total := 0
	for i := 0; i < len(token); i++ {
		v := romanValues[token[i]]
		if i+1 < len(token) && v < romanValues[token[i+1]] {
			total -= v
		} else {
			total += v
		}
	}
	return total
}

// ambiguousRoman are single letters that more often name a block or a
// building section than a number.
func ambiguousRoman(token string) bool {
	switch token {
	case "C", "M", "L", "D":
		return true
	}
	return false
}

// ReplaceRomanWithArabic converts whitespace-separated uppercase Roman numeral
// tokens to decimal. Letters inside longer words are never touched. Single
// C, M, L and D are converted only when every token in s is a Roman numeral.
func ReplaceRomanWithArabic(s string) string {
	tokens := strings.Fields(s)
	if len(tokens) == 0 {
		return s
	}

	allRoman := true
	for _, tok := range tokens {
		if !isRoman(tok) {
			allRoman = false
			break
		}
	}

	var sb strings.Builder
	sb.Grow(len(s))
	rest := s
	for rest != "" {
		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			end = len(rest)
		}
		tok := rest[:end]
		if isRoman(tok) && (allRoman || !ambiguousRoman(tok)) {
			sb.WriteString(strconv.Itoa(romanToInt(tok)))
		} else {
			sb.WriteString(tok)
		}
		rest = rest[end:]

		next := strings.IndexFunc(rest, func(r rune) bool { return !unicode.IsSpace(r) })
		if next < 0 {
			next = len(rest)
		}
		sb.WriteString(rest[:next])
		rest = rest[next:]
	}
	return sb.String()
}

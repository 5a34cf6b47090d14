package termmap

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Match filters the term map to only terms that appear in the given texts
// as whole words. Matching is case-sensitive, which suits proper nouns.
func Match(tm TermMap, texts []string) TermMap {
	matched := make(TermMap)

	for source, target := range tm {
		for _, text := range texts {
			if ContainsWord(text, source) {
				matched[source] = target
				break
			}
		}
	}

	return matched
}

// ContainsWord reports whether term occurs in text not glued to other
// letters or digits. Terms in scripts written without spaces match anywhere.
func ContainsWord(text, term string) bool {
	return containsWord(text, term)
}

// ContainsWordFold is ContainsWord ignoring case.
func ContainsWordFold(text, term string) bool {
	return containsWord(strings.ToLower(text), strings.ToLower(term))
}

func containsWord(text, term string) bool {
	if term == "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(term)
	last, _ := utf8.DecodeLastRuneInString(term)

	for offset := 0; offset < len(text); {
		i := strings.Index(text[offset:], term)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(term)

		before, _ := utf8.DecodeLastRuneInString(text[:start])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if (start == 0 || !joined(before, first)) && (end == len(text) || !joined(last, after)) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
	return false
}

// joined reports whether two adjacent runes belong to the same word.
func joined(a, b rune) bool {
	return isWordRune(a) && isWordRune(b) && !unspaced(a) && !unspaced(b)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func unspaced(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Thai)
}

// Render formats terms as a block for the request context, sorted so the
// same batch always produces the same request.
func Render(tm TermMap) string {
	if len(tm) == 0 {
		return ""
	}
	sources := make([]string, 0, len(tm))
	for source := range tm {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	var b strings.Builder
	b.WriteString("Terminology (always translate these terms this way):")
	for _, source := range sources {
		b.WriteString("\n")
		b.WriteString(source)
		b.WriteString(" => ")
		b.WriteString(tm[source])
	}
	return b.String()
}

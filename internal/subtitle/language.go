package subtitle

import (
	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

// DetectLanguage returns the language most records are written in, or
// language.Und when nothing is recognised.
func DetectLanguage(records []Record) language.Tag {
	if len(records) == 0 {
		return language.Und
	}

	counts := make(map[string]int)
	for _, r := range records {
		info := whatlanggo.Detect(r.Text)
		code := info.Lang.Iso6391()
		if code == "" {
			continue
		}
		counts[code]++
	}

	var topLang string
	var topCount int
	for lang, count := range counts {
		if count > topCount || (count == topCount && lang < topLang) {
			topLang = lang
			topCount = count
		}
	}
	if topLang == "" {
		return language.Und
	}

	tag, err := language.Parse(topLang)
	if err != nil {
		return language.Und
	}
	return tag
}

// SameLanguage reports whether two tags share a base language.
func SameLanguage(a, b language.Tag) bool {
	ba, _ := a.Base()
	bb, _ := b.Base()
	return ba == bb
}

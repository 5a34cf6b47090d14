package translator

import (
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// LanguageName returns the English name of tag for use in prompts, e.g.
// "Simplified Chinese" for zh-Hans.
func LanguageName(tag language.Tag) string {
	if tag == language.Und {
		return DefaultTargetLanguage
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return tag.String()
}

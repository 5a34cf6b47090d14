package codec

import (
	"regexp"
	"strings"
)

// Markers are removed together with the horizontal whitespace around them
// so that "a ===SUBTITLE_SEPARATOR_3=== b" becomes "a b". Whitespace
// elsewhere in the text is left alone.
var (
	numberedMarker   = regexp.MustCompile(`[ \t\x{3000}]*={2,}\s*SUBTITLE_SEPARATOR_\s*\d+\s*={2,}[ \t\x{3000}]*`)
	unnumberedMarker = regexp.MustCompile(`[ \t\x{3000}]*={2,}\s*SUBTITLE_SEPARATOR\s*(={2,})?[ \t\x{3000}]*`)
	// Tail of a marker whose head was dropped, e.g. "_45===" at line start.
	partialMarker = regexp.MustCompile(`(?m)^[ \t\x{3000}]*_\d+={2,}[ \t\x{3000}]*`)
)

// Leading phrases models prepend despite instructions. Matched at the start
// of a line, case-insensitively, with an optional colon.
var boilerplatePrefixes = []string{
	"翻译如下",
	"翻译结果",
	"以下是翻译",
	"这是中文翻译",
	"中文翻译",
	"要翻译的内容",
	"翻译成中文",
	"翻译后的文本",
	"here is the translation",
	"here's the translation",
	"translated text",
	"translation",
}

var boilerplatePattern = buildBoilerplatePattern()

func buildBoilerplatePattern() *regexp.Regexp {
	quoted := make([]string, len(boilerplatePrefixes))
	for i, p := range boilerplatePrefixes {
		quoted[i] = regexp.QuoteMeta(p)
	}
	// The colon is mandatory for the English forms so that ordinary lines
	// starting with "Translation" survive.
	return regexp.MustCompile(`(?im)^[ \t]*(?:(?:` +
		strings.Join(quoted[:8], "|") +
		`)[ \t]*[:：]?|(?:` +
		strings.Join(quoted[8:], "|") +
		`)[ \t]*[:：])[ \t]*`)
}

// StripBoilerplate removes known leading boilerplate from every line and
// drops lines left empty by the removal.
func StripBoilerplate(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		stripped := boilerplatePattern.ReplaceAllString(line, "")
		if stripped != line && strings.TrimSpace(stripped) == "" {
			continue
		}
		out = append(out, stripped)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// Scrub removes residual separator markers, partial markers and boilerplate,
// trims every line and drops blank ones. Line breaks and spacing inside a
// line are kept, so text without markers only loses its outer whitespace.
func Scrub(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = numberedMarker.ReplaceAllString(text, " ")
	text = unnumberedMarker.ReplaceAllString(text, " ")
	text = partialMarker.ReplaceAllString(text, "")
	text = StripBoilerplate(text)

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

package translator

import (
	"strings"
)

const DefaultTargetLanguage = "Simplified Chinese"

// BuildSystemPrompt combines the style prompt with the fixed output rules
// the separator protocol depends on.
func BuildSystemPrompt(customPrompt string, targetLanguage string) string {
	if strings.TrimSpace(targetLanguage) == "" {
		targetLanguage = DefaultTargetLanguage
	}

	var prompt strings.Builder
	if custom := strings.TrimSpace(customPrompt); custom != "" {
		prompt.WriteString(custom)
		prompt.WriteString("\n\n")
	} else {
		prompt.WriteString("You are a professional subtitle translator. Translate the subtitles into " + targetLanguage + ". ")
		prompt.WriteString("The translation must be faithful, fluent and natural to read on screen.\n")
		prompt.WriteString("Keep names, places and terminology consistent. ")
		prompt.WriteString("Put metric conversions of foreign units in brackets, e.g. 5 feet (1.5 m). ")
		prompt.WriteString("Well-known names may be localized; obscure ones stay in the original or are transliterated.\n\n")
	}

	prompt.WriteString("=== OUTPUT RULES ===\n")
	prompt.WriteString("1. Return ONLY the translated text. No prefixes such as \"Here is the translation:\", no notes or explanations.\n")
	prompt.WriteString("2. Keep every separator line of the form ===SUBTITLE_SEPARATOR_X=== exactly as it appears. Do not renumber, merge or drop them.\n")
	prompt.WriteString("3. Every subtitle between separators must have exactly one translation, no more and no fewer.\n")
	prompt.WriteString("4. If a line contains sensitive content, use a suitable substitute instead of refusing.\n")
	prompt.WriteString("5. Text under \"Context:\" is for reference only. Never translate or repeat it.\n")

	return prompt.String()
}

// BuildUserMessage renders the request body for one call.
func BuildUserMessage(text string, context string) string {
	if strings.TrimSpace(context) == "" {
		return text
	}

	var msg strings.Builder
	msg.WriteString("Context:\n")
	msg.WriteString(context)
	msg.WriteString("\n\nTranslate:\n")
	msg.WriteString(text)
	msg.WriteString("\n\nReturn only the translation of the text under \"Translate:\", keeping all separator lines.")
	return msg.String()
}

// RenderContext formats the lines surrounding a batch.
func RenderContext(before, after []string) string {
	var b strings.Builder
	if len(before) > 0 {
		b.WriteString("Before:\n")
		b.WriteString(strings.Join(before, "\n"))
	}
	if len(after) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("After:\n")
		b.WriteString(strings.Join(after, "\n"))
	}
	return b.String()
}

package translator

import (
	"context"
	"strings"
)

type backgroundTranslator struct {
	next       Translator
	background string
}

// WithBackground prepends a fixed description of the material, such as the
// show's title and cast, to every request's context. Blank text returns next
// unchanged.
func WithBackground(next Translator, background string) Translator {
	background = strings.TrimSpace(background)
	if background == "" {
		return next
	}
	return &backgroundTranslator{next: next, background: "About the material:\n" + background}
}

func (t *backgroundTranslator) Translate(ctx context.Context, text string, contextText string) (string, error) {
	if strings.TrimSpace(contextText) == "" {
		contextText = t.background
	} else {
		contextText = t.background + "\n\n" + contextText
	}
	return t.next.Translate(ctx, text, contextText)
}

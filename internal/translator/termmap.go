package translator

import (
	"context"
	"strings"

	"github.com/MimeLyc/batch-sub-translator/internal/termmap"
)

type termMapTranslator struct {
	next  Translator
	terms termmap.TermMap
}

// WithTermMap prepends the terms found in each request's text to its
// context. An empty map returns next unchanged.
func WithTermMap(next Translator, terms termmap.TermMap) Translator {
	if len(terms) == 0 {
		return next
	}
	return &termMapTranslator{next: next, terms: terms}
}

func (t *termMapTranslator) Translate(ctx context.Context, text string, contextText string) (string, error) {
	if block := termmap.Render(termmap.Match(t.terms, []string{text})); block != "" {
		if strings.TrimSpace(contextText) == "" {
			contextText = block
		} else {
			contextText = block + "\n\n" + contextText
		}
	}
	return t.next.Translate(ctx, text, contextText)
}

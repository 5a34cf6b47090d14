package translator

import (
	"context"
	"fmt"
	"strings"

	"github.com/MimeLyc/batch-sub-translator/internal/codec"
)

// llmTranslator sends subtitle payloads to a chat model.
type llmTranslator struct {
	client       ChatClient
	systemPrompt string
}

// NewLLMTranslator creates a translator backed by client. customPrompt
// replaces the default style instructions; the separator protocol rules are
// always appended.
func NewLLMTranslator(client ChatClient, customPrompt string, targetLanguage string) Translator {
	return &llmTranslator{
		client:       client,
		systemPrompt: BuildSystemPrompt(customPrompt, targetLanguage),
	}
}

func (t *llmTranslator) Translate(ctx context.Context, text string, context string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	reply, err := t.client.SimpleChat(ctx, BuildUserMessage(text, context), t.systemPrompt)
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	return codec.StripBoilerplate(reply), nil
}

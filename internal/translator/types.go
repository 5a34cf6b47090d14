package translator

import (
	"context"
)

// Translator turns one text payload into its translation. context carries
// neighbouring subtitle lines as guidance and never appears in the output.
// Implementations must be safe for concurrent use.
type Translator interface {
	Translate(ctx context.Context, text string, context string) (string, error)
}

// ChatClient is the subset of the LLM client a translator needs.
type ChatClient interface {
	SimpleChat(ctx context.Context, prompt string, systemPrompt string) (string, error)
}

// Func adapts a plain function to Translator.
type Func func(ctx context.Context, text string, context string) (string, error)

func (f Func) Translate(ctx context.Context, text string, context string) (string, error) {
	return f(ctx, text, context)
}

package llm

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/pick-research/pkg/config"
)

// CompletionOptions tune one completion call
type CompletionOptions struct {
	System      string
	Temperature float64
	MaxTokens   int
}

// Completer is an opaque structured-completion function: prompt in, text out.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error)
}

// NewCompleter returns the client for the configured LLM_PROVIDER.
func NewCompleter(cfg *config.Config, logger *logrus.Logger) (Completer, error) {
	switch cfg.LLMProvider {
	case "anthropic":
		return NewClaudeClient(cfg, logger), nil
	case "gemini":
		return NewGeminiClient(context.Background(), cfg, logger)
	default:
		return nil, &config.SetupError{Field: "LLM_PROVIDER", Reason: fmt.Sprintf("has unsupported value %q", cfg.LLMProvider)}
	}
}

package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"google.golang.org/genai"

	"github.com/stitts-dev/pick-research/pkg/config"
)

// GeminiClient completes prompts through the Gemini API
type GeminiClient struct {
	client         *genai.Client
	model          string
	logger         *logrus.Logger
	circuitBreaker *gobreaker.CircuitBreaker
}

// NewGeminiClient creates a Gemini completer.
func NewGeminiClient(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*GeminiClient, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, &config.SetupError{Field: "GEMINI_API_KEY", Reason: "is required for LLM_PROVIDER=gemini"}
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	model := cfg.GeminiModel
	if model == "" {
		model = "gemini-2.5-flash"
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gemini-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit":    name,
				"from_state": from.String(),
				"to_state":   to.String(),
			}).Info("Gemini API circuit breaker state changed")
		},
	})

	return &GeminiClient{client: client, model: model, logger: logger, circuitBreaker: cb}, nil
}

// Complete runs one generateContent call and returns its text.
func (g *GeminiClient) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	result, err := g.circuitBreaker.Execute(func() (interface{}, error) {
		return g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), geminiConfig(opts))
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}

	resp := result.(*genai.GenerateContentResponse)
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini returned no text")
	}

	if resp.UsageMetadata != nil {
		g.logger.WithFields(logrus.Fields{
			"model":         g.model,
			"input_tokens":  resp.UsageMetadata.PromptTokenCount,
			"output_tokens": resp.UsageMetadata.CandidatesTokenCount,
		}).Debug("Gemini completion finished")
	}
	return text, nil
}

func geminiConfig(opts CompletionOptions) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(opts.Temperature)),
	}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if opts.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(opts.System, genai.RoleUser)
	}
	return cfg
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/stitts-dev/pick-research/pkg/config"
)

// ClaudeClient handles interaction with the Claude messages API
type ClaudeClient struct {
	httpClient     *http.Client
	logger         *logrus.Logger
	apiKey         string
	model          string
	baseURL        string
	rateLimiter    *rate.Limiter
	circuitBreaker *gobreaker.CircuitBreaker
	retryAttempts  int
	retryBackoff   time.Duration
}

// ClaudeMessage represents a message in the conversation
type ClaudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ClaudeRequest represents the request payload for Claude API
type ClaudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature,omitempty"`
	Messages    []ClaudeMessage `json:"messages"`
	System      string          `json:"system,omitempty"`
}

// ClaudeResponse represents the response from Claude API
type ClaudeResponse struct {
	ID         string               `json:"id"`
	Type       string               `json:"type"`
	Content    []ClaudeContentBlock `json:"content"`
	Model      string               `json:"model"`
	StopReason string               `json:"stop_reason"`
	Usage      ClaudeUsage          `json:"usage"`
}

// ClaudeContentBlock represents content blocks in the response
type ClaudeContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ClaudeUsage represents token usage information
type ClaudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type claudeErrorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// errPermanent marks failures that another attempt cannot fix.
type errPermanent struct{ error }

func (e errPermanent) Unwrap() error { return e.error }

// NewClaudeClient creates a Claude client with rate limiting and circuit breaker
func NewClaudeClient(cfg *config.Config, logger *logrus.Logger) *ClaudeClient {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "claude-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		IsSuccessful: func(err error) bool {
			var perm errPermanent
			return err == nil || errors.As(err, &perm)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit":    name,
				"from_state": from.String(),
				"to_state":   to.String(),
			}).Info("Claude API circuit breaker state changed")
		},
	})

	model := cfg.AnthropicModel
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}

	return &ClaudeClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // synthesis prompts are large
		},
		logger:         logger,
		apiKey:         cfg.AnthropicAPIKey,
		model:          model,
		baseURL:        "https://api.anthropic.com/v1",
		rateLimiter:    rate.NewLimiter(rate.Every(time.Second), 1),
		circuitBreaker: cb,
		retryAttempts:  3,
		retryBackoff:   time.Second,
	}
}

// Complete sends one user message and returns the concatenated text blocks.
func (c *ClaudeClient) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4000
	}
	request := ClaudeRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
		Messages:    []ClaudeMessage{{Role: "user", Content: prompt}},
		System:      opts.System,
	}

	response, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return c.makeRequest(ctx, request)
	})
	if err != nil {
		return "", fmt.Errorf("claude API request failed: %w", err)
	}

	resp := response.(*ClaudeResponse)
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	c.logger.WithFields(logrus.Fields{
		"model":         resp.Model,
		"input_tokens":  resp.Usage.InputTokens,
		"output_tokens": resp.Usage.OutputTokens,
		"stop_reason":   resp.StopReason,
	}).Debug("Claude completion finished")

	return text.String(), nil
}

// makeRequest handles the HTTP exchange with retries and exponential backoff
func (c *ClaudeClient) makeRequest(ctx context.Context, request ClaudeRequest) (*ClaudeResponse, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, errPermanent{fmt.Errorf("failed to marshal request: %w", err)}
	}

	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.retryBackoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := c.send(ctx, requestBody)
		if err == nil {
			return resp, nil
		}
		var perm errPermanent
		if errors.As(err, &perm) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", c.retryAttempts, lastErr)
}

func (c *ClaudeClient) send(ctx context.Context, body []byte) (*ClaudeResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, errPermanent{fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var claudeResp ClaudeResponse
		if err := json.NewDecoder(resp.Body).Decode(&claudeResp); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return &claudeResp, nil
	}

	var envelope claudeErrorEnvelope
	_ = json.NewDecoder(resp.Body).Decode(&envelope)
	message := envelope.Error.Message

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errPermanent{fmt.Errorf("invalid API credentials: %s", message)}
	case resp.StatusCode == http.StatusBadRequest:
		return nil, errPermanent{fmt.Errorf("bad request: %s", message)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("rate limit exceeded: %s", message)
	default:
		return nil, fmt.Errorf("unexpected error (status %d): %s", resp.StatusCode, message)
	}
}

// IsHealthy checks if the circuit is closed
func (c *ClaudeClient) IsHealthy() bool {
	return c.circuitBreaker.State() == gobreaker.StateClosed
}

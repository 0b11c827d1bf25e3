package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/stitts-dev/pick-research/internal/models"
)

const maxAttempts = 2 // one retry on transient failure

// httpTool is a JSON-over-HTTP research tool guarded by a circuit breaker.
type httpTool struct {
	tool           models.ToolKind
	url            string
	apiKey         string
	timeout        time.Duration
	retryBackoff   time.Duration
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	logger         *logrus.Logger
}

func newHTTPTool(tool models.ToolKind, url, apiKey string, timeout time.Duration, threshold int, logger *logrus.Logger) *httpTool {
	if threshold <= 0 {
		threshold = 5
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(tool) + "-tool",
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
		// only outages count against the breaker; a bad query or a caller
		// that stopped waiting is not an outage
		IsSuccessful: func(err error) bool {
			var te *ToolError
			if errors.As(err, &te) {
				return te.Kind == KindCanceled || !te.Retryable()
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit":    name,
				"from_state": from.String(),
				"to_state":   to.String(),
			}).Warn("Research tool circuit breaker state changed")
		},
	})

	return &httpTool{
		tool:           tool,
		url:            url,
		apiKey:         apiKey,
		timeout:        timeout,
		retryBackoff:   500 * time.Millisecond,
		httpClient:     &http.Client{},
		circuitBreaker: cb,
		logger:         logger,
	}
}

// call posts payload and decodes the JSON reply into out. Timeouts, network
// failures and 5xx are retried once; everything else returns immediately.
func (t *httpTool) call(ctx context.Context, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &ToolError{Kind: KindBadResponse, Tool: t.tool, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	var lastErr *ToolError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return &ToolError{Kind: KindCanceled, Tool: t.tool, Err: ctx.Err()}
			case <-time.After(t.retryBackoff):
			}
		}

		_, err := t.circuitBreaker.Execute(func() (interface{}, error) {
			return nil, t.do(ctx, body, out)
		})
		if err == nil {
			return nil
		}

		lastErr = t.classifyBreaker(err)
		if !lastErr.Retryable() || ctx.Err() != nil || t.circuitBreaker.State() == gobreaker.StateOpen {
			return lastErr
		}

		t.logger.WithFields(logrus.Fields{
			"tool":    t.tool,
			"attempt": attempt,
			"kind":    lastErr.Kind,
		}).Debug("Retrying research tool call")
	}
	return lastErr
}

func (t *httpTool) classifyBreaker(err error) *ToolError {
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	// gobreaker.ErrOpenState or ErrTooManyRequests
	return &ToolError{Kind: KindUnavailable, Tool: t.tool, Err: err}
}

// do performs a single attempt under the per-call timeout.
func (t *httpTool) do(ctx context.Context, body []byte, out interface{}) error {
	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return &ToolError{Kind: KindBadResponse, Tool: t.tool, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return t.transportError(ctx, callCtx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &ToolError{
			Kind:   statusKind(resp.StatusCode),
			Tool:   t.tool,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("unexpected response: %s", bytes.TrimSpace(snippet)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if callCtx.Err() != nil {
			return t.transportError(ctx, callCtx, err)
		}
		return &ToolError{Kind: KindBadResponse, Tool: t.tool, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

// transportError classifies a failed attempt. parent is the caller's
// context; callCtx adds the per-call timeout on top of it.
func (t *httpTool) transportError(parent, callCtx context.Context, err error) *ToolError {
	if parent.Err() != nil {
		return &ToolError{Kind: KindCanceled, Tool: t.tool, Err: err}
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return &ToolError{Kind: KindTimeout, Tool: t.tool, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &ToolError{Kind: KindCanceled, Tool: t.tool, Err: err}
	}
	return &ToolError{Kind: KindUnavailable, Tool: t.tool, Err: err}
}

func statusKind(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status >= 500:
		return KindUnavailable
	default:
		return KindBadResponse
	}
}

func (t *httpTool) state() gobreaker.State {
	return t.circuitBreaker.State()
}

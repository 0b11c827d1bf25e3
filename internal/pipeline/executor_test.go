package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/stitts-dev/pick-research/internal/models"
	"github.com/stitts-dev/pick-research/pkg/logger"
)

func newTestExecutor(concurrency int, ceiling time.Duration) *Executor {
	cfg := testConfig()
	cfg.ToolConcurrency = concurrency
	cfg.ResearchCeiling = ceiling
	return NewExecutor(cfg, logger.Discard())
}

func TestExecutor_AllSucceed(t *testing.T) {
	defer goleak.VerifyNone(t)

	queries := append(statsQueries(4), models.ResearchQuery{Text: "Celtics injuries", Tool: models.ToolWeb})
	gw := &fakeGateway{}

	bundle := newTestExecutor(3, 5*time.Second).Execute(context.Background(), gw, queries)

	require.Len(t, bundle.Results, 5)
	assert.Equal(t, 5, bundle.Attempted)
	assert.Zero(t, bundle.Failed)
	assert.Zero(t, bundle.Abandoned)
	assert.Equal(t, 4, bundle.CountByTool(models.ToolStats))
	assert.Equal(t, 1, bundle.CountByTool(models.ToolWeb))

	// results come back in plan order regardless of completion order
	for i := 0; i < 4; i++ {
		assert.Equal(t, fmt.Sprintf("query %d", i), bundle.Results[i].Query)
		assert.Equal(t, models.StatsResultWeight, bundle.Results[i].Weight)
	}
	web := bundle.Results[4]
	assert.Equal(t, models.WebResultWeight, web.Weight)
	assert.Contains(t, web.Answer, "news for Celtics injuries")
}

func TestExecutor_PartialFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	gw := &fakeGateway{
		stats: func(_ context.Context, text, _ string) (string, error) {
			if strings.HasSuffix(text, "1") || strings.HasSuffix(text, "3") {
				return "", unavailable(models.ToolStats)
			}
			return "ok " + text, nil
		},
	}

	bundle := newTestExecutor(2, 5*time.Second).Execute(context.Background(), gw, statsQueries(5))

	assert.Equal(t, 5, bundle.Attempted)
	assert.Equal(t, 2, bundle.Failed)
	require.Len(t, bundle.Results, 3)
	assert.Equal(t, "query 0", bundle.Results[0].Query)
	assert.Equal(t, "query 2", bundle.Results[1].Query)
	assert.Equal(t, "query 4", bundle.Results[2].Query)
	// each query reaches the gateway exactly once
	assert.Equal(t, int32(5), atomic.LoadInt32(&gw.calls))
}

func TestExecutor_AllFail(t *testing.T) {
	defer goleak.VerifyNone(t)

	gw := &fakeGateway{
		stats: func(context.Context, string, string) (string, error) { return "", unavailable(models.ToolStats) },
		web:   func(context.Context, string) ([]models.Snippet, error) { return nil, unavailable(models.ToolWeb) },
	}
	queries := append(statsQueries(3), models.ResearchQuery{Text: "news", Tool: models.ToolWeb})

	bundle := newTestExecutor(3, 5*time.Second).Execute(context.Background(), gw, queries)

	require.NotNil(t, bundle)
	assert.NotNil(t, bundle.Results)
	assert.True(t, bundle.Empty())
	assert.Equal(t, 4, bundle.Failed)
	assert.Equal(t, noResearchMarker, formatResearch(bundle))
}

func TestExecutor_NoQueries(t *testing.T) {
	bundle := newTestExecutor(3, time.Second).Execute(context.Background(), &fakeGateway{}, nil)
	require.NotNil(t, bundle)
	assert.True(t, bundle.Empty())
	assert.Zero(t, bundle.Attempted)
}

func TestExecutor_ConcurrencyBound(t *testing.T) {
	defer goleak.VerifyNone(t)

	gw := &fakeGateway{
		stats: func(ctx context.Context, text, _ string) (string, error) {
			time.Sleep(20 * time.Millisecond)
			return text, nil
		},
	}

	bundle := newTestExecutor(2, 5*time.Second).Execute(context.Background(), gw, statsQueries(8))

	assert.Len(t, bundle.Results, 8)
	assert.LessOrEqual(t, atomic.LoadInt32(&gw.peak), int32(2))
}

func TestExecutor_ConcurrencyClamped(t *testing.T) {
	assert.Equal(t, MaxToolConcurrency, newTestExecutor(50, time.Second).concurrency)
	assert.Equal(t, 4, newTestExecutor(0, time.Second).concurrency)
}

func TestExecutor_CeilingAbandonsSlowQueries(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	gw := &fakeGateway{
		stats: func(ctx context.Context, text, _ string) (string, error) {
			if text == "query 0" {
				return "fast", nil
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-release:
				return "late", nil
			}
		},
	}

	start := time.Now()
	bundle := newTestExecutor(3, 100*time.Millisecond).Execute(context.Background(), gw, statsQueries(3))
	close(release)

	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, bundle.Results, 1)
	assert.Equal(t, "fast", bundle.Results[0].Answer)
	assert.Equal(t, 2, bundle.Abandoned)
	assert.Zero(t, bundle.Failed)

	// stragglers observe cancellation and exit before goleak checks
	time.Sleep(50 * time.Millisecond)
}

func TestExecutor_RateSpacing(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testConfig()
	cfg.ToolCallInterval = 30 * time.Millisecond
	e := NewExecutor(cfg, logger.Discard())

	start := time.Now()
	bundle := e.Execute(context.Background(), &fakeGateway{}, statsQueries(4))

	assert.Len(t, bundle.Results, 4)
	// first call is immediate, the remaining three wait one interval each
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestFormatSnippets(t *testing.T) {
	snippets := []models.Snippet{
		{Title: " A ", Snippet: "first", URL: "https://a"},
		{Title: "B", Snippet: "second"},
		{Title: "C", Snippet: "third"},
		{Title: "D", Snippet: "fourth"},
	}
	assert.Equal(t, "- A: first (https://a)\n- B: second\n- C: third", formatSnippets(snippets))
}

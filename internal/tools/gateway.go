package tools

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/stitts-dev/pick-research/internal/models"
	"github.com/stitts-dev/pick-research/pkg/config"
)

// Gateway is the uniform interface to the research tools. Every error it
// returns is a *ToolError.
type Gateway interface {
	QueryStats(ctx context.Context, text, sport string) (string, error)
	QueryWeb(ctx context.Context, text string) ([]models.Snippet, error)
}

// AnswerCache stores tool answers across runs. Get returns an error on miss.
type AnswerCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type statsRequest struct {
	Query string `json:"query"`
	Sport string `json:"sport,omitempty"`
}

type statsResponse struct {
	Success bool   `json:"success"`
	Answer  string `json:"answer"`
	Error   string `json:"error,omitempty"`
}

type webRequest struct {
	Query string `json:"query"`
}

type webResponse struct {
	Results []models.Snippet `json:"results"`
}

// Client owns the long-lived HTTP clients and circuit breakers. Per-run
// state lives in a Session.
type Client struct {
	stats    *httpTool
	web      *httpTool
	cache    AnswerCache
	cacheTTL time.Duration
	logger   *logrus.Logger
}

// NewClient builds the stats and web-search clients from configuration.
// cache may be nil.
func NewClient(cfg *config.Config, cache AnswerCache, logger *logrus.Logger) *Client {
	return &Client{
		stats:    newHTTPTool(models.ToolStats, cfg.StatsToolURL, "", cfg.StatsToolTimeout, cfg.CircuitBreakerThreshold, logger),
		web:      newHTTPTool(models.ToolWeb, cfg.WebSearchURL, cfg.WebSearchAPIKey, cfg.WebSearchTimeout, cfg.CircuitBreakerThreshold, logger),
		cache:    cache,
		cacheTTL: cfg.ToolCacheTTL,
		logger:   logger,
	}
}

// IsHealthy reports whether neither tool's circuit is open.
func (c *Client) IsHealthy() bool {
	return c.stats.state() != gobreaker.StateOpen && c.web.state() != gobreaker.StateOpen
}

// Session returns a gateway scoped to a single pipeline run.
func (c *Client) Session() *Session {
	return &Session{
		client: c,
		memo:   make(map[string]memoEntry),
	}
}

type memoEntry struct {
	answer   string
	snippets []models.Snippet
	err      error
}

// SessionStats counts calls made through one session
type SessionStats struct {
	Calls     int `json:"calls"`
	MemoHits  int `json:"memo_hits"`
	CacheHits int `json:"cache_hits"`
	Failures  int `json:"failures"`
}

// Session is a per-run gateway. Identical queries within a run are answered
// once; failures are remembered too so a rate-limited query is not re-sent.
type Session struct {
	client *Client

	mu    sync.Mutex
	memo  map[string]memoEntry
	stats SessionStats
}

var _ Gateway = (*Session)(nil)

// Stats returns a copy of the session counters.
func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Session) lookup(key string) (memoEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.memo[key]
	if ok {
		s.stats.MemoHits++
	}
	return entry, ok
}

func (s *Session) remember(key string, entry memoEntry, cacheHit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memo[key] = entry
	if cacheHit {
		s.stats.CacheHits++
		return
	}
	s.stats.Calls++
	if entry.err != nil {
		s.stats.Failures++
	}
}

// QueryStats asks the statistics service a natural-language question.
func (s *Session) QueryStats(ctx context.Context, text, sport string) (string, error) {
	query := NormalizeQuery(text)
	if query == "" {
		return "", &ToolError{Kind: KindBadResponse, Tool: models.ToolStats, Err: errors.New("empty query")}
	}
	key := CacheKey(models.ToolStats, query, sport)
	if entry, ok := s.lookup(key); ok {
		return entry.answer, entry.err
	}

	var cached string
	if s.client.cache != nil && s.client.cache.Get(ctx, key, &cached) == nil && cached != "" {
		s.remember(key, memoEntry{answer: cached}, true)
		return cached, nil
	}

	var resp statsResponse
	err := s.client.stats.call(ctx, statsRequest{Query: query, Sport: sport}, &resp)
	if err == nil {
		switch {
		case !resp.Success:
			err = &ToolError{Kind: KindBadResponse, Tool: models.ToolStats, Err: errors.New(firstNonEmpty(resp.Error, "success=false"))}
		case strings.TrimSpace(resp.Answer) == "":
			err = &ToolError{Kind: KindBadResponse, Tool: models.ToolStats, Err: errors.New("empty answer")}
		}
	}
	if err != nil {
		s.remember(key, memoEntry{err: err}, false)
		return "", err
	}

	answer := strings.TrimSpace(resp.Answer)
	s.remember(key, memoEntry{answer: answer}, false)
	s.store(ctx, key, answer)
	return answer, nil
}

// QueryWeb runs a web search and returns the ranked snippets.
func (s *Session) QueryWeb(ctx context.Context, text string) ([]models.Snippet, error) {
	query := NormalizeQuery(text)
	if query == "" {
		return nil, &ToolError{Kind: KindBadResponse, Tool: models.ToolWeb, Err: errors.New("empty query")}
	}
	key := CacheKey(models.ToolWeb, query, "")
	if entry, ok := s.lookup(key); ok {
		return entry.snippets, entry.err
	}

	var cached []models.Snippet
	if s.client.cache != nil && s.client.cache.Get(ctx, key, &cached) == nil && len(cached) > 0 {
		s.remember(key, memoEntry{snippets: cached}, true)
		return cached, nil
	}

	var resp webResponse
	if err := s.client.web.call(ctx, webRequest{Query: query}, &resp); err != nil {
		s.remember(key, memoEntry{err: err}, false)
		return nil, err
	}

	snippets := make([]models.Snippet, 0, len(resp.Results))
	for _, r := range resp.Results {
		if strings.TrimSpace(r.Snippet) == "" && strings.TrimSpace(r.Title) == "" {
			continue
		}
		snippets = append(snippets, r)
	}
	if len(snippets) == 0 {
		err := &ToolError{Kind: KindBadResponse, Tool: models.ToolWeb, Err: errors.New("no results")}
		s.remember(key, memoEntry{err: err}, false)
		return nil, err
	}

	s.remember(key, memoEntry{snippets: snippets}, false)
	s.store(ctx, key, snippets)
	return snippets, nil
}

func (s *Session) store(ctx context.Context, key string, value interface{}) {
	if s.client.cache == nil || s.client.cacheTTL <= 0 {
		return
	}
	if err := s.client.cache.Set(ctx, key, value, s.client.cacheTTL); err != nil {
		s.client.logger.WithError(err).WithField("key", key).Debug("Failed to cache tool answer")
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

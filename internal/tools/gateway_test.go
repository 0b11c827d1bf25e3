package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/pick-research/internal/models"
	"github.com/stitts-dev/pick-research/pkg/config"
	"github.com/stitts-dev/pick-research/pkg/logger"
)

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]byte)}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	if !ok {
		return errors.New("cache miss")
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = raw
	return nil
}

type toolServer struct {
	*httptest.Server
	calls   int32
	queries chan string
}

func newToolServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, body map[string]string)) *toolServer {
	ts := &toolServer{queries: make(chan string, 16)}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&ts.calls, 1)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		select {
		case ts.queries <- body["query"]:
		default:
		}
		handler(w, r, body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *toolServer) callCount() int {
	return int(atomic.LoadInt32(&ts.calls))
}

func newTestClient(statsURL, webURL string, cache AnswerCache) *Client {
	cfg := &config.Config{
		StatsToolURL:            statsURL,
		StatsToolTimeout:        200 * time.Millisecond,
		WebSearchURL:            webURL,
		WebSearchAPIKey:         "test-key",
		WebSearchTimeout:        200 * time.Millisecond,
		ToolCacheTTL:            time.Minute,
		CircuitBreakerThreshold: 5,
	}
	c := NewClient(cfg, cache, logger.Discard())
	c.stats.retryBackoff = time.Millisecond
	c.web.retryBackoff = time.Millisecond
	return c
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestSession_QueryStats(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          interface{}
		slow          bool
		expectedKind  ErrorKind
		expectedCalls int
	}{
		{
			name:          "success",
			status:        http.StatusOK,
			body:          statsResponse{Success: true, Answer: "Tatum averages 28.1 points over his last 10 games."},
			expectedCalls: 1,
		},
		{
			name:          "rate limited is not retried",
			status:        http.StatusTooManyRequests,
			body:          map[string]string{"error": "slow down"},
			expectedKind:  KindRateLimited,
			expectedCalls: 1,
		},
		{
			name:          "server error retried once",
			status:        http.StatusInternalServerError,
			body:          map[string]string{"error": "boom"},
			expectedKind:  KindUnavailable,
			expectedCalls: 2,
		},
		{
			name:          "bad request is not retried",
			status:        http.StatusBadRequest,
			body:          map[string]string{"error": "bad query"},
			expectedKind:  KindBadResponse,
			expectedCalls: 1,
		},
		{
			name:          "unsuccessful answer",
			status:        http.StatusOK,
			body:          statsResponse{Success: false, Error: "no data"},
			expectedKind:  KindBadResponse,
			expectedCalls: 1,
		},
		{
			name:          "timeout retried once",
			status:        http.StatusOK,
			slow:          true,
			expectedKind:  KindTimeout,
			expectedCalls: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newToolServer(t, func(w http.ResponseWriter, r *http.Request, body map[string]string) {
				if tt.slow {
					select {
					case <-r.Context().Done():
					case <-time.After(2 * time.Second):
					}
					return
				}
				writeJSON(w, tt.status, tt.body)
			})

			session := newTestClient(srv.URL, srv.URL, nil).Session()
			answer, err := session.QueryStats(context.Background(), "How many points does Jayson Tatum average?", "NBA")

			if tt.expectedKind == "" {
				require.NoError(t, err)
				assert.Contains(t, answer, "28.1")
			} else {
				require.Error(t, err)
				var te *ToolError
				require.True(t, errors.As(err, &te))
				assert.Equal(t, tt.expectedKind, te.Kind)
				assert.Equal(t, models.ToolStats, te.Tool)
			}
			assert.Equal(t, tt.expectedCalls, srv.callCount())
		})
	}
}

func TestSession_NormalizesAndMemoizes(t *testing.T) {
	srv := newToolServer(t, func(w http.ResponseWriter, r *http.Request, body map[string]string) {
		writeJSON(w, http.StatusOK, statsResponse{Success: true, Answer: "42"})
	})
	session := newTestClient(srv.URL, srv.URL, nil).Session()

	_, err := session.QueryStats(context.Background(), "  Jokic   assists\nlast 5 games ", "NBA")
	require.NoError(t, err)
	_, err = session.QueryStats(context.Background(), "Jokic assists last 5 games", "NBA")
	require.NoError(t, err)

	assert.Equal(t, "Jokic assists last 5 games", <-srv.queries)
	assert.Equal(t, 1, srv.callCount())
	assert.Equal(t, SessionStats{Calls: 1, MemoHits: 1}, session.Stats())
}

func TestSession_FailureIsRemembered(t *testing.T) {
	srv := newToolServer(t, func(w http.ResponseWriter, r *http.Request, body map[string]string) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{})
	})
	session := newTestClient(srv.URL, srv.URL, nil).Session()

	for i := 0; i < 3; i++ {
		_, err := session.QueryStats(context.Background(), "same question", "")
		assert.Equal(t, KindRateLimited, KindOf(err))
	}
	assert.Equal(t, 1, srv.callCount())
}

func TestSession_QueryWeb(t *testing.T) {
	t.Run("drops blank results", func(t *testing.T) {
		srv := newToolServer(t, func(w http.ResponseWriter, r *http.Request, body map[string]string) {
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			writeJSON(w, http.StatusOK, webResponse{Results: []models.Snippet{
				{Title: "Celtics injury report", Snippet: "Porzingis questionable", URL: "https://example.com/a"},
				{},
			}})
		})
		session := newTestClient(srv.URL, srv.URL, nil).Session()

		snippets, err := session.QueryWeb(context.Background(), "Celtics injury report")
		require.NoError(t, err)
		require.Len(t, snippets, 1)
		assert.Equal(t, "Porzingis questionable", snippets[0].Snippet)
	})

	t.Run("no results is a bad response", func(t *testing.T) {
		srv := newToolServer(t, func(w http.ResponseWriter, r *http.Request, body map[string]string) {
			writeJSON(w, http.StatusOK, webResponse{})
		})
		session := newTestClient(srv.URL, srv.URL, nil).Session()

		_, err := session.QueryWeb(context.Background(), "nothing here")
		assert.Equal(t, KindBadResponse, KindOf(err))
	})

	t.Run("empty query", func(t *testing.T) {
		session := newTestClient("http://127.0.0.1:1", "http://127.0.0.1:1", nil).Session()
		_, err := session.QueryWeb(context.Background(), "   ")
		assert.Equal(t, KindBadResponse, KindOf(err))
	})
}

func TestSession_AnswerCacheSharedAcrossRuns(t *testing.T) {
	srv := newToolServer(t, func(w http.ResponseWriter, r *http.Request, body map[string]string) {
		writeJSON(w, http.StatusOK, statsResponse{Success: true, Answer: "cached answer"})
	})
	client := newTestClient(srv.URL, srv.URL, newMemoryCache())

	first, err := client.Session().QueryStats(context.Background(), "Luka rebounds", "NBA")
	require.NoError(t, err)

	second := client.Session()
	answer, err := second.QueryStats(context.Background(), "luka  rebounds", "nba")
	require.NoError(t, err)

	assert.Equal(t, first, answer)
	assert.Equal(t, 1, srv.callCount())
	assert.Equal(t, 1, second.Stats().CacheHits)
}

func TestClient_CircuitBreakerOpens(t *testing.T) {
	srv := newToolServer(t, func(w http.ResponseWriter, r *http.Request, body map[string]string) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{})
	})
	cfg := &config.Config{
		StatsToolURL:            srv.URL,
		StatsToolTimeout:        time.Second,
		WebSearchURL:            srv.URL,
		WebSearchTimeout:        time.Second,
		CircuitBreakerThreshold: 2,
	}
	client := NewClient(cfg, nil, logger.Discard())
	client.stats.retryBackoff = time.Millisecond

	_, err := client.Session().QueryStats(context.Background(), "first", "")
	assert.Equal(t, KindUnavailable, KindOf(err))
	assert.Equal(t, 2, srv.callCount())
	assert.False(t, client.IsHealthy())

	_, err = client.Session().QueryStats(context.Background(), "second", "")
	assert.Equal(t, KindUnavailable, KindOf(err))
	assert.Equal(t, 2, srv.callCount(), "open circuit short-circuits the call")
}

func TestClient_CallerCancellationDoesNotTripBreaker(t *testing.T) {
	srv := newToolServer(t, func(w http.ResponseWriter, r *http.Request, body map[string]string) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	cfg := &config.Config{
		StatsToolURL:            srv.URL,
		StatsToolTimeout:        time.Second,
		WebSearchURL:            srv.URL,
		WebSearchTimeout:        time.Second,
		CircuitBreakerThreshold: 2,
	}
	client := NewClient(cfg, nil, logger.Discard())
	client.stats.retryBackoff = time.Millisecond

	queries := []string{"tatum points", "brunson assists", "jokic rebounds", "durant points"}
	for i, q := range queries {
		var ctx context.Context
		var cancel context.CancelFunc
		if i%2 == 0 {
			// research ceiling: the run's deadline passes mid-call
			ctx, cancel = context.WithTimeout(context.Background(), 50*time.Millisecond)
		} else {
			ctx, cancel = context.WithCancel(context.Background())
			time.AfterFunc(50*time.Millisecond, cancel)
		}
		_, err := client.Session().QueryStats(ctx, q, "NBA")
		cancel()
		assert.Equal(t, KindCanceled, KindOf(err), q)
	}

	assert.Equal(t, len(queries), srv.callCount(), "cancelled calls are not retried")
	assert.True(t, client.IsHealthy())
}

func TestCacheKey(t *testing.T) {
	a := CacheKey(models.ToolStats, "Tatum  points", "NBA")
	b := CacheKey(models.ToolStats, " tatum points ", "nba")
	c := CacheKey(models.ToolWeb, "Tatum points", "NBA")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

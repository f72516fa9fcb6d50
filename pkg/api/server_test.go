package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	echo "github.com/labstack/echo/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshield-labs/coordengine/pkg/cache"
	"github.com/dshield-labs/coordengine/pkg/config"
	"github.com/dshield-labs/coordengine/pkg/database"
	"github.com/dshield-labs/coordengine/pkg/llm"
	"github.com/dshield-labs/coordengine/pkg/models"
	"github.com/dshield-labs/coordengine/pkg/services"
	"github.com/dshield-labs/coordengine/pkg/state"
)

const testAPIKey = "test-secret-key-12345"

// recordingQueue satisfies services.Enqueuer without running workers.
type recordingQueue struct {
	ids  []string
	full bool
}

func (q *recordingQueue) Enqueue(analysisID string) error {
	if q.full {
		return services.ErrQueueFull
	}
	q.ids = append(q.ids, analysisID)
	return nil
}

type serverFixture struct {
	server *Server
	store  *state.Store
	cache  *cache.Cache
	queue  *recordingQueue
	mr     *miniredis.Miniredis
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	client := database.NewClientFromRedis(rdb)
	store := state.NewStore(client, config.DefaultCacheConfig())
	resultCache := cache.New(client, config.DefaultCacheConfig())
	queue := &recordingQueue{}
	svc := services.NewAnalysisService(store, resultCache, queue, config.DefaultAnalysisConfig())

	cfg := &config.Config{
		Server:    &config.ServerConfig{Port: "8080", APIKey: testAPIKey},
		Queue:     config.DefaultQueueConfig(),
		Analysis:  config.DefaultAnalysisConfig(),
		LLM:       config.DefaultLLMConfig(),
		Cache:     config.DefaultCacheConfig(),
		RateLimit: config.DefaultRateLimitConfig(),
	}

	return &serverFixture{
		server: NewServer(cfg, client, svc, store, resultCache, nil, nil, nil),
		store:  store,
		cache:  resultCache,
		queue:  queue,
		mr:     mr,
	}
}

// do issues an authenticated request against the full router.
func (f *serverFixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testAPIKey)
	rec := httptest.NewRecorder()
	f.server.Echo().ServeHTTP(rec, req)
	return rec
}

const submitBody = `{
	"attack_sessions": [
		{"source_ip": "203.0.113.10", "timestamp": "2026-08-01T10:00:00Z", "payload": "GET /admin"},
		{"source_ip": "203.0.113.11", "timestamp": "2026-08-01T10:01:00Z", "payload": "GET /admin"}
	]
}`

func TestSubmitAnalysisEndpoint(t *testing.T) {
	t.Run("accepts a valid submission", func(t *testing.T) {
		f := newServerFixture(t)
		rec := f.do(http.MethodPost, "/api/v1/analyses", submitBody)

		require.Equal(t, http.StatusAccepted, rec.Code)
		var resp AnalysisSubmittedResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.AnalysisID)
		assert.Equal(t, string(models.StatusQueued), resp.Status)
		assert.Equal(t, []string{resp.AnalysisID}, f.queue.ids)

		// Result fields are present but empty until the pipeline runs.
		var raw map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
		assert.JSONEq(t, "null", string(raw["coordination_confidence"]))
		assert.JSONEq(t, "null", string(raw["evidence"]))
		assert.JSONEq(t, "false", string(raw["enrichment_applied"]))
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		f := newServerFixture(t)
		rec := f.do(http.MethodPost, "/api/v1/analyses", `{"attack_sessions": [`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("validation failure carries the field path", func(t *testing.T) {
		f := newServerFixture(t)
		body := strings.Replace(submitBody, "203.0.113.11", "not-an-ip", 1)
		rec := f.do(http.MethodPost, "/api/v1/analyses", body)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp.Detail, "attack_sessions[1].source_ip")
		assert.False(t, resp.Timestamp.IsZero())
	})

	t.Run("full queue returns 503 with a machine-readable code", func(t *testing.T) {
		f := newServerFixture(t)
		f.queue.full = true
		rec := f.do(http.MethodPost, "/api/v1/analyses", submitBody)

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, ErrCodeQueueFull, resp.ErrorCode)
	})

	t.Run("missing api key is rejected before the service runs", func(t *testing.T) {
		f := newServerFixture(t)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", strings.NewReader(submitBody))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		f.server.Echo().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, f.queue.ids)
	})
}

func TestBulkSubmitEndpoint(t *testing.T) {
	f := newServerFixture(t)
	body := `{
		"session_batches": [
			[
				{"source_ip": "203.0.113.10", "timestamp": "2026-08-01T10:00:00Z", "payload": "a"},
				{"source_ip": "203.0.113.11", "timestamp": "2026-08-01T10:01:00Z", "payload": "a"}
			],
			[
				{"source_ip": "198.51.100.1", "timestamp": "2026-08-01T11:00:00Z", "payload": "b"},
				{"source_ip": "198.51.100.2", "timestamp": "2026-08-01T11:01:00Z", "payload": "b"}
			]
		]
	}`
	rec := f.do(http.MethodPost, "/api/v1/analyses/bulk", body)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp BulkSubmittedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.BatchCount)
	assert.Equal(t, string(models.StatusQueued), resp.Status)
	assert.Len(t, resp.AnalysisIDs, 2)
	assert.Equal(t, resp.AnalysisIDs, f.queue.ids)
}

func TestGetAnalysisEndpoint(t *testing.T) {
	t.Run("returns the queued status", func(t *testing.T) {
		f := newServerFixture(t)
		rec := f.do(http.MethodPost, "/api/v1/analyses", submitBody)
		require.Equal(t, http.StatusAccepted, rec.Code)
		var submitted AnalysisSubmittedResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))

		rec = f.do(http.MethodGet, "/api/v1/analyses/"+submitted.AnalysisID, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var result models.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.Equal(t, models.StatusQueued, result.Status)
	})

	t.Run("unknown id returns the 404 envelope", func(t *testing.T) {
		f := newServerFixture(t)
		rec := f.do(http.MethodGet, "/api/v1/analyses/no-such-id", "")

		require.Equal(t, http.StatusNotFound, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "analysis not found", resp.Detail)
	})
}

func TestGetProgressEndpoint(t *testing.T) {
	f := newServerFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SaveProgress(ctx, &models.Progress{
		AnalysisID: "wf-1",
		Step:       "pattern_analyzer",
		Percent:    20,
		State:      "progress",
		UpdatedAt:  time.Now().UTC(),
	}))

	rec := f.do(http.MethodGet, "/api/v1/analyses/wf-1/progress", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var progress models.Progress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &progress))
	assert.Equal(t, 20, progress.Percent)
	assert.Equal(t, "pattern_analyzer", progress.Step)

	rec = f.do(http.MethodGet, "/api/v1/analyses/wf-unknown/progress", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelAnalysisEndpoint(t *testing.T) {
	// Without a worker pool nothing is in flight, so cancel conflicts.
	f := newServerFixture(t)
	rec := f.do(http.MethodPost, "/api/v1/analyses/wf-1/cancel", "")

	require.Equal(t, http.StatusConflict, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "analysis is not currently processing", resp.Detail)
}

func TestHealthEndpoints(t *testing.T) {
	t.Run("healthy without auth", func(t *testing.T) {
		f := newServerFixture(t)
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		f.server.Echo().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, healthStatusHealthy, resp.Status)
		assert.Equal(t, healthStatusHealthy, resp.Checks["redis"].Status)
	})

	t.Run("redis outage turns unhealthy", func(t *testing.T) {
		f := newServerFixture(t)
		f.mr.Close()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		f.server.Echo().ServeHTTP(rec, req)

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, healthStatusUnhealthy, resp.Status)
	})

	t.Run("liveness reports uptime", func(t *testing.T) {
		f := newServerFixture(t)
		req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
		rec := httptest.NewRecorder()
		f.server.Echo().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp LivenessResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "alive", resp.Status)
		assert.GreaterOrEqual(t, resp.UptimeSeconds, 0.0)
	})

	t.Run("unreachable inference endpoint blocks readiness", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		client := database.NewClientFromRedis(rdb)
		store := state.NewStore(client, config.DefaultCacheConfig())
		resultCache := cache.New(client, config.DefaultCacheConfig())
		svc := services.NewAnalysisService(store, resultCache, &recordingQueue{}, config.DefaultAnalysisConfig())

		llmCfg := config.DefaultLLMConfig()
		llmCfg.BaseURL = "http://127.0.0.1:1"
		llmCfg.RequestTimeout = 200 * time.Millisecond

		cfg := &config.Config{
			Server: &config.ServerConfig{Port: "8080", APIKey: testAPIKey},
			Cache:  config.DefaultCacheConfig(),
		}
		server := NewServer(cfg, client, svc, store, resultCache, nil, llm.NewClient(llmCfg), nil)

		req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
		rec := httptest.NewRecorder()
		server.Echo().ServeHTTP(rec, req)

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var resp ReadinessResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "not_ready", resp.Status)
		assert.Equal(t, healthStatusUnhealthy, resp.Checks["llm"].Status)
		assert.Equal(t, healthStatusHealthy, resp.Checks["state_store"].Status)
	})

	t.Run("readiness gates on the backends", func(t *testing.T) {
		f := newServerFixture(t)
		req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
		rec := httptest.NewRecorder()
		f.server.Echo().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		f.mr.Close()
		rec = httptest.NewRecorder()
		f.server.Echo().ServeHTTP(rec, req)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var resp ReadinessResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "not_ready", resp.Status)
	})
}

func TestSecurityHeaders(t *testing.T) {
	f := newServerFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	f.server.Echo().ServeHTTP(rec, req)

	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
}

func TestRateLimitMiddleware(t *testing.T) {
	newLimiter := func(t *testing.T, mutate func(*config.RateLimitConfig)) *cache.Limiter {
		t.Helper()
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })

		cfg := config.DefaultRateLimitConfig()
		mutate(cfg)
		return cache.NewLimiter(database.NewClientFromRedis(rdb), cfg)
	}

	e := echo.New()
	call := func(handler echo.HandlerFunc, path, apiKey, remoteAddr string) (*httptest.ResponseRecorder, error) {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = remoteAddr
		if apiKey != "" {
			req.Header.Set("X-API-Key", apiKey)
		}
		rec := httptest.NewRecorder()
		return rec, handler(e.NewContext(req, rec))
	}
	requireDenied := func(t *testing.T, rec *httptest.ResponseRecorder, err error) {
		t.Helper()
		require.Error(t, err)
		var ee *envelopeError
		require.ErrorAs(t, err, &ee)
		assert.Equal(t, http.StatusTooManyRequests, ee.StatusCode())
		assert.Equal(t, ErrCodeRateLimited, ee.resp.ErrorCode)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	}
	ok := func(c *echo.Context) error { return c.NoContent(http.StatusOK) }

	t.Run("per ip", func(t *testing.T) {
		limiter := newLimiter(t, func(c *config.RateLimitConfig) { c.IPLimit = 2 })
		handler := rateLimit(limiter)(ok)

		for i := 0; i < 2; i++ {
			_, err := call(handler, "/api/v1/analyses", "", "198.51.100.7:1234")
			require.NoError(t, err)
		}
		rec, err := call(handler, "/api/v1/analyses", "", "198.51.100.7:1234")
		requireDenied(t, rec, err)
	})

	t.Run("per api key", func(t *testing.T) {
		limiter := newLimiter(t, func(c *config.RateLimitConfig) { c.APIKeyLimit = 1 })
		handler := rateLimit(limiter)(ok)

		// Distinct source addresses, same key: the key budget trips.
		_, err := call(handler, "/api/v1/analyses", testAPIKey, "198.51.100.7:1234")
		require.NoError(t, err)
		rec, err := call(handler, "/api/v1/analyses", testAPIKey, "198.51.100.8:1234")
		requireDenied(t, rec, err)
	})

	t.Run("per endpoint", func(t *testing.T) {
		limiter := newLimiter(t, func(c *config.RateLimitConfig) { c.EndpointLimit = 1 })
		handler := rateLimit(limiter)(ok)

		_, err := call(handler, "/api/v1/analyses", "", "198.51.100.7:1234")
		require.NoError(t, err)
		rec, err := call(handler, "/api/v1/analyses", "", "198.51.100.8:1234")
		requireDenied(t, rec, err)

		// A different endpoint keeps its own window.
		_, err = call(handler, "/api/v1/analyses/bulk", "", "198.51.100.9:1234")
		assert.NoError(t, err)
	})

	t.Run("per key and endpoint combined", func(t *testing.T) {
		limiter := newLimiter(t, func(c *config.RateLimitConfig) { c.KeyEndpointLimit = 1 })
		handler := rateLimit(limiter)(ok)

		_, err := call(handler, "/api/v1/analyses", testAPIKey, "198.51.100.7:1234")
		require.NoError(t, err)
		// Same key on another endpoint still has budget.
		_, err = call(handler, "/api/v1/analyses/bulk", testAPIKey, "198.51.100.7:1234")
		require.NoError(t, err)
		rec, err := call(handler, "/api/v1/analyses", testAPIKey, "198.51.100.7:1234")
		requireDenied(t, rec, err)
	})

	t.Run("nil limiter admits everything", func(t *testing.T) {
		open := rateLimit(nil)(ok)
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		rec := httptest.NewRecorder()
		assert.NoError(t, open(e.NewContext(req, rec)))
	})
}

func TestMapServiceError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   int
		detail string
	}{
		{
			name:   "validation error",
			err:    services.NewValidationError("analysis_depth", "must be one of minimal, standard, deep"),
			code:   http.StatusBadRequest,
			detail: "validation error on field 'analysis_depth'",
		},
		{
			name:   "not found",
			err:    services.ErrNotFound,
			code:   http.StatusNotFound,
			detail: "analysis not found",
		},
		{
			name:   "invalid input",
			err:    services.ErrInvalidInput,
			code:   http.StatusBadRequest,
			detail: "invalid input",
		},
		{
			name:   "unexpected error",
			err:    errors.New("redis exploded"),
			code:   http.StatusInternalServerError,
			detail: "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapServiceError(tt.err)
			var he *echo.HTTPError
			require.ErrorAs(t, err, &he)
			assert.Equal(t, tt.code, he.Code)
			assert.Contains(t, he.Message, tt.detail)
		})
	}

	t.Run("queue full carries the error code", func(t *testing.T) {
		err := mapServiceError(services.ErrQueueFull)
		var ee *envelopeError
		require.ErrorAs(t, err, &ee)
		assert.Equal(t, http.StatusServiceUnavailable, ee.StatusCode())
		assert.Equal(t, ErrCodeQueueFull, ee.resp.ErrorCode)
	})
}

func TestHTTPErrorHandler(t *testing.T) {
	render := func(err error) *httptest.ResponseRecorder {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		httpErrorHandler(e.NewContext(req, rec), err)
		return rec
	}

	t.Run("string message", func(t *testing.T) {
		rec := render(echo.NewHTTPError(http.StatusNotFound, "analysis not found"))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "analysis not found", resp.Detail)
		assert.False(t, resp.Timestamp.IsZero())
	})

	t.Run("structured message", func(t *testing.T) {
		rec := render(&envelopeError{
			code: http.StatusServiceUnavailable,
			resp: &ErrorResponse{
				Detail:    "analysis queue is at capacity, retry later",
				ErrorCode: ErrCodeQueueFull,
			},
		})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, ErrCodeQueueFull, resp.ErrorCode)
	})

	t.Run("bare error becomes 500", func(t *testing.T) {
		rec := render(errors.New("boom"))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "internal server error", resp.Detail)
	})
}

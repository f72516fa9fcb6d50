package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshield-labs/coordengine/pkg/cache"
	"github.com/dshield-labs/coordengine/pkg/config"
	"github.com/dshield-labs/coordengine/pkg/database"
)

// fakeOllama serves the two endpoints the client uses.
func fakeOllama(t *testing.T, generate http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]string{{"name": "llama-3.1-8b-instruct"}},
		})
	})
	if generate != nil {
		mux.HandleFunc("/api/generate", generate)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testClient(baseURL string) *Client {
	cfg := config.DefaultLLMConfig()
	cfg.BaseURL = baseURL
	cfg.MaxRetries = 3
	cfg.RequestTimeout = 5 * time.Second
	return NewClient(cfg)
}

func TestClient_ListModels(t *testing.T) {
	srv := fakeOllama(t, nil)
	c := testClient(srv.URL)

	names, err := c.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama-3.1-8b-instruct"}, names)
	assert.NoError(t, c.Health(context.Background()))
}

func TestClient_HealthFailsWhenDown(t *testing.T) {
	srv := fakeOllama(t, nil)
	c := testClient(srv.URL)
	srv.Close()

	assert.Error(t, c.Health(context.Background()))
}

func TestClient_Generate(t *testing.T) {
	var gotBody generateBody
	srv := fakeOllama(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(generateReply{
			Model:           "llama-3.1-8b-instruct",
			Response:        "analysis text",
			PromptEvalCount: 42,
			EvalCount:       17,
			TotalDuration:   int64(1200 * time.Millisecond),
		})
	})
	c := testClient(srv.URL)

	resp, err := c.Generate(context.Background(), GenerateRequest{
		Prompt:      "analyze this",
		Temperature: 0.1,
		TopP:        0.9,
	})
	require.NoError(t, err)

	assert.Equal(t, "analysis text", resp.Text)
	assert.Equal(t, 42, resp.PromptTokens)
	assert.Equal(t, 17, resp.OutputTokens)
	assert.Equal(t, 1200*time.Millisecond, resp.InferenceTime)

	// Defaults fill in from config.
	assert.Equal(t, "llama-3.1-8b-instruct", gotBody.Model)
	assert.False(t, gotBody.Stream)
	assert.Equal(t, 2048, gotBody.Options.NumPredict)
	assert.Equal(t, 0.1, gotBody.Options.Temperature)
}

func TestClient_GenerateRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := fakeOllama(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "overloaded", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(generateReply{Model: "m", Response: "ok"})
	})
	c := testClient(srv.URL)

	resp, err := c.Generate(context.Background(), GenerateRequest{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_GenerateExhaustsRetryBudget(t *testing.T) {
	var calls atomic.Int32
	srv := fakeOllama(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "broken", http.StatusInternalServerError)
	})
	c := testClient(srv.URL)

	_, err := c.Generate(context.Background(), GenerateRequest{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_GenerateMemoizesIdenticalRequests(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	memo := cache.New(database.NewClientFromRedis(rdb), config.DefaultCacheConfig())

	var calls atomic.Int32
	srv := fakeOllama(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(generateReply{
			Model:     "llama-3.1-8b-instruct",
			Response:  "stable reply",
			EvalCount: 9,
		})
	})
	c := testClient(srv.URL).WithCache(memo)

	first, err := c.Generate(context.Background(), GenerateRequest{Prompt: "same prompt", Temperature: 0.1})
	require.NoError(t, err)
	second, err := c.Generate(context.Background(), GenerateRequest{Prompt: "same prompt", Temperature: 0.1})
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load(), "identical request is served from the cache")
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, first.OutputTokens, second.OutputTokens)

	// A different prompt hashes to a different key and reaches the endpoint.
	_, err = c.Generate(context.Background(), GenerateRequest{Prompt: "other prompt", Temperature: 0.1})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_GenerateStopsOnCancelledContext(t *testing.T) {
	srv := fakeOllama(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow", http.StatusInternalServerError)
	})
	c := testClient(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Generate(ctx, GenerateRequest{Prompt: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

// Package llm provides the client for the local inference endpoint
// (Ollama-compatible HTTP API) and the structured coordination-analysis
// operations built on top of it.
package llm

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dshield-labs/coordengine/pkg/cache"
	"github.com/dshield-labs/coordengine/pkg/config"
	"github.com/dshield-labs/coordengine/pkg/version"
)

// Client talks to an Ollama-compatible inference server. It is safe for
// concurrent use; requests are independent and carry no session state.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cfg        *config.LLMConfig
	memo       *cache.Cache // nil disables prompt memoization
}

// NewClient creates an LLM client from configuration.
func NewClient(cfg *config.LLMConfig) *Client {
	if cfg == nil {
		cfg = config.DefaultLLMConfig()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		cfg: cfg,
	}
}

// WithCache enables prompt memoization: identical generation requests within
// the llm namespace's TTL are served from the cache instead of re-running
// inference. Temperature 0.1 keeps replies stable enough to reuse.
func (c *Client) WithCache(memo *cache.Cache) *Client {
	c.memo = memo
	return c
}

// GenerateRequest is one non-streaming generation call.
type GenerateRequest struct {
	Prompt      string
	Model       string  // empty = configured default
	Temperature float64 // [0,2]
	TopP        float64 // [0,1]
	MaxTokens   int     // >= 1
}

// GenerateResponse carries the generated text plus usage metadata.
type GenerateResponse struct {
	Text          string
	Model         string
	PromptTokens  int
	OutputTokens  int
	InferenceTime time.Duration
}

// Wire types for the Ollama API.

type generateBody struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict"`
}

type generateReply struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	TotalDuration   int64  `json:"total_duration"` // nanoseconds
}

type tagsReply struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels returns the model names available at the endpoint.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("building list-models request: %w", err)
	}
	req.Header.Set("User-Agent", version.Full())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing models: unexpected status %d", resp.StatusCode)
	}

	var reply tagsReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("decoding model list: %w", err)
	}

	names := make([]string, 0, len(reply.Models))
	for _, m := range reply.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Health probes the endpoint. Healthy means the model list is reachable.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.ListModels(ctx)
	return err
}

// Generate performs a non-streaming generation with the configured retry
// budget. Network errors, timeouts, and non-200 responses propagate after
// the budget is exhausted; the caller decides fallback.
func (c *Client) Generate(ctx context.Context, genReq GenerateRequest) (*GenerateResponse, error) {
	if genReq.Model == "" {
		genReq.Model = c.cfg.Model
	}
	if genReq.MaxTokens <= 0 {
		genReq.MaxTokens = c.cfg.MaxTokens
	}

	body, err := json.Marshal(generateBody{
		Model:  genReq.Model,
		Prompt: genReq.Prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: genReq.Temperature,
			TopP:        genReq.TopP,
			NumPredict:  genReq.MaxTokens,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling generate request: %w", err)
	}

	// The wire body covers model, prompt, and sampling options, so its hash
	// is the memoization key.
	memoKey := ""
	if c.memo != nil {
		sum := sha256.Sum256(body)
		memoKey = hex.EncodeToString(sum[:])
		var cached GenerateResponse
		if hit, err := c.memo.Get(ctx, cache.NamespaceLLM, memoKey, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		resp, err := c.generateOnce(ctx, body)
		if err == nil {
			if memoKey != "" {
				if err := c.memo.Set(ctx, cache.NamespaceLLM, memoKey, resp); err != nil {
					slog.Warn("Failed to memoize generate response", "error", err)
				}
			}
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, fmt.Errorf("generate cancelled: %w", ctx.Err())
		}
		if attempt < c.cfg.MaxRetries {
			slog.Warn("LLM generate failed, retrying",
				"attempt", attempt, "model", genReq.Model, "error", err)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("generate cancelled: %w", ctx.Err())
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
	}
	return nil, fmt.Errorf("generate failed after %d attempts: %w", c.cfg.MaxRetries, lastErr)
}

func (c *Client) generateOnce(ctx context.Context, body []byte) (*GenerateResponse, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.Full())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling generate: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("generate returned status %d: %s", resp.StatusCode, snippet)
	}

	var reply generateReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("decoding generate response: %w", err)
	}

	inference := time.Duration(reply.TotalDuration)
	if inference <= 0 {
		inference = time.Since(start)
	}

	return &GenerateResponse{
		Text:          reply.Response,
		Model:         reply.Model,
		PromptTokens:  reply.PromptEvalCount,
		OutputTokens:  reply.EvalCount,
		InferenceTime: inference,
	}, nil
}

package config

import "time"

// LLMConfig contains settings for the local inference endpoint.
type LLMConfig struct {
	// BaseURL of the Ollama-compatible inference server.
	BaseURL string

	// Model is the default model name used for generation.
	Model string

	// Sampling options.
	Temperature float64 // [0,2]
	TopP        float64 // [0,1]
	MaxTokens   int     // >= 1

	// RequestTimeout bounds a single generate call.
	RequestTimeout time.Duration

	// MaxRetries is the retry budget for transient failures.
	MaxRetries int
}

// DefaultLLMConfig returns the built-in LLM defaults.
func DefaultLLMConfig() *LLMConfig {
	return &LLMConfig{
		BaseURL:        "http://localhost:11434",
		Model:          "llama-3.1-8b-instruct",
		Temperature:    0.1,
		TopP:           0.9,
		MaxTokens:      2048,
		RequestTimeout: 30 * time.Second,
		MaxRetries:     3,
	}
}

func applyLLMEnv(c *LLMConfig) {
	c.BaseURL = getEnv("LLM_BASE_URL", c.BaseURL)
	c.Model = getEnv("LLM_MODEL", c.Model)
	c.Temperature = getEnvFloat("LLM_TEMPERATURE", c.Temperature)
	c.TopP = getEnvFloat("LLM_TOP_P", c.TopP)
	c.MaxTokens = getEnvInt("LLM_MAX_TOKENS", c.MaxTokens)
	c.RequestTimeout = getEnvDuration("LLM_REQUEST_TIMEOUT", c.RequestTimeout)
	c.MaxRetries = getEnvInt("LLM_MAX_RETRIES", c.MaxRetries)
}

// Package config holds the explicit configuration records for the
// coordination analysis engine. Each subsystem gets its own record with a
// Default* constructor; Load resolves overrides from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the root configuration object handed to components at startup.
type Config struct {
	Server    *ServerConfig
	Queue     *QueueConfig
	Analysis  *AnalysisConfig
	LLM       *LLMConfig
	Cache     *CacheConfig
	RateLimit *RateLimitConfig
	Retention *RetentionConfig
}

// Load builds the full configuration from defaults plus environment overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Server:    DefaultServerConfig(),
		Queue:     DefaultQueueConfig(),
		Analysis:  DefaultAnalysisConfig(),
		LLM:       DefaultLLMConfig(),
		Cache:     DefaultCacheConfig(),
		RateLimit: DefaultRateLimitConfig(),
		Retention: DefaultRetentionConfig(),
	}

	applyServerEnv(cfg.Server)
	applyQueueEnv(cfg.Queue)
	applyAnalysisEnv(cfg.Analysis)
	applyLLMEnv(cfg.LLM)
	applyRateLimitEnv(cfg.RateLimit)
	applyRetentionEnv(cfg.Retention)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that would otherwise surface as
// confusing runtime behavior.
func (c *Config) Validate() error {
	if c.Queue.WorkerCount < 1 {
		return fmt.Errorf("queue: worker_count must be >= 1, got %d", c.Queue.WorkerCount)
	}
	if c.Queue.Capacity < 1 {
		return fmt.Errorf("queue: capacity must be >= 1, got %d", c.Queue.Capacity)
	}
	if c.Analysis.MaxSessions < 2 {
		return fmt.Errorf("analysis: max_sessions must be >= 2, got %d", c.Analysis.MaxSessions)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm: temperature must be in [0,2], got %v", c.LLM.Temperature)
	}
	if c.LLM.TopP < 0 || c.LLM.TopP > 1 {
		return fmt.Errorf("llm: top_p must be in [0,1], got %v", c.LLM.TopP)
	}
	if c.LLM.MaxTokens < 1 {
		return fmt.Errorf("llm: max_tokens must be >= 1, got %d", c.LLM.MaxTokens)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

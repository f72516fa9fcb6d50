package config

import "time"

// RateLimitConfig holds sliding-window rate limiter settings.
type RateLimitConfig struct {
	// Window is the rolling window length.
	Window time.Duration

	// Per-category request limits within one window.
	APIKeyLimit   int
	EndpointLimit int
	GlobalLimit   int
	IPLimit       int
	UserLimit     int

	// KeyEndpointLimit bounds a single API key on a single endpoint. Tighter
	// than APIKeyLimit so one hot endpoint cannot consume a key's whole budget.
	KeyEndpointLimit int
}

// DefaultRateLimitConfig returns the built-in rate limit defaults.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		Window:           60 * time.Second,
		APIKeyLimit:      60,
		EndpointLimit:    120,
		GlobalLimit:      600,
		IPLimit:          60,
		UserLimit:        60,
		KeyEndpointLimit: 30,
	}
}

func applyRateLimitEnv(c *RateLimitConfig) {
	c.Window = getEnvDuration("RATE_LIMIT_WINDOW", c.Window)
	c.APIKeyLimit = getEnvInt("RATE_LIMIT_API_KEY", c.APIKeyLimit)
	c.EndpointLimit = getEnvInt("RATE_LIMIT_ENDPOINT", c.EndpointLimit)
	c.GlobalLimit = getEnvInt("RATE_LIMIT_GLOBAL", c.GlobalLimit)
	c.IPLimit = getEnvInt("RATE_LIMIT_IP", c.IPLimit)
	c.UserLimit = getEnvInt("RATE_LIMIT_USER", c.UserLimit)
	c.KeyEndpointLimit = getEnvInt("RATE_LIMIT_KEY_ENDPOINT", c.KeyEndpointLimit)
}

package config

import "time"

// RetentionConfig controls the background janitor. Redis TTLs expire the
// state keys themselves; the janitor only reconciles the indexes that have
// no TTL of their own.
type RetentionConfig struct {
	// CleanupInterval is how often the janitor runs.
	CleanupInterval time.Duration
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		CleanupInterval: 10 * time.Minute,
	}
}

func applyRetentionEnv(c *RetentionConfig) {
	c.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", c.CleanupInterval)
}

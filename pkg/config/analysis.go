package config

// AnalysisConfig contains limits and knobs for the analysis pipeline itself.
type AnalysisConfig struct {
	// MaxSessions is the maximum number of attack sessions per request.
	MaxSessions int

	// MaxBulkBatches is the maximum number of batches per bulk submission.
	MaxBulkBatches int

	// MaxPayloadBytes bounds a single session payload.
	MaxPayloadBytes int

	// ToolConcurrency caps concurrent per-address lookups within a tool stage.
	ToolConcurrency int
}

// DefaultAnalysisConfig returns the built-in analysis defaults.
func DefaultAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{
		MaxSessions:     1000,
		MaxBulkBatches:  100,
		MaxPayloadBytes: 10000,
		ToolConcurrency: 8,
	}
}

func applyAnalysisEnv(c *AnalysisConfig) {
	c.MaxSessions = getEnvInt("ANALYSIS_MAX_SESSIONS", c.MaxSessions)
	c.MaxBulkBatches = getEnvInt("ANALYSIS_MAX_BULK_BATCHES", c.MaxBulkBatches)
	c.ToolConcurrency = getEnvInt("TOOL_CONCURRENCY", c.ToolConcurrency)
}

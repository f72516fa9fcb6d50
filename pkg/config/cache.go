package config

import "time"

// CacheConfig holds per-namespace TTLs for the cache layer.
type CacheConfig struct {
	AnalysisTTL   time.Duration
	CampaignTTL   time.Duration
	ThreatTTL     time.Duration
	WorkflowTTL   time.Duration
	EnrichmentTTL time.Duration
	LLMTTL        time.Duration
	RateTTL       time.Duration
	UserTTL       time.Duration
}

// DefaultCacheConfig returns the built-in cache TTLs.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		AnalysisTTL:   24 * time.Hour,
		CampaignTTL:   6 * time.Hour,
		ThreatTTL:     1 * time.Hour,
		WorkflowTTL:   1 * time.Hour,
		EnrichmentTTL: 2 * time.Hour,
		LLMTTL:        5 * time.Minute,
		RateTTL:       60 * time.Second,
		UserTTL:       30 * time.Minute,
	}
}

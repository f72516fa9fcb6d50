// Package cache provides the namespaced TTL cache and the sliding-window
// rate limiter, both backed by Redis. The cache is best-effort: backend
// failures degrade callers but never fail the analysis pipeline.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dshield-labs/coordengine/pkg/config"
	"github.com/dshield-labs/coordengine/pkg/database"
)

// Cache namespaces. Keys are formatted "<namespace>:<identifier>".
const (
	NamespaceAnalysis   = "analysis"
	NamespaceCampaign   = "campaign"
	NamespaceThreat     = "threat"
	NamespaceWorkflow   = "workflow"
	NamespaceEnrichment = "enrichment"
	NamespaceLLM        = "llm"
	NamespaceRate       = "ratelimit"
	NamespaceUser       = "user"
)

// Cache is a namespaced TTL cache storing JSON-serialized values.
type Cache struct {
	rdb *redis.Client
	cfg *config.CacheConfig
}

// New creates a cache over the shared Redis client.
func New(client *database.Client, cfg *config.CacheConfig) *Cache {
	if client == nil {
		panic("cache.New: client must not be nil")
	}
	if cfg == nil {
		cfg = config.DefaultCacheConfig()
	}
	return &Cache{rdb: client.Redis(), cfg: cfg}
}

// Key formats a namespaced cache key.
func Key(namespace, id string) string {
	return namespace + ":" + id
}

// Set stores value as JSON under the namespace's default TTL.
func (c *Cache) Set(ctx context.Context, namespace, id string, value any) error {
	return c.SetWithTTL(ctx, namespace, id, value, c.TTLFor(namespace))
}

// SetWithTTL stores value as JSON with an explicit TTL.
func (c *Cache) SetWithTTL(ctx context.Context, namespace, id string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshaling cache value for %s:%s: %w", namespace, id, err)
	}
	if err := c.rdb.Set(ctx, Key(namespace, id), data, ttl).Err(); err != nil {
		return fmt.Errorf("writing cache key %s:%s: %w", namespace, id, err)
	}
	return nil
}

// Get loads a cached value into dest. Returns false on a miss; errors are
// returned for backend failures only, never for misses.
func (c *Cache) Get(ctx context.Context, namespace, id string, dest any) (bool, error) {
	data, err := c.rdb.Get(ctx, Key(namespace, id)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading cache key %s:%s: %w", namespace, id, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("unmarshaling cache key %s:%s: %w", namespace, id, err)
	}
	return true, nil
}

// Delete removes a single key. Missing keys are not an error.
func (c *Cache) Delete(ctx context.Context, namespace, id string) error {
	return c.rdb.Del(ctx, Key(namespace, id)).Err()
}

// DeleteByPattern removes all keys matching pattern (e.g. "threat:*") using
// incremental SCAN so large keyspaces don't block the backend.
func (c *Cache) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	var deleted int
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			slog.Warn("Failed to delete cache key", "key", iter.Val(), "error", err)
			continue
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scanning cache keys for %q: %w", pattern, err)
	}
	return deleted, nil
}

// Warm writes a bulk map of entries into one namespace in a single pipelined
// round trip.
func (c *Cache) Warm(ctx context.Context, namespace string, entries map[string]any) error {
	if len(entries) == 0 {
		return nil
	}
	ttl := c.TTLFor(namespace)
	pipe := c.rdb.Pipeline()
	for id, value := range entries {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshaling warm entry %s:%s: %w", namespace, id, err)
		}
		pipe.Set(ctx, Key(namespace, id), data, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("warming cache namespace %s: %w", namespace, err)
	}
	return nil
}

// Health verifies backend connectivity.
func (c *Cache) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// TTLFor returns the configured TTL for a namespace. Unknown namespaces get
// the workflow TTL.
func (c *Cache) TTLFor(namespace string) time.Duration {
	switch namespace {
	case NamespaceAnalysis:
		return c.cfg.AnalysisTTL
	case NamespaceCampaign:
		return c.cfg.CampaignTTL
	case NamespaceThreat:
		return c.cfg.ThreatTTL
	case NamespaceEnrichment:
		return c.cfg.EnrichmentTTL
	case NamespaceLLM:
		return c.cfg.LLMTTL
	case NamespaceRate:
		return c.cfg.RateTTL
	case NamespaceUser:
		return c.cfg.UserTTL
	default:
		return c.cfg.WorkflowTTL
	}
}

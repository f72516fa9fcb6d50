package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dshield-labs/coordengine/pkg/config"
	"github.com/dshield-labs/coordengine/pkg/database"
)

// Category identifies what a rate limit is keyed by.
type Category string

// Rate limit categories. Keys are "ratelimit:<category>:<identifier>".
const (
	CategoryAPIKey   Category = "api"
	CategoryEndpoint Category = "endpoint"
	CategoryGlobal   Category = "global"
	CategoryIP       Category = "ip"
	CategoryUser     Category = "user"
)

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration // only set when denied
}

// Limiter is a Redis-backed sliding-window rate limiter. When the backend is
// unavailable it fails open: requests are admitted and a warning is logged.
type Limiter struct {
	rdb *redis.Client
	cfg *config.RateLimitConfig
}

// NewLimiter creates a limiter over the shared Redis client.
func NewLimiter(client *database.Client, cfg *config.RateLimitConfig) *Limiter {
	if client == nil {
		panic("cache.NewLimiter: client must not be nil")
	}
	if cfg == nil {
		cfg = config.DefaultRateLimitConfig()
	}
	return &Limiter{rdb: client.Redis(), cfg: cfg}
}

// LimitFor returns the configured request limit for a category.
func (l *Limiter) LimitFor(category Category) int {
	switch category {
	case CategoryAPIKey:
		return l.cfg.APIKeyLimit
	case CategoryEndpoint:
		return l.cfg.EndpointLimit
	case CategoryGlobal:
		return l.cfg.GlobalLimit
	case CategoryIP:
		return l.cfg.IPLimit
	case CategoryUser:
		return l.cfg.UserLimit
	default:
		return l.cfg.APIKeyLimit
	}
}

// Allow checks and records one request for (category, id) against the
// category's limit using a sliding window over a sorted set:
//
//  1. drop entries older than now-window
//  2. count the remainder
//  3. at or over the limit: deny, retry-after = window - (now - oldest)
//  4. otherwise record the request and admit
func (l *Limiter) Allow(ctx context.Context, category Category, id string) Decision {
	return l.AllowN(ctx, category, id, l.LimitFor(category))
}

// AllowN is Allow with an explicit limit, used when a caller carries its own
// quota (e.g. per-key overrides).
func (l *Limiter) AllowN(ctx context.Context, category Category, id string, limit int) Decision {
	key := fmt.Sprintf("%s:%s:%s", NamespaceRate, category, id)
	now := time.Now()
	windowStart := now.Add(-l.cfg.Window)

	if err := l.rdb.ZRemRangeByScore(ctx, key, "0", formatScore(windowStart)).Err(); err != nil {
		return l.failOpen(category, id, err)
	}

	n, err := l.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return l.failOpen(category, id, err)
	}

	if n >= int64(limit) {
		retryAfter := l.cfg.Window
		oldest, err := l.rdb.ZRangeWithScores(ctx, key, 0, 0).Result()
		if err == nil && len(oldest) > 0 {
			oldestAt := time.Unix(0, int64(oldest[0].Score*float64(time.Second)))
			retryAfter = l.cfg.Window - now.Sub(oldestAt)
			if retryAfter < time.Second {
				retryAfter = time.Second
			}
		}
		return Decision{Allowed: false, Remaining: 0, RetryAfter: retryAfter}
	}

	// Nanosecond member keeps same-second requests distinct.
	member := strconv.FormatInt(now.UnixNano(), 10)
	if err := l.rdb.ZAdd(ctx, key, redis.Z{Score: epochSeconds(now), Member: member}).Err(); err != nil {
		return l.failOpen(category, id, err)
	}
	l.rdb.Expire(ctx, key, l.cfg.Window+time.Second)

	return Decision{Allowed: true, Remaining: limit - int(n) - 1}
}

// AllowKeyEndpoint checks the combined per-key per-endpoint budget. The
// composite identifier keeps the key under the api namespace, so the
// persisted key reads "ratelimit:api:<prefix>:<endpoint>".
func (l *Limiter) AllowKeyEndpoint(ctx context.Context, keyID, endpoint string) Decision {
	return l.AllowN(ctx, CategoryAPIKey, keyID+":"+endpoint, l.cfg.KeyEndpointLimit)
}

// Health verifies backend connectivity.
func (l *Limiter) Health(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

func (l *Limiter) failOpen(category Category, id string, err error) Decision {
	slog.Warn("Rate limit backend unavailable, failing open",
		"category", category, "key", id, "error", err)
	return Decision{Allowed: true, Remaining: 0}
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func formatScore(t time.Time) string {
	return strconv.FormatFloat(epochSeconds(t), 'f', -1, 64)
}

package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/dshield-labs/coordengine/pkg/cache"
)

// securityHeaders returns middleware that sets standard security response headers.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			return next(c)
		}
	}
}

// rateLimit returns middleware enforcing the sliding-window limits in order
// of scope: global, source IP, caller identity, endpoint, API key, and the
// key's per-endpoint budget. The limiter fails open when its backend is
// down, so a Redis outage never blocks intake.
func rateLimit(limiter *cache.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			if limiter == nil {
				return next(c)
			}
			ctx := c.Request().Context()
			endpoint := c.Request().Method + ":" + c.Request().URL.Path

			decisions := []cache.Decision{
				limiter.Allow(ctx, cache.CategoryGlobal, "all"),
				limiter.Allow(ctx, cache.CategoryIP, c.RealIP()),
				limiter.Allow(ctx, cache.CategoryUser, extractUserID(c)),
				limiter.Allow(ctx, cache.CategoryEndpoint, endpoint),
			}
			if key := c.Request().Header.Get("X-API-Key"); key != "" {
				prefix := keyPrefix(key)
				decisions = append(decisions,
					limiter.Allow(ctx, cache.CategoryAPIKey, prefix),
					// Combined check scopes the key's budget per endpoint.
					limiter.AllowKeyEndpoint(ctx, prefix, endpoint),
				)
			}
			for _, decision := range decisions {
				if decision.Allowed {
					continue
				}
				retryAfter := int(decision.RetryAfter.Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
				return &envelopeError{
					code: http.StatusTooManyRequests,
					resp: &ErrorResponse{
						Detail:    "rate limit exceeded, retry later",
						ErrorCode: ErrCodeRateLimited,
					},
				}
			}
			return next(c)
		}
	}
}

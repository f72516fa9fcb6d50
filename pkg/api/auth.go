package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/dshield-labs/coordengine/pkg/config"
)

// apiKeyAuth returns middleware enforcing the X-API-Key header on every
// request. Debug mode bypasses the check entirely; health endpoints are
// exempted at route-registration time, not here.
func apiKeyAuth(cfg *config.ServerConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			if cfg.Debug {
				return next(c)
			}
			if cfg.APIKey == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "no API key configured on server")
			}
			key := c.Request().Header.Get("X-API-Key")
			if key == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing X-API-Key header")
			}
			if subtle.ConstantTimeCompare([]byte(key), []byte(cfg.APIKey)) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid API key")
			}
			return next(c)
		}
	}
}

// extractUserID extracts the caller identity for rate limiting and audit.
// Priority: X-Forwarded-User (oauth2-proxy) > X-Remote-User (kube-rbac-proxy) >
// API key prefix > "api-client"
func extractUserID(c *echo.Context) string {
	if user := c.Request().Header.Get("X-Forwarded-User"); user != "" {
		return user
	}
	if user := c.Request().Header.Get("X-Remote-User"); user != "" {
		return user
	}
	if key := c.Request().Header.Get("X-API-Key"); key != "" {
		return "key:" + keyPrefix(key)
	}
	return "api-client"
}

// keyPrefix returns a non-secret identifier for an API key. Never log or
// store the full key.
func keyPrefix(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:8]
}

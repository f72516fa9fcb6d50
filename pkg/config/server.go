package config

// ServerConfig contains HTTP server and authentication settings.
type ServerConfig struct {
	// Port the HTTP server listens on.
	Port string

	// APIKey is the shared secret expected in the X-API-Key header.
	// Empty means no key is configured; requests are rejected unless
	// Debug is set.
	APIKey string

	// Debug bypasses API key verification. Never enable in production.
	Debug bool
}

// DefaultServerConfig returns the built-in server defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:  "8080",
		Debug: false,
	}
}

func applyServerEnv(c *ServerConfig) {
	c.Port = getEnv("HTTP_PORT", c.Port)
	c.APIKey = getEnv("API_KEY", c.APIKey)
	c.Debug = getEnvBool("DEBUG", c.Debug)
}

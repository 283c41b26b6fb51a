package ratelimit

import (
	"time"

	"github.com/jonathan/dream-bridge/internal/config"
)

// EndpointConfig is the limit applied to one route.
type EndpointConfig struct {
	Method string
	// Pattern is a slash-separated path where "*" matches any single segment.
	Pattern string
	Limit   int
	Window  time.Duration
	Burst   int // defaults to Limit when zero
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	DefaultBurst    int
	CleanupInterval time.Duration
	// IdleTTL is how long an unused client limiter is kept.
	IdleTTL         time.Duration
	EndpointConfigs []EndpointConfig
}

// FromConfig builds the limiter configuration from the service settings.
// A zero per-route limit leaves that route on the default limit.
func FromConfig(cfg config.RateLimitConfig) *Config {
	c := &Config{
		Enabled:         cfg.Enabled,
		DefaultLimit:    cfg.DefaultPerMinute,
		DefaultWindow:   time.Minute,
		DefaultBurst:    max(cfg.Burst, cfg.DefaultPerMinute),
		CleanupInterval: 5 * time.Minute,
		IdleTTL:         time.Hour,
	}
	if cfg.SubmitPerHour > 0 {
		c.EndpointConfigs = append(c.EndpointConfigs, EndpointConfig{
			Method: "POST", Pattern: "/dreams", Limit: cfg.SubmitPerHour, Window: time.Hour, Burst: cfg.Burst,
		})
	}
	if cfg.RegeneratePerHour > 0 {
		c.EndpointConfigs = append(c.EndpointConfigs, EndpointConfig{
			Method: "POST", Pattern: "/dreams/*/personal-message", Limit: cfg.RegeneratePerHour, Window: time.Hour, Burst: cfg.Burst,
		})
	}
	return c
}

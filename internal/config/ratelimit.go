package config

import "time"

// RateLimitConfig drives the generic request limiter.  With Redis it is a
// token bucket of Capacity tokens refilled by RefillTokens every
// RefillInterval; without Redis the in-process fallback admits Capacity
// requests per FallbackWindow.
type RateLimitConfig struct {
	Enabled        bool          `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	Capacity       int           `envconfig:"RATE_LIMIT_CAPACITY" default:"60"`
	RefillTokens   int           `envconfig:"RATE_LIMIT_REFILL_TOKENS" default:"1"`
	RefillInterval time.Duration `envconfig:"RATE_LIMIT_REFILL_INTERVAL" default:"1s"`
	TTL            time.Duration `envconfig:"RATE_LIMIT_TTL" default:"10m"`
	KeyStrategy    string        `envconfig:"RATE_LIMIT_KEY_STRATEGY" default:"ip_route"`
	Prefix         string        `envconfig:"RATE_LIMIT_PREFIX" default:"rl"`
	FallbackWindow time.Duration `envconfig:"RATE_LIMIT_FALLBACK_WINDOW" default:"1m"`
	Debug          bool          `envconfig:"RATE_LIMIT_DEBUG" default:"false"`

	LoginLimit  int           `envconfig:"LOGIN_RATE_LIMIT" default:"5"`
	LoginWindow time.Duration `envconfig:"LOGIN_RATE_WINDOW" default:"15m"`
}

func (c RateLimitConfig) normalize() RateLimitConfig {
	if c.Capacity < 1 {
		c.Capacity = 1
	}
	if c.RefillTokens < 1 {
		c.RefillTokens = 1
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = time.Second
	}
	if minTTL := 5 * c.RefillInterval; c.TTL < minTTL {
		c.TTL = minTTL
	}
	if c.FallbackWindow <= 0 {
		c.FallbackWindow = time.Minute
	}
	if c.LoginLimit < 1 {
		c.LoginLimit = 5
	}
	if c.LoginWindow <= 0 {
		c.LoginWindow = 15 * time.Minute
	}
	return c
}

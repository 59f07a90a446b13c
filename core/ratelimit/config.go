package ratelimit

import "time"

// Config holds the request budget and retry policy for the remote API.
type Config struct {
	// Budget is the number of requests allowed per window.
	Budget int `mapstructure:"budget" default:"350"`
	// WindowSeconds is the length of the budget window in seconds.
	WindowSeconds int `mapstructure:"window_seconds" default:"60"`
	// MaxAttempts bounds the attempts for server errors and transport failures.
	// Throttled attempts do not count against it.
	MaxAttempts int `mapstructure:"max_attempts" default:"4"`
	// BaseBackoffMillis is the first retry delay in milliseconds.
	BaseBackoffMillis int `mapstructure:"base_backoff_ms" default:"500"`
	// MaxBackoffMillis caps the retry delay in milliseconds.
	MaxBackoffMillis int `mapstructure:"max_backoff_ms" default:"30000"`
	// CooldownSeconds is the pause applied to a 429 without a Retry-After hint.
	CooldownSeconds int `mapstructure:"cooldown_seconds" default:"60"`
}

// paceSlack is added to the spacing interval so float rounding inside the
// limiter can never fit budget+1 requests into one window.
const paceSlack = time.Millisecond

func (c Config) normalize() Config {
	if c.Budget <= 0 {
		c.Budget = 350
	}
	if c.WindowSeconds <= 0 {
		c.WindowSeconds = 60
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.BaseBackoffMillis <= 0 {
		c.BaseBackoffMillis = 500
	}
	if c.MaxBackoffMillis < c.BaseBackoffMillis {
		c.MaxBackoffMillis = c.BaseBackoffMillis
	}
	if c.CooldownSeconds <= 0 {
		c.CooldownSeconds = 60
	}
	return c
}

// Window returns the budget window as a duration.
func (c Config) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// Interval returns the minimum spacing between two dispatches.
func (c Config) Interval() time.Duration {
	c = c.normalize()
	return c.Window()/time.Duration(c.Budget) + paceSlack
}

// Cooldown returns the pause applied when the server gives no hint.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

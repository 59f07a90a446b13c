package ratelimit

import (
	"math"
	"time"
)

const backoffJitterFactor = 0.25

// backoff returns the delay before retry number attempt (1-based):
// base * 2^(attempt-1), capped at the configured maximum, with +/-25% jitter.
func (c *Controller) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(time.Duration(c.cfg.BaseBackoffMillis) * time.Millisecond)
	maxDelay := float64(time.Duration(c.cfg.MaxBackoffMillis) * time.Millisecond)

	delay := base * math.Pow(2, float64(attempt-1))
	if delay > maxDelay {
		delay = maxDelay
	}

	c.randMu.Lock()
	r := c.rand()
	c.randMu.Unlock()

	jitter := delay * backoffJitterFactor * (r*2 - 1)
	delay += jitter
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

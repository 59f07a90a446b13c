package sandbox

import (
	"sync"
	"time"

	"asc-manager/core/ratelimit"
)

// budget admits at most limit requests in any rolling window. A zero limit
// admits everything.
type budget struct {
	mu     sync.Mutex
	clock  ratelimit.Clock
	limit  int
	window time.Duration

	inWindow []time.Time
	accepted []time.Time
	rejected int
}

func newBudget(clock ratelimit.Clock, limit int, window time.Duration) *budget {
	if window <= 0 {
		window = time.Minute
	}
	return &budget{clock: clock, limit: limit, window: window}
}

// admit records the request when it fits and otherwise returns how long
// until the oldest request in the window expires.
func (b *budget) admit() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	if b.limit > 0 {
		cut := 0
		for cut < len(b.inWindow) && now.Sub(b.inWindow[cut]) >= b.window {
			cut++
		}
		b.inWindow = b.inWindow[cut:]

		if len(b.inWindow) >= b.limit {
			b.rejected++
			return b.inWindow[0].Add(b.window).Sub(now), false
		}
		b.inWindow = append(b.inWindow, now)
	}
	b.accepted = append(b.accepted, now)
	return 0, true
}

func (b *budget) snapshot() ([]time.Time, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]time.Time(nil), b.accepted...), b.rejected
}

// retryAfterSeconds rounds a wait up to whole seconds, never below one.
func retryAfterSeconds(wait time.Duration) int {
	secs := int((wait + time.Second - 1) / time.Second)
	return max(secs, 1)
}

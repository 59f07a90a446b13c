package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Throttle is implemented by errors that carry a "too many requests" response.
type Throttle interface {
	error
	Throttled() bool
	// RetryAfter is the server's hint for when dispatch may resume, or zero.
	RetryAfter() time.Duration
}

// Transient is implemented by errors worth retrying with backoff
// (server errors, connection failures, unreadable responses).
type Transient interface {
	error
	Temporary() bool
}

// Observer receives controller events. Implementations must be safe for
// concurrent use.
type Observer interface {
	Dispatched()
	Throttled(pause time.Duration)
	Retried(attempt int)
}

// Stats is a snapshot of controller counters.
type Stats struct {
	Dispatched int64 `json:"dispatched"`
	Throttled  int64 `json:"throttled"`
	Retried    int64 `json:"retried"`
	GaveUp     int64 `json:"gave_up"`
}

// Controller paces calls to a request budget and retries them according to
// the failure they report. One Controller is created per run and shared by
// all workers.
type Controller struct {
	cfg      Config
	clock    Clock
	limiter  *rate.Limiter
	logger   *zap.Logger
	observer Observer

	// pausedUntil is the unix-nano deadline before which nothing is dispatched.
	pausedUntil atomic.Int64

	dispatched atomic.Int64
	throttled  atomic.Int64
	retried    atomic.Int64
	gaveUp     atomic.Int64

	randMu sync.Mutex
	rand   func() float64
}

// Option customizes a Controller.
type Option func(*Controller)

// WithClock replaces the wall clock.
func WithClock(clock Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithLogger sets the logger used for throttle and retry events.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithObserver registers an event observer (metrics).
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

// WithRand replaces the jitter source. fn must return values in [0,1).
func WithRand(fn func() float64) Option {
	return func(c *Controller) { c.rand = fn }
}

// New creates a Controller for the given configuration.
func New(cfg Config, opts ...Option) *Controller {
	cfg = cfg.normalize()
	c := &Controller{
		cfg:    cfg,
		clock:  SystemClock{},
		logger: zap.NewNop(),
		rand:   rand.Float64,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.limiter = rate.NewLimiter(rate.Every(cfg.Interval()), 1)
	return c
}

// Config returns the effective configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// Stats returns a snapshot of the controller counters.
func (c *Controller) Stats() Stats {
	return Stats{
		Dispatched: c.dispatched.Load(),
		Throttled:  c.throttled.Load(),
		Retried:    c.retried.Load(),
		GaveUp:     c.gaveUp.Load(),
	}
}

// Do runs call under the budget. Throttled calls are paused and repeated
// until they pass or ctx ends. Transient failures are retried with backoff
// up to MaxAttempts. Any other error is returned immediately.
func (c *Controller) Do(ctx context.Context, call func(ctx context.Context) error) error {
	failures := 0
	for {
		if err := c.acquire(ctx); err != nil {
			return err
		}

		c.dispatched.Add(1)
		if c.observer != nil {
			c.observer.Dispatched()
		}

		err := call(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}

		var throttle Throttle
		if errors.As(err, &throttle) && throttle.Throttled() {
			c.pause(throttle.RetryAfter())
			continue
		}

		var transient Transient
		if errors.As(err, &transient) && transient.Temporary() {
			failures++
			if failures >= c.cfg.MaxAttempts {
				c.gaveUp.Add(1)
				return fmt.Errorf("giving up after %d attempts: %w", failures, err)
			}
			delay := c.backoff(failures)
			c.retried.Add(1)
			if c.observer != nil {
				c.observer.Retried(failures)
			}
			c.logger.Debug("Retrying after transient failure",
				zap.Int("attempt", failures),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
			if err := c.clock.Sleep(ctx, delay); err != nil {
				return err
			}
			continue
		}

		return err
	}
}

// acquire blocks until the shared pause has elapsed and a pacing slot is
// reserved.
func (c *Controller) acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := c.clock.Now()
		if until := c.pausedUntil.Load(); until > now.UnixNano() {
			if err := c.clock.Sleep(ctx, time.Duration(until-now.UnixNano())); err != nil {
				return err
			}
			continue
		}

		r := c.limiter.ReserveN(now, 1)
		if !r.OK() {
			return fmt.Errorf("rate limiter cannot grant a request")
		}
		delay := r.DelayFrom(now)
		if delay <= 0 {
			return nil
		}
		if err := c.clock.Sleep(ctx, delay); err != nil {
			r.CancelAt(c.clock.Now())
			return err
		}
		// A throttle may have arrived while waiting for the slot.
		if c.pausedUntil.Load() > c.clock.Now().UnixNano() {
			continue
		}
		return nil
	}
}

// pause suspends dispatch for all workers until the hinted boundary, or for
// the configured cooldown without a hint. An earlier deadline never shortens
// a pause already in force.
func (c *Controller) pause(hint time.Duration) {
	wait := hint
	if wait <= 0 {
		wait = c.cfg.Cooldown()
	}
	target := c.clock.Now().Add(wait).UnixNano()

	for {
		current := c.pausedUntil.Load()
		if current >= target {
			break
		}
		if c.pausedUntil.CompareAndSwap(current, target) {
			break
		}
	}

	c.throttled.Add(1)
	if c.observer != nil {
		c.observer.Throttled(wait)
	}
	c.logger.Warn("Request budget exceeded, pausing dispatch", zap.Duration("pause", wait))
}

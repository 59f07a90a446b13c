// Package ratelimit keeps outgoing API traffic under the server's request
// budget and recovers from throttling.
//
// A Controller combines three policies:
//   - Proactive pacing: requests are spaced evenly over the window using a
//     token bucket with a burst of one, so a sustained run never exceeds the
//     budget in any rolling window.
//   - Reactive pause: a 429 response suspends dispatch for every worker until
//     the server's Retry-After boundary (or a fixed cooldown) and the request
//     is repeated. Throttling delays a request, it never drops it.
//   - Bounded retry: 5xx and transport failures are retried with exponential
//     backoff and jitter up to MaxAttempts. Other client errors are returned
//     at once.
//
// Errors signal their class by implementing Throttle or Transient; the
// jsonapi client's error types do.
//
// # Usage
//
//	ctl := ratelimit.New(cfg.Rate, ratelimit.WithLogger(log))
//	err := ctl.Do(ctx, func(ctx context.Context) error {
//	    return client.send(ctx, req)
//	})
package ratelimit

// Package logger provides a structured logging facility based on Zap.
//
// It offers a configured logger instance that supports different environments (development vs production).
// Command handlers build one logger per invocation and pass it down to the
// reconciliation engine, the API client and the sandbox simulator.
//
// # Request Correlation
//
// The sandbox simulator tags every request with a RayID. WithRayID extracts it
// from a Fiber context and attaches it to the log entry, so all logs related to
// one simulated request can be correlated.
//
// # Configuration
//
// The package supports configuration for:
//   - Level: debug, info, warn, error
//   - Format: json (production) or console (development)
//
// # Usage
//
//	log, _ := logger.New(&logger.Config{Level: "info"})
//	log.Info("Reconciliation started")
//
//	// In a sandbox handler:
//	l := logger.WithRayID(log, c)
//	l.Warn("Request throttled", zap.String("path", c.Path()))
package logger

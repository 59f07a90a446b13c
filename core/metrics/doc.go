// Package metrics records Prometheus metrics for a reconciliation run:
// requests dispatched, throttling pauses, retries and operation outcomes.
//
// A CLI run is short lived, so the registry is written to a textfile for a
// node exporter to pick up rather than served.
package metrics

// Package history keeps finished reconciliation runs.
//
// The Archive uploads each final report as JSON to object storage and can
// list, load and prune them. The Store writes one summary row per run to
// MySQL through GORM. A Recorder combines both and only logs failures: a
// report that cannot be kept never fails the run that produced it.
package history

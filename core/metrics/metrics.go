package metrics

import (
	"fmt"
	"time"

	"asc-manager/core/reconcile"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "asc_manager"

// Recorder collects request pacing and operation outcomes for one process.
// It satisfies ratelimit.Observer and reconcile.Observer.
type Recorder struct {
	registry *prometheus.Registry

	requests   prometheus.Counter
	throttled  prometheus.Counter
	pauses     prometheus.Histogram
	retries    *prometheus.CounterVec
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests dispatched to the remote API.",
		}),
		throttled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttled_total",
			Help:      "Responses rejected with 429.",
		}),
		pauses: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "throttle_pause_seconds",
			Help:      "Pauses imposed after a throttling response.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
		}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retries of transient failures by attempt number.",
		}, []string{"attempt"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Executed operations by kind and outcome.",
		}, []string{"kind", "outcome"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time spent executing one operation, retries included.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"kind"}),
	}
	r.registry.MustRegister(r.requests, r.throttled, r.pauses, r.retries, r.operations, r.durations)
	return r
}

// Registry exposes the recorder's registry for export.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) Dispatched() {
	r.requests.Inc()
}

func (r *Recorder) Throttled(pause time.Duration) {
	r.throttled.Inc()
	r.pauses.Observe(pause.Seconds())
}

func (r *Recorder) Retried(attempt int) {
	r.retries.WithLabelValues(fmt.Sprint(attempt)).Inc()
}

func (r *Recorder) Finished(kind reconcile.Kind, outcome reconcile.Outcome, elapsed time.Duration) {
	r.operations.WithLabelValues(string(kind), string(outcome)).Inc()
	if elapsed > 0 {
		r.durations.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
	}
}

// WriteTextfile writes the current values to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}

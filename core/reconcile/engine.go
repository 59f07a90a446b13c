package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Observer receives one call per finished operation. Implementations must be
// safe for concurrent use.
type Observer interface {
	Finished(kind Kind, outcome Outcome, elapsed time.Duration)
}

// Executor dispatches a plan's writes to a fixed pool of workers, honouring
// dependencies between operations.
type Executor struct {
	workers  int
	logger   *zap.Logger
	observer Observer
	now      func() time.Time
}

// NewExecutor creates an executor. A nil logger disables logging.
func NewExecutor(cfg Config, logger *zap.Logger, observer Observer) *Executor {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{workers: workers, logger: logger, observer: observer, now: time.Now}
}

type opState int

const (
	statePending opState = iota
	stateDispatched
	stateDone
)

type finished struct {
	index   int
	err     error
	elapsed time.Duration
}

// Execute applies the plan and returns the complete report. It never stops
// on a failed write: dependents of a failure are skipped and everything else
// proceeds. When ctx is cancelled, writes already dispatched complete and the
// remaining ones are reported cancelled.
//
// Without opts.Confirmed, or with opts.DryRun, nothing is executed and every
// write is reported planned.
func (e *Executor) Execute(ctx context.Context, plan *Plan, opts ApplyOptions) *Report {
	report := &Report{DryRun: !opts.Executes(), StartedAt: e.now()}
	ops := plan.Operations()
	results := make([]OperationResult, len(ops))

	if !opts.Executes() {
		for i, op := range ops {
			results[i] = resultFor(op, OutcomePlanned)
		}
		return e.finish(report, plan, results)
	}

	// Dependency bookkeeping.
	remaining := make([]int, len(ops))
	dependents := make([][]int, len(ops))
	for i, op := range ops {
		remaining[i] = len(op.DependsOn)
		for _, dep := range op.DependsOn {
			j := plan.index[dep]
			dependents[j] = append(dependents[j], i)
		}
	}

	var ready []int
	for i := range ops {
		if remaining[i] == 0 {
			ready = append(ready, i)
		}
	}

	jobs := make(chan int)
	done := make(chan finished)
	var wg sync.WaitGroup

	// Dispatched writes run detached from cancellation so a single resource
	// is never left half-applied.
	writeCtx := context.WithoutCancel(ctx)
	for w := 0; w < e.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				started := time.Now()
				err := ops[i].Apply(writeCtx)
				done <- finished{index: i, err: err, elapsed: time.Since(started)}
			}
		}()
	}

	state := make([]opState, len(ops))
	inFlight := 0
	stopped := false
	cancelled := ctx.Done()

	var skip func(i int, reason string)
	skip = func(i int, reason string) {
		for _, d := range dependents[i] {
			if state[d] != statePending {
				continue
			}
			state[d] = stateDone
			res := resultFor(ops[d], OutcomeSkipped)
			res.Detail = reason
			results[d] = res
			e.observe(ops[d].Kind, OutcomeSkipped, 0)
			skip(d, reason)
		}
	}

	for {
		if !stopped && ctx.Err() != nil {
			stopped = true
			cancelled = nil
			e.logger.Warn("Reconciliation cancelled, waiting for in-flight writes", zap.Int("in_flight", inFlight))
		}

		var send chan int
		next := -1
		if !stopped && len(ready) > 0 {
			send = jobs
			next = ready[0]
		}
		if send == nil && inFlight == 0 {
			break
		}

		select {
		case send <- next:
			ready = ready[1:]
			state[next] = stateDispatched
			inFlight++

		case f := <-done:
			inFlight--
			state[f.index] = stateDone
			op := ops[f.index]

			if f.err != nil {
				res := Failed(op.Kind, op.Target, f.err)
				res.OperationID = op.ID
				res.Description = op.Description
				results[f.index] = res
				e.observe(op.Kind, OutcomeFailed, f.elapsed)
				e.logger.Warn("Operation failed",
					zap.String("operation", op.ID),
					zap.String("target", op.Target.String()),
					zap.String("class", string(res.Class)),
					zap.String("code", res.Code),
					zap.Error(f.err),
				)
				skip(f.index, fmt.Sprintf("prerequisite %s failed", op.ID))
				continue
			}

			results[f.index] = resultFor(op, OutcomeSucceeded)
			e.observe(op.Kind, OutcomeSucceeded, f.elapsed)
			for _, d := range dependents[f.index] {
				remaining[d]--
				if remaining[d] == 0 && state[d] == statePending {
					ready = append(ready, d)
				}
			}

		case <-cancelled:
			// Handled at the top of the loop; in-flight writes keep draining.
			cancelled = nil
		}
	}

	close(jobs)
	wg.Wait()

	for i, op := range ops {
		if state[i] == statePending {
			results[i] = resultFor(op, OutcomeCancelled)
			e.observe(op.Kind, OutcomeCancelled, 0)
		}
	}

	return e.finish(report, plan, results)
}

func (e *Executor) observe(kind Kind, outcome Outcome, elapsed time.Duration) {
	if e.observer != nil {
		e.observer.Finished(kind, outcome, elapsed)
	}
}

func (e *Executor) finish(report *Report, plan *Plan, results []OperationResult) *Report {
	all := make([]OperationResult, 0, len(plan.Decided())+len(results))
	all = append(all, plan.Decided()...)
	all = append(all, results...)
	for _, res := range plan.Decided() {
		e.observe(res.Kind, res.Outcome, 0)
	}

	report.Results = sortResults(all)
	for _, res := range report.Results {
		report.Summary.add(res.Outcome)
	}
	report.FinishedAt = e.now()
	return report
}

func resultFor(op Operation, outcome Outcome) OperationResult {
	return OperationResult{
		OperationID: op.ID,
		Kind:        op.Kind,
		Target:      op.Target,
		Outcome:     outcome,
		Description: op.Description,
	}
}

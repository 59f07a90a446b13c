package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"asc-manager/core/jsonapi"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context) error { return nil }

type countingObserver struct {
	mu     sync.Mutex
	counts map[Outcome]int
}

func (o *countingObserver) Finished(_ Kind, outcome Outcome, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = make(map[Outcome]int)
	}
	o.counts[outcome]++
}

func territoryCode(i int) string {
	return fmt.Sprintf("T%03d", i)
}

// TestExecute_DryRunMarksPlanned tests that dry-run executes nothing.
func TestExecute_DryRunMarksPlanned(t *testing.T) {
	var calls atomic.Int32
	plan := NewPlan()
	for i := 0; i < 5; i++ {
		require.NoError(t, plan.Add(Operation{
			ID:     fmt.Sprintf("price:%d", i),
			Kind:   KindPrice,
			Target: Target{ProductID: "p", Territory: territoryCode(i)},
			Apply: func(context.Context) error {
				calls.Add(1)
				return nil
			},
		}))
	}
	plan.Unchanged(KindAvailability, Target{ProductID: "p"}, "already available")

	for _, opts := range []ApplyOptions{{DryRun: true, Confirmed: true}, {DryRun: false, Confirmed: false}} {
		report := NewExecutor(Config{Workers: 4}, nil, nil).Execute(context.Background(), plan, opts)

		assert.True(t, report.DryRun)
		assert.Equal(t, 5, report.Summary.Planned)
		assert.Equal(t, 1, report.Summary.Unchanged)
		assert.Zero(t, report.Summary.Succeeded)
	}
	assert.Zero(t, calls.Load())
}

// TestExecute_PartialFailureIsolation tests that one permanent conflict among
// 175 territory writes does not abort the batch.
func TestExecute_PartialFailureIsolation(t *testing.T) {
	plan := NewPlan()
	for i := 1; i <= 175; i++ {
		territory := territoryCode(i)
		apply := noop
		if i == 88 {
			apply = func(context.Context) error {
				return &jsonapi.APIError{StatusCode: 409, Method: "POST", Path: "/v1/subscriptionPrices",
					Errors: []jsonapi.ErrorObject{{Code: jsonapi.CodeStateError, Detail: "conflict"}}}
			}
		}
		require.NoError(t, plan.Add(Operation{
			ID:     "price:" + territory,
			Kind:   KindPrice,
			Target: Target{ProductID: "com.example.monthly", Territory: territory},
			Apply:  apply,
		}))
	}

	obs := &countingObserver{}
	report := NewExecutor(Config{Workers: 8}, nil, obs).Execute(context.Background(), plan, ApplyOptions{Confirmed: true})

	assert.Equal(t, 174, report.Summary.Succeeded)
	assert.Equal(t, 1, report.Summary.Failed)
	assert.Equal(t, 175, report.Summary.Total())

	failures := report.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "T088", failures[0].Target.Territory)
	assert.Equal(t, ClassConflict, failures[0].Class)
	assert.Equal(t, jsonapi.CodeStateError, failures[0].Code)
	assert.Equal(t, map[Class]int{ClassConflict: 1}, report.FailuresByClass())

	assert.Equal(t, 174, obs.counts[OutcomeSucceeded])
	assert.Equal(t, 1, obs.counts[OutcomeFailed])
}

// TestExecute_DependencyOrdering tests that a write is dispatched only after
// its prerequisite completed, even with many concurrent workers.
func TestExecute_DependencyOrdering(t *testing.T) {
	var seq atomic.Int64
	type marks struct{ availDone, priceStart int64 }
	got := make([]marks, 40)

	plan := NewPlan()
	for i := range got {
		i := i
		availID := fmt.Sprintf("avail:%d", i)
		require.NoError(t, plan.Add(Operation{
			ID:   availID,
			Kind: KindAvailability,
			Apply: func(context.Context) error {
				time.Sleep(time.Millisecond)
				got[i].availDone = seq.Add(1)
				return nil
			},
		}))
		require.NoError(t, plan.Add(Operation{
			ID:        fmt.Sprintf("price:%d", i),
			Kind:      KindPrice,
			Target:    Target{ProductID: fmt.Sprintf("p%d", i), Territory: "GBR"},
			DependsOn: []string{availID},
			Apply: func(context.Context) error {
				got[i].priceStart = seq.Add(1)
				return nil
			},
		}))
	}

	report := NewExecutor(Config{Workers: 16}, nil, nil).Execute(context.Background(), plan, ApplyOptions{Confirmed: true})
	require.Equal(t, 80, report.Summary.Succeeded)

	for i, m := range got {
		assert.Less(t, m.availDone, m.priceStart, "subscription %d: price dispatched before availability completed", i)
	}
}

// TestExecute_SkipsDependentsOfFailure tests that a failed prerequisite skips
// its whole dependency chain but nothing else.
func TestExecute_SkipsDependentsOfFailure(t *testing.T) {
	var offerCalled atomic.Bool
	plan := NewPlan()
	require.NoError(t, plan.Add(Operation{ID: "period", Kind: KindPeriod, Apply: func(context.Context) error {
		return &jsonapi.APIError{StatusCode: 409, Errors: []jsonapi.ErrorObject{{Code: jsonapi.CodeAttributeInvalid}}}
	}}))
	require.NoError(t, plan.Add(Operation{ID: "avail", Kind: KindAvailability, Apply: noop}))
	require.NoError(t, plan.Add(Operation{ID: "price", Kind: KindPrice, DependsOn: []string{"avail"}, Apply: noop}))
	require.NoError(t, plan.Add(Operation{ID: "offer", Kind: KindOffer, DependsOn: []string{"period", "price"}, Apply: func(context.Context) error {
		offerCalled.Store(true)
		return nil
	}}))

	report := NewExecutor(Config{Workers: 2}, nil, nil).Execute(context.Background(), plan, ApplyOptions{Confirmed: true})

	assert.False(t, offerCalled.Load())
	assert.Equal(t, 2, report.Summary.Succeeded)
	assert.Equal(t, 1, report.Summary.Failed)
	assert.Equal(t, 1, report.Summary.Skipped)

	skipped := report.ByOutcome(OutcomeSkipped)
	require.Len(t, skipped, 1)
	assert.Equal(t, "offer", skipped[0].OperationID)
	assert.Contains(t, skipped[0].Detail, "period")
}

// TestExecute_BoundedConcurrency tests that the pool never exceeds its size.
func TestExecute_BoundedConcurrency(t *testing.T) {
	var active, peak atomic.Int32
	plan := NewPlan()
	for i := 0; i < 60; i++ {
		require.NoError(t, plan.Add(Operation{ID: fmt.Sprint(i), Kind: KindPrice, Apply: func(context.Context) error {
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
			return nil
		}}))
	}

	report := NewExecutor(Config{Workers: 4}, nil, nil).Execute(context.Background(), plan, ApplyOptions{Confirmed: true})

	assert.Equal(t, 60, report.Summary.Succeeded)
	assert.LessOrEqual(t, peak.Load(), int32(4))
}

// TestExecute_Cancellation tests that in-flight writes finish and the rest
// are reported cancelled.
func TestExecute_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{}, 10)
	release := make(chan struct{})

	plan := NewPlan()
	for i := 0; i < 10; i++ {
		require.NoError(t, plan.Add(Operation{ID: fmt.Sprint(i), Kind: KindPrice, Apply: func(ctx context.Context) error {
			started <- struct{}{}
			<-release
			return ctx.Err()
		}}))
	}

	reports := make(chan *Report, 1)
	go func() {
		reports <- NewExecutor(Config{Workers: 2}, nil, nil).Execute(ctx, plan, ApplyOptions{Confirmed: true})
	}()

	<-started
	<-started
	cancel()
	// Give the coordinator a moment to observe cancellation before releasing.
	time.Sleep(20 * time.Millisecond)
	close(release)

	report := <-reports
	assert.Equal(t, 2, report.Summary.Succeeded, "in-flight writes complete with a live context")
	assert.Equal(t, 8, report.Summary.Cancelled)
	assert.Equal(t, 10, report.Summary.Total())
}

// TestExecute_DecidedResults tests that planning-time results are reported.
func TestExecute_DecidedResults(t *testing.T) {
	plan := NewPlan()
	target := Target{ProductID: "p", Territory: "USA"}
	plan.Unchanged(KindPrice, target, "price already set")
	plan.Fail(KindOffer, target, Invalid(CodeIncompatibleDuration, "THREE_DAYS is not valid for ONE_MONTH"))
	plan.Skip(KindPrice, Target{ProductID: "p", Territory: "XKX"}, "no equalized price point")

	report := NewExecutor(Config{}, nil, nil).Execute(context.Background(), plan, ApplyOptions{Confirmed: true})

	assert.Equal(t, Summary{Unchanged: 1, Failed: 1, Skipped: 1}, report.Summary)
	failures := report.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, ClassValidation, failures[0].Class)
	assert.Equal(t, CodeIncompatibleDuration, failures[0].Code)

	// Results are ordered price before offer within a product.
	assert.Equal(t, KindPrice, report.Results[0].Kind)
	assert.Equal(t, KindOffer, report.Results[len(report.Results)-1].Kind)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantClass Class
		wantCode  string
	}{
		{"Local Validation", Invalid(CodePeriodRequired, "period unset"), ClassValidation, CodePeriodRequired},
		{"Local Conflict", Conflict(jsonapi.CodeStateError, "overlap"), ClassConflict, jsonapi.CodeStateError},
		{"State Error", &jsonapi.APIError{StatusCode: 409, Errors: []jsonapi.ErrorObject{{Code: jsonapi.CodeStateError}}}, ClassConflict, jsonapi.CodeStateError},
		{"Entity Error", &jsonapi.APIError{StatusCode: 422, Errors: []jsonapi.ErrorObject{{Code: jsonapi.CodeRelationshipInvalid}}}, ClassConflict, jsonapi.CodeRelationshipInvalid},
		{"Not Found", &jsonapi.APIError{StatusCode: 404, Errors: []jsonapi.ErrorObject{{Code: jsonapi.CodeNotFound}}}, ClassRejected, jsonapi.CodeNotFound},
		{"Throttled", &jsonapi.APIError{StatusCode: 429, Errors: []jsonapi.ErrorObject{{Code: jsonapi.CodeRateLimitExceeded}}}, ClassTransient, jsonapi.CodeRateLimitExceeded},
		{"Server Error Wrapped", fmt.Errorf("giving up after 4 attempts: %w", &jsonapi.APIError{StatusCode: 503}), ClassTransient, ""},
		{"Transport", &jsonapi.TransportError{Err: errors.New("connection reset")}, ClassTransport, ""},
		{"Cancelled", context.Canceled, ClassCancelled, ""},
		{"Unknown", errors.New("boom"), ClassInternal, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class, code := Classify(tt.err)
			assert.Equal(t, tt.wantClass, class)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

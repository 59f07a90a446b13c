package reconcile

import (
	"context"
	"fmt"
	"time"
)

// Outcome is the final state of one operation.
type Outcome string

const (
	// OutcomeUnchanged means current state already matched; no write was needed.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeSucceeded means the write was applied.
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeFailed means the write, or the local checks before it, failed.
	OutcomeFailed Outcome = "failed"
	// OutcomeSkipped means the write was not attempted because a prerequisite failed
	// or policy excluded it.
	OutcomeSkipped Outcome = "skipped"
	// OutcomePlanned means the write would be issued outside dry-run.
	OutcomePlanned Outcome = "planned"
	// OutcomeCancelled means the run was cancelled before the write was dispatched.
	OutcomeCancelled Outcome = "cancelled"
)

// Kind is the resource family an operation touches.
type Kind string

const (
	KindSubscription Kind = "subscription"
	KindPeriod       Kind = "period"
	KindAvailability Kind = "availability"
	KindPrice        Kind = "price"
	KindOffer        Kind = "offer"
)

// kindRank orders report rows in dependency order.
var kindRank = map[Kind]int{
	KindSubscription: 0,
	KindPeriod:       1,
	KindAvailability: 2,
	KindPrice:        3,
	KindOffer:        4,
}

// Target identifies the remote entity an operation is about.
type Target struct {
	// ProductID is the subscription's product identifier from the desired state.
	ProductID string `json:"product_id"`

	// SubscriptionID is the remote subscription id, once resolved.
	SubscriptionID string `json:"subscription_id,omitempty"`

	// Territory is the ISO-3 territory code for per-territory operations.
	Territory string `json:"territory,omitempty"`
}

func (t Target) String() string {
	if t.Territory == "" {
		return t.ProductID
	}
	return t.ProductID + "/" + t.Territory
}

// Operation is one planned write.
type Operation struct {
	// ID is unique within a plan.
	ID string

	// Kind is the resource family the write touches.
	Kind Kind

	// Target is the entity the write is about.
	Target Target

	// Description is a short human-readable summary of the write.
	Description string

	// DependsOn lists operation ids that must succeed before this one is dispatched.
	DependsOn []string

	// Apply performs the write.
	Apply func(ctx context.Context) error
}

// OperationResult is the outcome of one operation. Every planned operation
// and every locally decided item yields exactly one result.
type OperationResult struct {
	OperationID string  `json:"operation_id,omitempty"`
	Kind        Kind    `json:"kind"`
	Target      Target  `json:"target"`
	Outcome     Outcome `json:"outcome"`
	Description string  `json:"description,omitempty"`

	// Class is the failure class; empty unless Outcome is failed.
	Class Class `json:"class,omitempty"`

	// Code is the remote or local error code, verbatim.
	Code string `json:"code,omitempty"`

	// Detail is the error message or skip reason.
	Detail string `json:"detail,omitempty"`

	// Err is the underlying error for failed results.
	Err error `json:"-"`
}

// Summary provides aggregate counts for a report.
type Summary struct {
	Unchanged int `json:"unchanged"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Planned   int `json:"planned"`
	Cancelled int `json:"cancelled"`
}

// Total returns the number of results counted.
func (s Summary) Total() int {
	return s.Unchanged + s.Succeeded + s.Failed + s.Skipped + s.Planned + s.Cancelled
}

func (s *Summary) add(o Outcome) {
	switch o {
	case OutcomeUnchanged:
		s.Unchanged++
	case OutcomeSucceeded:
		s.Succeeded++
	case OutcomeFailed:
		s.Failed++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomePlanned:
		s.Planned++
	case OutcomeCancelled:
		s.Cancelled++
	}
}

func (s Summary) String() string {
	return fmt.Sprintf("unchanged=%d succeeded=%d failed=%d skipped=%d planned=%d cancelled=%d",
		s.Unchanged, s.Succeeded, s.Failed, s.Skipped, s.Planned, s.Cancelled)
}

// Report is the aggregated result of one reconciliation run.
type Report struct {
	RunID      string            `json:"run_id,omitempty"`
	DryRun     bool              `json:"dry_run"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Summary    Summary           `json:"summary"`
	Results    []OperationResult `json:"results"`
}

// ApplyOptions controls whether a plan's writes are executed.
type ApplyOptions struct {
	// DryRun prevents execution of any writes if true.
	DryRun bool

	// Confirmed indicates the user confirmed the writes.
	// If false, writes will not execute regardless of DryRun.
	Confirmed bool
}

// Executes reports whether these options allow writes.
func (o ApplyOptions) Executes() bool {
	return o.Confirmed && !o.DryRun
}

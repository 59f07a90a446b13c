package reconcile

import (
	"fmt"
)

// Plan is the ordered set of writes computed for a run, plus the results
// already decided while planning (unchanged items, local validation
// failures, policy skips).
//
// A Plan is built by one goroutine and handed to an Executor; it is not safe
// for concurrent mutation.
type Plan struct {
	ops     []Operation
	index   map[string]int
	decided []OperationResult
}

// NewPlan returns an empty plan.
func NewPlan() *Plan {
	return &Plan{index: make(map[string]int)}
}

// Add appends a write. Dependencies must already be in the plan, which
// keeps the dependency graph acyclic.
func (p *Plan) Add(op Operation) error {
	if op.ID == "" {
		return fmt.Errorf("operation has no id")
	}
	if _, dup := p.index[op.ID]; dup {
		return fmt.Errorf("duplicate operation id %s", op.ID)
	}
	if op.Apply == nil {
		return fmt.Errorf("operation %s has no apply function", op.ID)
	}
	for _, dep := range op.DependsOn {
		if _, ok := p.index[dep]; !ok {
			return fmt.Errorf("operation %s depends on unknown operation %s", op.ID, dep)
		}
	}

	p.index[op.ID] = len(p.ops)
	p.ops = append(p.ops, op)
	return nil
}

// Has reports whether an operation id is planned.
func (p *Plan) Has(id string) bool {
	_, ok := p.index[id]
	return ok
}

// Decide records a result that needs no write.
func (p *Plan) Decide(res OperationResult) {
	p.decided = append(p.decided, res)
}

// Unchanged records a no-op for target.
func (p *Plan) Unchanged(kind Kind, target Target, description string) {
	p.Decide(OperationResult{Kind: kind, Target: target, Outcome: OutcomeUnchanged, Description: description})
}

// Fail records a failure detected while planning. A read interrupted by
// cancellation is recorded as cancelled, not failed.
func (p *Plan) Fail(kind Kind, target Target, err error) {
	res := Failed(kind, target, err)
	if res.Class == ClassCancelled {
		res.Outcome = OutcomeCancelled
	}
	p.Decide(res)
}

// Skip records an item excluded by policy.
func (p *Plan) Skip(kind Kind, target Target, reason string) {
	p.Decide(OperationResult{Kind: kind, Target: target, Outcome: OutcomeSkipped, Detail: reason})
}

// Operations returns the planned writes in insertion order.
func (p *Plan) Operations() []Operation {
	return p.ops
}

// Decided returns the results recorded during planning.
func (p *Plan) Decided() []OperationResult {
	return p.decided
}

// Len returns the number of planned writes.
func (p *Plan) Len() int {
	return len(p.ops)
}

// PlanSummary provides aggregate statistics for a plan before execution.
type PlanSummary struct {
	// Writes counts planned writes per kind.
	Writes map[Kind]int `json:"writes"`

	// Unchanged counts items already in the desired state.
	Unchanged int `json:"unchanged"`

	// Failed counts items that failed local checks.
	Failed int `json:"failed"`

	// Skipped counts items excluded by policy.
	Skipped int `json:"skipped"`

	// Cancelled counts items whose reads were interrupted.
	Cancelled int `json:"cancelled"`
}

// Summary counts the plan contents.
func (p *Plan) Summary() PlanSummary {
	s := PlanSummary{Writes: make(map[Kind]int)}
	for _, op := range p.ops {
		s.Writes[op.Kind]++
	}
	for _, res := range p.decided {
		switch res.Outcome {
		case OutcomeUnchanged:
			s.Unchanged++
		case OutcomeFailed:
			s.Failed++
		case OutcomeSkipped:
			s.Skipped++
		case OutcomeCancelled:
			s.Cancelled++
		}
	}
	return s
}

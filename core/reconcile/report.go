package reconcile

import (
	"cmp"
	"slices"

	"github.com/samber/lo"
)

// sortResults orders results by product, then dependency order, then
// territory, keeping insertion order for ties.
func sortResults(results []OperationResult) []OperationResult {
	slices.SortStableFunc(results, func(a, b OperationResult) int {
		return cmp.Or(
			cmp.Compare(a.Target.ProductID, b.Target.ProductID),
			cmp.Compare(kindRank[a.Kind], kindRank[b.Kind]),
			cmp.Compare(a.Target.Territory, b.Target.Territory),
		)
	})
	return results
}

// Failures returns the failed results.
func (r *Report) Failures() []OperationResult {
	return lo.Filter(r.Results, func(res OperationResult, _ int) bool {
		return res.Outcome == OutcomeFailed
	})
}

// HasFailures reports whether any result failed.
func (r *Report) HasFailures() bool {
	return r.Summary.Failed > 0
}

// ByOutcome returns the results with the given outcome.
func (r *Report) ByOutcome(outcome Outcome) []OperationResult {
	return lo.Filter(r.Results, func(res OperationResult, _ int) bool {
		return res.Outcome == outcome
	})
}

// FailuresByClass counts failures per class.
func (r *Report) FailuresByClass() map[Class]int {
	return lo.CountValuesBy(r.Failures(), func(res OperationResult) Class {
		return res.Class
	})
}

// Package reconcile executes reconciliation plans and aggregates their
// outcomes into a single report.
//
// Callers compute a Plan by diffing desired state against current remote
// state. Items that need no write are recorded as decided results
// (unchanged, local validation failures, policy skips); items that need a
// write become Operations with an Apply function and optional dependencies.
//
// # Execution
//
// The Executor runs the plan on a fixed worker pool:
//   - An operation is dispatched only after all of its dependencies
//     succeeded. A failed dependency marks its dependents skipped.
//   - A failed write never stops the run; every operation yields exactly one
//     OperationResult.
//   - On cancellation, dispatched writes complete and undispatched ones are
//     reported cancelled.
//   - Without confirmation, or in dry-run mode, nothing executes and every
//     write is reported planned.
//
// # Failure Classes
//
// Classify maps errors to the operator-facing taxonomy: validation and
// conflict failures decided locally (LocalError), remote conflicts
// (STATE_ERROR, ENTITY_ERROR*), other rejections, transient and transport
// failures that exhausted their retries, and cancellation.
//
// # Run Cache
//
// RunCache is a per-run memo with read-mostly locking and stampede
// protection, used for lookups shared by many records (price equalizations).
//
// # Usage Example
//
//	plan := reconcile.NewPlan()
//	_ = plan.Add(reconcile.Operation{ID: "avail:S1", Kind: reconcile.KindAvailability, Apply: setAvailability})
//	_ = plan.Add(reconcile.Operation{ID: "price:S1:GBR", Kind: reconcile.KindPrice, DependsOn: []string{"avail:S1"}, Apply: setPrice})
//
//	exec := reconcile.NewExecutor(cfg.Reconcile, log, nil)
//	report := exec.Execute(ctx, plan, reconcile.ApplyOptions{Confirmed: true})
package reconcile

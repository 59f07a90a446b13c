// Package subscriptions reconciles a desired-state file against the
// subscriptions of one app.
//
// # Desired state
//
// LoadFile reads a YAML document listing subscriptions by product id with a
// period, a canonical price, a territory selection and optional
// introductory offers. Validation covers structure, enums, offer durations
// against a declared period and prices for paid offers.
//
// # Reconciliation
//
// The Orchestrator resolves each record's subscription, reads its current
// availability, prices and offers, and plans only the writes that differ:
//
//   - the period, while unset; a different period is refused locally
//   - one availability write adding every missing territory
//   - one price write per territory whose active price point differs
//   - one offer write per territory, after local checks for period,
//     duration, price point and overlapping date ranges
//
// Price and offer writes in a newly added territory depend on the
// availability write, and offers depend on a period write of the same run.
// The plan is executed by reconcile.Executor with a bounded worker pool.
// Every item ends in the report exactly once.
package subscriptions

// Package sandbox simulates the App Store Connect subscription endpoints in
// memory.
//
// The simulator keeps one app with its subscription groups, 175 territories
// and a deterministic price-point table. It enforces the rules the
// reconciliation engine depends on:
//
//   - a subscription period can be set once and never changed
//   - prices and offers need the territory in the subscription's availability
//   - offer durations must suit the period and paid offers need a price point
//   - offers in one territory may not overlap in time
//
// Collections are paged with absolute next links. An optional rolling
// request budget answers the excess with 429 and a Retry-After header, and
// faults can be armed to fail chosen mutations. Served over HTTP by the
// sandbox command, or in-process through Transport for tests.
package sandbox

// Package appstore models the App Store Connect subscription resources and
// wraps the endpoints the reconciler reads and writes.
//
// Enumerations (Period, Duration, OfferMode, State) use the API names on the
// wire and accept the short forms used in desired-state files (1m, 3d,
// free-trial, ...). The period/duration compatibility table lives here so
// offers can be validated before any request is sent.
//
// Service is a thin typed layer over jsonapi.Client; all collection reads go
// through the paginator and every call is paced by the client's rate
// controller.
package appstore

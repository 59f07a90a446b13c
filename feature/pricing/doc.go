// Package pricing resolves canonical prices into per-territory price points.
//
// A canonical price is expressed in the reference territory (USA unless
// configured otherwise). The Resolver finds the matching price point there,
// then uses the remote equalization lookup to map it to every other
// territory. Both lookups are cached for one run, keyed by subscription and
// price for the reference point and by reference price-point id for the
// equalizations, so the same canonical price shared by several
// subscriptions costs one equalization call.
//
// Territories without an equalized point are returned as unresolved. Config
// decides whether the caller skips or fails them.
package pricing

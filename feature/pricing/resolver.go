package pricing

import (
	"context"
	"fmt"

	"asc-manager/core/appstore"
	"asc-manager/core/reconcile"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Lookup is the remote price-point lookup, satisfied by *appstore.Service.
type Lookup interface {
	FindPricePoint(ctx context.Context, subscriptionID, territory string, price decimal.Decimal) (appstore.PricePoint, error)
	Equalizations(ctx context.Context, pricePointID string) ([]appstore.PricePoint, error)
}

// Resolution maps territories to the price point equivalent to a canonical
// price.
type Resolution struct {
	Reference appstore.PricePoint
	Points    map[string]appstore.PricePoint
	// Unresolved lists requested territories without an equalized point, in
	// request order.
	Unresolved []string
}

// Resolver turns canonical prices into per-territory price points. Lookups
// are memoized for the lifetime of the Resolver, which is one run.
type Resolver struct {
	lookup    Lookup
	reference string
	logger    *zap.Logger

	anchors   *reconcile.RunCache[appstore.PricePoint]
	equalized *reconcile.RunCache[map[string]appstore.PricePoint]
}

// NewResolver creates a Resolver for one run.
func NewResolver(cfg Config, lookup Lookup, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	reference := cfg.ReferenceTerritory
	if reference == "" {
		reference = "USA"
	}
	return &Resolver{
		lookup:    lookup,
		reference: reference,
		logger:    logger,
		anchors:   reconcile.NewRunCache[appstore.PricePoint](),
		equalized: reconcile.NewRunCache[map[string]appstore.PricePoint](),
	}
}

// ReferenceTerritory returns the territory canonical prices are expressed in.
func (r *Resolver) ReferenceTerritory() string {
	return r.reference
}

// Reference finds the subscription's price point for price in the reference
// territory.
func (r *Resolver) Reference(ctx context.Context, subscriptionID string, price decimal.Decimal) (appstore.PricePoint, error) {
	key := subscriptionID + "|" + price.String()
	return r.anchors.Get(ctx, key, func(ctx context.Context) (appstore.PricePoint, error) {
		pp, err := r.lookup.FindPricePoint(ctx, subscriptionID, r.reference, price)
		if err != nil {
			return appstore.PricePoint{}, fmt.Errorf("reference price %s in %s: %w", price, r.reference, err)
		}
		return pp, nil
	})
}

// Equalized returns the price points equivalent to ref in every territory,
// ref's own territory included.
func (r *Resolver) Equalized(ctx context.Context, ref appstore.PricePoint) (map[string]appstore.PricePoint, error) {
	return r.equalized.Get(ctx, ref.ID, func(ctx context.Context) (map[string]appstore.PricePoint, error) {
		points, err := r.lookup.Equalizations(ctx, ref.ID)
		if err != nil {
			return nil, err
		}

		byTerritory := make(map[string]appstore.PricePoint, len(points)+1)
		for _, pp := range points {
			byTerritory[pp.Territory] = pp
		}
		byTerritory[ref.Territory] = ref

		r.logger.Debug("Loaded equalizations",
			zap.String("price_point", ref.ID),
			zap.Int("territories", len(byTerritory)),
		)
		return byTerritory, nil
	})
}

// Resolve maps price, expressed in the reference territory, to a price point
// in each of territories.
func (r *Resolver) Resolve(ctx context.Context, subscriptionID string, price decimal.Decimal, territories []string) (Resolution, error) {
	ref, err := r.Reference(ctx, subscriptionID, price)
	if err != nil {
		return Resolution{}, err
	}
	byTerritory, err := r.Equalized(ctx, ref)
	if err != nil {
		return Resolution{}, err
	}

	res := Resolution{Reference: ref, Points: make(map[string]appstore.PricePoint, len(territories))}
	for _, code := range territories {
		if pp, ok := byTerritory[code]; ok {
			res.Points[code] = pp
		} else {
			res.Unresolved = append(res.Unresolved, code)
		}
	}
	return res, nil
}

// CacheStats returns hits and misses of the equalization cache.
func (r *Resolver) CacheStats() (hits, misses int64) {
	return r.equalized.Stats()
}

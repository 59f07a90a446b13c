package subscriptions

import (
	"context"
	"slices"

	"asc-manager/core/appstore"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// Readiness describes what a subscription still lacks before it can be
// submitted.
type Readiness struct {
	ProductID      string
	SubscriptionID string
	Found          bool
	State          appstore.State
	Period         appstore.Period
	Localizations  int
	Prices         int
	Territories    int
	// Missing names the absent pieces: period, localization, price,
	// availability.
	Missing []string
}

// Ready reports whether nothing is missing.
func (r Readiness) Ready() bool {
	return r.Found && len(r.Missing) == 0
}

// Check reports readiness for productIDs, or for every subscription of the
// app when productIDs is empty.
func (o *Orchestrator) Check(ctx context.Context, bundleID string, productIDs []string) ([]Readiness, error) {
	cat, err := loadCatalog(ctx, o.svc, bundleID, o.cfg.Reconcile.Workers)
	if err != nil {
		return nil, err
	}
	if len(productIDs) == 0 {
		productIDs = lo.Keys(cat.byProd)
		slices.Sort(productIDs)
	}

	results := make([]Readiness, len(productIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(o.cfg.Reconcile.Workers, 1))
	for i, productID := range productIDs {
		results[i] = Readiness{ProductID: productID}
		sub, ok := cat.lookup(productID)
		if !ok {
			continue
		}
		g.Go(func() error {
			r, err := o.readiness(gctx, sub)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (o *Orchestrator) readiness(ctx context.Context, sub appstore.Subscription) (Readiness, error) {
	r := Readiness{
		ProductID:      sub.ProductID,
		SubscriptionID: sub.ID,
		Found:          true,
		State:          sub.State,
		Period:         sub.Period,
	}

	locs, err := o.svc.ListLocalizations(ctx, sub.ID)
	if err != nil {
		return r, err
	}
	prices, err := o.svc.ListPrices(ctx, sub.ID)
	if err != nil {
		return r, err
	}
	avail, _, err := o.svc.GetAvailability(ctx, sub.ID)
	if err != nil {
		return r, err
	}

	r.Localizations = len(locs)
	r.Prices = len(prices)
	r.Territories = len(avail.Territories)

	if r.Period == "" {
		r.Missing = append(r.Missing, "period")
	}
	if r.Localizations == 0 {
		r.Missing = append(r.Missing, "localization")
	}
	if r.Prices == 0 {
		r.Missing = append(r.Missing, "price")
	}
	if r.Territories == 0 {
		r.Missing = append(r.Missing, "availability")
	}
	return r, nil
}

package subscriptions

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"asc-manager/core/appstore"
	"asc-manager/core/reconcile"

	"go.uber.org/zap"
)

// Offers lists the introductory offers of one subscription, ordered by
// territory and start date.
func (o *Orchestrator) Offers(ctx context.Context, bundleID, productID string) ([]appstore.IntroductoryOffer, error) {
	cat, err := loadCatalog(ctx, o.svc, bundleID, o.cfg.Reconcile.Workers)
	if err != nil {
		return nil, err
	}
	sub, ok := cat.lookup(productID)
	if !ok {
		return nil, reconcile.Invalid(reconcile.CodeSubscriptionNotFound, "no subscription with product id %s", productID)
	}

	offers, err := o.svc.ListOffers(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(offers, func(a, b appstore.IntroductoryOffer) int {
		if c := strings.Compare(a.Territory, b.Territory); c != 0 {
			return c
		}
		return strings.Compare(a.StartDate, b.StartDate)
	})
	return offers, nil
}

// DeleteOffer removes one introductory offer. Reconciliation never deletes
// offers; this is the explicit way to clear one that blocks a new range.
func (o *Orchestrator) DeleteOffer(ctx context.Context, offerID string) error {
	if strings.TrimSpace(offerID) == "" {
		return fmt.Errorf("offer id is required")
	}
	if err := o.svc.DeleteOffer(ctx, offerID); err != nil {
		return err
	}
	o.logger.Info("Offer deleted", zap.String("offer_id", offerID))
	return nil
}

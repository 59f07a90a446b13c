package subscriptions

import (
	"context"
	"fmt"
	"sync"

	"asc-manager/core/appstore"

	"golang.org/x/sync/errgroup"
)

// catalog indexes an app's subscriptions by product identifier.
type catalog struct {
	app    appstore.App
	groups []appstore.Group
	byProd map[string]appstore.Subscription
}

// loadCatalog reads the app, its groups and every group's subscriptions,
// listing groups concurrently.
func loadCatalog(ctx context.Context, svc *appstore.Service, bundleID string, workers int) (*catalog, error) {
	app, err := svc.FindApp(ctx, bundleID)
	if err != nil {
		return nil, err
	}
	groups, err := svc.ListGroups(ctx, app.ID)
	if err != nil {
		return nil, err
	}

	c := &catalog{app: app, groups: groups, byProd: make(map[string]appstore.Subscription)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for _, group := range groups {
		g.Go(func() error {
			subs, err := svc.ListSubscriptions(gctx, group.ID)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, sub := range subs {
				c.byProd[sub.ProductID] = sub
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("index subscriptions of %s: %w", bundleID, err)
	}
	return c, nil
}

func (c *catalog) lookup(productID string) (appstore.Subscription, bool) {
	sub, ok := c.byProd[productID]
	return sub, ok
}

package subscriptions

import (
	"context"
	"fmt"
	"slices"

	"asc-manager/core/appstore"
	"asc-manager/core/jsonapi"
	"asc-manager/core/reconcile"
	"asc-manager/feature/pricing"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// snapshot is the remote state one record is diffed against.
type snapshot struct {
	sub appstore.Subscription

	availability appstore.Availability
	prices       []appstore.Price
	offers       []appstore.IntroductoryOffer

	price    pricing.Resolution
	priceErr error

	offerPrices []pricing.Resolution
	offerErrs   []error

	// err is a failure reading current state; nothing is planned.
	err error
}

// planner builds the plan for one run. Reads run concurrently per record;
// the plan itself is assembled on one goroutine in record order.
type planner struct {
	svc      *appstore.Service
	resolver *pricing.Resolver
	policy   pricing.Config
	workers  int
	today    string
	logger   *zap.Logger

	all  []string
	plan *reconcile.Plan
}

func (p *planner) selected(sel TerritorySelector) []string {
	if sel.All {
		return p.all
	}
	return lo.Uniq(sel.Codes)
}

// priced returns the territories the record's price applies to.
func (p *planner) priced(rec Record) []string {
	if !rec.Equalize {
		return []string{p.resolver.ReferenceTerritory()}
	}
	return p.selected(rec.Territories)
}

// wanted returns every territory the record needs available.
func (p *planner) wanted(rec Record) []string {
	codes := slices.Clone(p.selected(rec.Territories))
	if rec.Price != nil {
		codes = append(codes, p.priced(rec)...)
	}
	for _, o := range rec.Offers {
		codes = append(codes, p.selected(rec.territoriesOf(o))...)
	}
	return lo.Uniq(codes)
}

func (p *planner) load(ctx context.Context, rec Record, sub appstore.Subscription) *snapshot {
	snap := &snapshot{sub: sub}

	avail, found, err := p.svc.GetAvailability(ctx, sub.ID)
	if err != nil {
		snap.err = err
		return snap
	}
	if found {
		snap.availability = avail
	}

	if rec.Price != nil {
		if snap.prices, err = p.svc.ListPrices(ctx, sub.ID); err != nil {
			snap.err = err
			return snap
		}
		snap.price, snap.priceErr = p.resolver.Resolve(ctx, sub.ID, *rec.Price, p.priced(rec))
	}

	if len(rec.Offers) > 0 {
		if snap.offers, err = p.svc.ListOffers(ctx, sub.ID); err != nil {
			snap.err = err
			return snap
		}
		snap.offerPrices = make([]pricing.Resolution, len(rec.Offers))
		snap.offerErrs = make([]error, len(rec.Offers))
		for i, o := range rec.Offers {
			if o.Mode.RequiresPricePoint() && o.Price != nil {
				snap.offerPrices[i], snap.offerErrs[i] = p.resolver.Resolve(ctx, sub.ID, *o.Price, p.selected(rec.territoriesOf(o)))
			}
		}
	}
	return snap
}

// build reads current state for every record and plans their writes.
func (p *planner) build(ctx context.Context, records []Record, cat *catalog) {
	snaps := make([]*snapshot, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.workers, 1))
	for i, rec := range records {
		sub, ok := cat.lookup(rec.ProductID)
		if !ok {
			continue
		}
		g.Go(func() error {
			snaps[i] = p.load(gctx, rec, sub)
			return nil
		})
	}
	_ = g.Wait()

	for i, rec := range records {
		target := reconcile.Target{ProductID: rec.ProductID}
		if snaps[i] == nil {
			p.plan.Fail(reconcile.KindSubscription, target,
				reconcile.Invalid(reconcile.CodeSubscriptionNotFound, "no subscription with product id %s", rec.ProductID))
			continue
		}
		target.SubscriptionID = snaps[i].sub.ID
		if err := snaps[i].err; err != nil {
			p.plan.Fail(reconcile.KindSubscription, target, fmt.Errorf("read current state: %w", err))
			continue
		}
		p.record(rec, snaps[i], target)
	}
}

func opID(kind reconcile.Kind, t reconcile.Target, suffix ...any) string {
	id := fmt.Sprintf("%s:%s", kind, t)
	for _, s := range suffix {
		id += fmt.Sprintf(":%v", s)
	}
	return id
}

func (p *planner) add(op reconcile.Operation) {
	if err := p.plan.Add(op); err != nil {
		// Ids are derived from distinct targets; a clash is a planner bug.
		p.plan.Fail(op.Kind, op.Target, fmt.Errorf("plan %s: %w", op.ID, err))
	}
}

// record plans one record: period, availability, prices, then offers.
func (p *planner) record(rec Record, snap *snapshot, target reconcile.Target) {
	sub := snap.sub
	subID := sub.ID

	// Period: unset -> set once, terminal afterwards.
	period := sub.Period
	periodOp := ""
	switch {
	case rec.Period == "":
	case sub.Period == "":
		period = rec.Period
		periodOp = opID(reconcile.KindPeriod, target)
		want := rec.Period
		p.add(reconcile.Operation{
			ID:          periodOp,
			Kind:        reconcile.KindPeriod,
			Target:      target,
			Description: fmt.Sprintf("set period to %s", want),
			Apply: func(ctx context.Context) error {
				return p.svc.SetPeriod(ctx, subID, want)
			},
		})
	case sub.Period == rec.Period:
		p.plan.Unchanged(reconcile.KindPeriod, target, string(sub.Period))
	default:
		p.plan.Fail(reconcile.KindPeriod, target, reconcile.Invalid(reconcile.CodePeriodImmutable,
			"period is %s and cannot be changed to %s", sub.Period, rec.Period))
	}

	// Availability: extend only, one write per subscription. A territory
	// that cannot be priced and carries no offer is not made available.
	current := snap.availability.Territories
	added := lo.Without(p.wanted(rec), current...)
	if unpriced := p.unpriced(rec, snap); len(unpriced) > 0 {
		added = lo.Without(added, unpriced...)
	}
	isNew := lo.SliceToMap(added, func(code string) (string, bool) { return code, true })
	availOp := ""
	if len(added) > 0 {
		availOp = opID(reconcile.KindAvailability, target)
		territories := append(slices.Clone(current), added...)
		keepNew := snap.availability.AvailableInNewTerritories
		p.add(reconcile.Operation{
			ID:          availOp,
			Kind:        reconcile.KindAvailability,
			Target:      target,
			Description: fmt.Sprintf("add %d territories (%d total)", len(added), len(territories)),
			Apply: func(ctx context.Context) error {
				_, err := p.svc.SetAvailability(ctx, subID, territories, keepNew)
				return err
			},
		})
	} else {
		p.plan.Unchanged(reconcile.KindAvailability, target, fmt.Sprintf("%d territories", len(current)))
	}

	after := func(territory string, extra ...string) []string {
		deps := slices.Clone(extra)
		if isNew[territory] {
			deps = append(deps, availOp)
		}
		return deps
	}

	var priceOps map[string]string
	if rec.Price != nil {
		priceOps = p.prices(rec, snap, target, after)
	}

	// Offers in a territory wait for that territory's price write.
	offerAfter := func(territory string, extra ...string) []string {
		if id, ok := priceOps[territory]; ok {
			extra = append(slices.Clone(extra), id)
		}
		return after(territory, extra...)
	}
	for i, offer := range rec.Offers {
		p.offer(rec, snap, target, i, offer, period, periodOp, offerAfter)
	}
}

// unpriced returns the territories the record prices but has no price point
// for, leaving out those an offer targets.
func (p *planner) unpriced(rec Record, snap *snapshot) []string {
	if rec.Price == nil || snap.priceErr != nil || len(snap.price.Unresolved) == 0 {
		return nil
	}
	offered := make(map[string]bool)
	for _, o := range rec.Offers {
		for _, code := range p.selected(rec.territoriesOf(o)) {
			offered[code] = true
		}
	}
	return lo.Reject(snap.price.Unresolved, func(code string, _ int) bool { return offered[code] })
}

func (p *planner) unresolved(kind reconcile.Kind, t reconcile.Target) {
	if p.policy.FailUnresolved() {
		p.plan.Fail(kind, t, reconcile.Invalid(reconcile.CodeUnresolvedTerritory, "no equalized price point in %s", t.Territory))
		return
	}
	p.plan.Skip(kind, t, "no equalized price point")
}

// prices plans the price writes and returns the planned operation id per
// territory.
func (p *planner) prices(rec Record, snap *snapshot, target reconcile.Target, after func(string, ...string) []string) map[string]string {
	ops := make(map[string]string)
	if snap.priceErr != nil {
		p.plan.Fail(reconcile.KindPrice, target, snap.priceErr)
		return ops
	}

	subID := snap.sub.ID
	active := appstore.ActivePrices(snap.prices, p.today)
	for _, code := range p.priced(rec) {
		t := target
		t.Territory = code

		pp, ok := snap.price.Points[code]
		if !ok {
			p.unresolved(reconcile.KindPrice, t)
			continue
		}
		if cur, ok := active[code]; ok && cur.PricePointID == pp.ID {
			p.plan.Unchanged(reconcile.KindPrice, t, fmt.Sprintf("%s (%s)", pp.CustomerPrice, pp.ID))
			continue
		}

		ppID := pp.ID
		id := opID(reconcile.KindPrice, t)
		p.add(reconcile.Operation{
			ID:          id,
			Kind:        reconcile.KindPrice,
			Target:      t,
			Description: fmt.Sprintf("set price to %s (%s)", pp.CustomerPrice, pp.ID),
			DependsOn:   after(code),
			Apply: func(ctx context.Context) error {
				_, err := p.svc.CreatePrice(ctx, subID, ppID, "", false)
				return err
			},
		})
		if p.plan.Has(id) {
			ops[code] = id
		}
	}
	return ops
}

func sameOffer(a, b appstore.IntroductoryOffer) bool {
	return a.Mode == b.Mode &&
		a.Duration == b.Duration &&
		a.NumberOfPeriods == b.NumberOfPeriods &&
		a.PricePointID == b.PricePointID &&
		a.StartDate == b.StartDate &&
		a.EndDate == b.EndDate
}

func (p *planner) offer(rec Record, snap *snapshot, target reconcile.Target, index int, offer Offer,
	period appstore.Period, periodOp string, after func(string, ...string) []string) {
	// Offer-level checks are reported once, without a territory.
	switch {
	case period == "":
		p.plan.Fail(reconcile.KindOffer, target, reconcile.Invalid(reconcile.CodePeriodRequired,
			"offers need a subscription period; set period for %s", rec.ProductID))
		return
	case !appstore.Compatible(period, offer.Duration):
		p.plan.Fail(reconcile.KindOffer, target, reconcile.Invalid(reconcile.CodeIncompatibleDuration,
			"duration %s is not allowed for period %s (allowed: %v)", offer.Duration, period, appstore.AllowedDurations(period)))
		return
	case offer.Mode.RequiresPricePoint() && offer.Price == nil:
		p.plan.Fail(reconcile.KindOffer, target, reconcile.Invalid(reconcile.CodePricePointRequired,
			"%s offers need a price", offer.Mode))
		return
	case snap.offerErrs[index] != nil:
		p.plan.Fail(reconcile.KindOffer, target, snap.offerErrs[index])
		return
	}

	subID := snap.sub.ID
	for _, code := range p.selected(rec.territoriesOf(offer)) {
		t := target
		t.Territory = code

		want := appstore.IntroductoryOffer{
			SubscriptionID:  subID,
			Territory:       code,
			Mode:            offer.Mode,
			Duration:        offer.Duration,
			NumberOfPeriods: offer.Periods,
			StartDate:       offer.StartDate,
			EndDate:         offer.EndDate,
		}
		if offer.Mode.RequiresPricePoint() {
			pp, ok := snap.offerPrices[index].Points[code]
			if !ok {
				p.unresolved(reconcile.KindOffer, t)
				continue
			}
			want.PricePointID = pp.ID
		}

		inTerritory := lo.Filter(snap.offers, func(o appstore.IntroductoryOffer, _ int) bool { return o.Territory == code })
		if slices.ContainsFunc(inTerritory, func(o appstore.IntroductoryOffer) bool { return sameOffer(o, want) }) {
			p.plan.Unchanged(reconcile.KindOffer, t, fmt.Sprintf("%s %s", want.Mode, want.Duration))
			continue
		}
		if clash, found := lo.Find(inTerritory, func(o appstore.IntroductoryOffer) bool {
			return o.Overlaps(want.StartDate, want.EndDate)
		}); found {
			name := "offer " + clash.ID
			if clash.ID == "" {
				name = "a planned offer"
			}
			p.plan.Fail(reconcile.KindOffer, t, reconcile.Conflict(jsonapi.CodeStateError,
				"%s (%s to %s) overlaps the requested date range", name, openDate(clash.StartDate), openDate(clash.EndDate)))
			continue
		}

		// Later offers of the same run count as existing ones.
		snap.offers = append(snap.offers, want)

		var deps []string
		if periodOp != "" {
			deps = append(deps, periodOp)
		}
		p.add(reconcile.Operation{
			ID:          opID(reconcile.KindOffer, t, index),
			Kind:        reconcile.KindOffer,
			Target:      t,
			Description: fmt.Sprintf("create %s %s offer", want.Mode, want.Duration),
			DependsOn:   after(code, deps...),
			Apply: func(ctx context.Context) error {
				_, err := p.svc.CreateOffer(ctx, want)
				return err
			},
		})
	}
}

func openDate(d string) string {
	if d == "" {
		return "open"
	}
	return d
}

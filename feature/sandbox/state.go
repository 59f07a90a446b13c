package sandbox

import (
	"slices"
	"sync"

	"asc-manager/core/appstore"

	"github.com/google/uuid"
)

type subscriptionRecord struct {
	sub           appstore.Subscription
	availability  *appstore.Availability
	prices        []appstore.Price
	offers        []appstore.IntroductoryOffer
	localizations []appstore.Localization
}

// state is the simulated remote catalogue.
type state struct {
	mu sync.RWMutex

	app    appstore.App
	groups []appstore.Group

	subs     map[string]*subscriptionRecord
	subOrder []string

	territories  []appstore.Territory
	territoryIdx map[string]int

	tiers       int
	pricePoints map[string]appstore.PricePoint
	tierOf      map[string]int
	unequalized map[string]bool
}

func newState(f Fixture) *state {
	s := &state{
		app:          appstore.App{ID: f.AppID, BundleID: f.BundleID, Name: f.AppName},
		groups:       append([]appstore.Group(nil), f.Groups...),
		subs:         make(map[string]*subscriptionRecord),
		territoryIdx: make(map[string]int, len(territoryCodes)),
		tiers:        f.Tiers,
		pricePoints:  make(map[string]appstore.PricePoint, len(territoryCodes)*f.Tiers),
		tierOf:       make(map[string]int, len(territoryCodes)*f.Tiers),
		unequalized:  make(map[string]bool, len(f.Unequalized)),
	}

	for i, code := range territoryCodes {
		s.territories = append(s.territories, appstore.Territory{Code: code, Currency: currencyOf(code)})
		s.territoryIdx[code] = i
		for tier := 1; tier <= f.Tiers; tier++ {
			price := tierPrice(i, code, tier)
			pp := appstore.PricePoint{
				ID:            PricePointID(code, tier),
				Territory:     code,
				CustomerPrice: price,
				Proceeds:      price.Mul(proceedsShare).Round(2),
			}
			s.pricePoints[pp.ID] = pp
			s.tierOf[pp.ID] = tier
		}
	}
	for _, code := range f.Unequalized {
		s.unequalized[code] = true
	}

	for _, sf := range f.Subscriptions {
		s.subs[sf.ID] = &subscriptionRecord{
			sub: appstore.Subscription{
				ID:         sf.ID,
				ProductID:  sf.ProductID,
				Name:       sf.Name,
				GroupID:    sf.GroupID,
				Period:     sf.Period,
				State:      appstore.StateMissingMetadata,
				GroupLevel: len(s.subOrder) + 1,
			},
			localizations: []appstore.Localization{{
				ID:     sf.ID + ".en-US",
				Locale: "en-US",
				Name:   sf.Name,
			}},
		}
		s.subOrder = append(s.subOrder, sf.ID)
	}
	return s
}

func (s *state) territoryKnown(code string) bool {
	_, ok := s.territoryIdx[code]
	return ok
}

// subscriptionsOf returns the subscriptions of a group in fixture order.
func (s *state) subscriptionsOf(groupID string) []appstore.Subscription {
	var subs []appstore.Subscription
	for _, id := range s.subOrder {
		if rec := s.subs[id]; rec.sub.GroupID == groupID {
			subs = append(subs, rec.sub)
		}
	}
	return subs
}

// pricePointsIn returns the tiers of one territory, cheapest first.
func (s *state) pricePointsIn(territory string) []appstore.PricePoint {
	points := make([]appstore.PricePoint, 0, s.tiers)
	for tier := 1; tier <= s.tiers; tier++ {
		if pp, ok := s.pricePoints[PricePointID(territory, tier)]; ok {
			points = append(points, pp)
		}
	}
	return points
}

// equalizations returns the same tier in every other territory.
func (s *state) equalizations(ppID string) ([]appstore.PricePoint, bool) {
	pp, ok := s.pricePoints[ppID]
	if !ok {
		return nil, false
	}
	tier := s.tierOf[ppID]

	points := make([]appstore.PricePoint, 0, len(s.territories)-1)
	for _, t := range s.territories {
		if t.Code == pp.Territory || s.unequalized[t.Code] {
			continue
		}
		points = append(points, s.pricePoints[PricePointID(t.Code, tier)])
	}
	return points, true
}

func (s *state) available(rec *subscriptionRecord, territory string) bool {
	return rec.availability != nil && slices.Contains(rec.availability.Territories, territory)
}

// addPrice stores a price, superseding any price in the same territory with
// the same start date.
func (s *state) addPrice(rec *subscriptionRecord, p appstore.Price) appstore.Price {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	rec.prices = slices.DeleteFunc(rec.prices, func(existing appstore.Price) bool {
		return existing.Territory == p.Territory && existing.StartDate == p.StartDate
	})
	rec.prices = append(rec.prices, p)
	return p
}

// setAvailability replaces the territory set, keeping the availability id.
func (s *state) setAvailability(rec *subscriptionRecord, territories []string, availableInNew bool) appstore.Availability {
	id := uuid.NewString()
	if rec.availability != nil {
		id = rec.availability.ID
	}
	rec.availability = &appstore.Availability{
		ID:                        id,
		SubscriptionID:            rec.sub.ID,
		Territories:               slices.Clone(territories),
		AvailableInNewTerritories: availableInNew,
	}
	return *rec.availability
}

func (s *state) findOffer(offerID string) (*subscriptionRecord, int) {
	for _, id := range s.subOrder {
		rec := s.subs[id]
		for i, o := range rec.offers {
			if o.ID == offerID {
				return rec, i
			}
		}
	}
	return nil, -1
}

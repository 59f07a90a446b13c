package appstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"asc-manager/core/jsonapi"

	"github.com/shopspring/decimal"
)

// Service exposes the App Store Connect endpoints used for subscription
// reconciliation.
type Service struct {
	client   *jsonapi.Client
	pageSize int
}

// NewService wraps a JSON:API client. pageSize <= 0 uses the maximum.
func NewService(client *jsonapi.Client, pageSize int) *Service {
	if pageSize <= 0 || pageSize > jsonapi.MaxPageSize {
		pageSize = jsonapi.MaxPageSize
	}
	return &Service{client: client, pageSize: pageSize}
}

// ErrNotFound is returned by lookups that found nothing.
var ErrNotFound = errors.New("not found")

func isNotFound(err error) bool {
	var apiErr *jsonapi.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func (s *Service) page(include ...string) jsonapi.PageOptions {
	return jsonapi.PageOptions{Limit: s.pageSize, Include: include}
}

// FindApp looks up an app by bundle id.
func (s *Service) FindApp(ctx context.Context, bundleID string) (App, error) {
	doc, err := s.client.Get(ctx, "apps", url.Values{"filter[bundleId]": {bundleID}})
	if err != nil {
		return App{}, fmt.Errorf("find app %s: %w", bundleID, err)
	}
	records, err := doc.Resources()
	if err != nil {
		return App{}, err
	}
	if len(records) == 0 {
		return App{}, fmt.Errorf("app %s: %w", bundleID, ErrNotFound)
	}

	var attrs struct {
		BundleID string `json:"bundleId"`
		Name     string `json:"name"`
	}
	if err := records[0].Decode(&attrs); err != nil {
		return App{}, err
	}
	return App{ID: records[0].ID, BundleID: attrs.BundleID, Name: attrs.Name}, nil
}

// ListGroups returns the app's subscription groups.
func (s *Service) ListGroups(ctx context.Context, appID string) ([]Group, error) {
	records, err := s.client.Paginate("apps/"+appID+"/subscriptionGroups", s.page()).Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscription groups: %w", err)
	}

	groups := make([]Group, 0, len(records))
	for _, r := range records {
		var attrs struct {
			ReferenceName string `json:"referenceName"`
		}
		if err := r.Decode(&attrs); err != nil {
			return nil, err
		}
		groups = append(groups, Group{ID: r.ID, ReferenceName: attrs.ReferenceName})
	}
	return groups, nil
}

type subscriptionAttributes struct {
	Name               string `json:"name,omitempty"`
	ProductID          string `json:"productId,omitempty"`
	SubscriptionPeriod Period `json:"subscriptionPeriod,omitempty"`
	State              State  `json:"state,omitempty"`
	GroupLevel         int    `json:"groupLevel,omitempty"`
}

func decodeSubscription(r jsonapi.Resource, groupID string) (Subscription, error) {
	var attrs subscriptionAttributes
	if err := r.Decode(&attrs); err != nil {
		return Subscription{}, err
	}
	if id := r.RelationshipID("group"); id != "" {
		groupID = id
	}
	return Subscription{
		ID:         r.ID,
		ProductID:  attrs.ProductID,
		Name:       attrs.Name,
		GroupID:    groupID,
		Period:     attrs.SubscriptionPeriod,
		State:      attrs.State,
		GroupLevel: attrs.GroupLevel,
	}, nil
}

// ListSubscriptions returns the subscriptions of a group.
func (s *Service) ListSubscriptions(ctx context.Context, groupID string) ([]Subscription, error) {
	records, err := s.client.Paginate("subscriptionGroups/"+groupID+"/subscriptions", s.page()).Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions of group %s: %w", groupID, err)
	}

	subs := make([]Subscription, 0, len(records))
	for _, r := range records {
		sub, err := decodeSubscription(r, groupID)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// GetSubscription fetches one subscription.
func (s *Service) GetSubscription(ctx context.Context, id string) (Subscription, error) {
	doc, err := s.client.Get(ctx, "subscriptions/"+id, nil)
	if err != nil {
		return Subscription{}, fmt.Errorf("get subscription %s: %w", id, err)
	}
	r, err := doc.Resource()
	if err != nil {
		return Subscription{}, err
	}
	return decodeSubscription(r, "")
}

// SetPeriod sets the billing period. The remote system accepts this only
// while the period is unset.
func (s *Service) SetPeriod(ctx context.Context, subscriptionID string, period Period) error {
	res, err := jsonapi.NewResource(TypeSubscriptions, subscriptionID, subscriptionAttributes{SubscriptionPeriod: period}, nil)
	if err != nil {
		return err
	}
	if _, err := s.client.Patch(ctx, "subscriptions/"+subscriptionID, &jsonapi.Payload{Data: res}); err != nil {
		return fmt.Errorf("set period of subscription %s: %w", subscriptionID, err)
	}
	return nil
}

// ListTerritories returns every territory known to the remote system.
func (s *Service) ListTerritories(ctx context.Context) ([]Territory, error) {
	records, err := s.client.Paginate("territories", s.page()).Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("list territories: %w", err)
	}

	territories := make([]Territory, 0, len(records))
	for _, r := range records {
		var attrs struct {
			Currency string `json:"currency"`
		}
		if err := r.Decode(&attrs); err != nil {
			return nil, err
		}
		territories = append(territories, Territory{Code: r.ID, Currency: attrs.Currency})
	}
	return territories, nil
}

func decodePricePoint(r jsonapi.Resource) (PricePoint, error) {
	var attrs struct {
		CustomerPrice decimal.Decimal `json:"customerPrice"`
		Proceeds      decimal.Decimal `json:"proceeds"`
	}
	if err := r.Decode(&attrs); err != nil {
		return PricePoint{}, err
	}
	return PricePoint{
		ID:            r.ID,
		Territory:     r.RelationshipID("territory"),
		CustomerPrice: attrs.CustomerPrice,
		Proceeds:      attrs.Proceeds,
	}, nil
}

// FindPricePoint walks the subscription's price points in territory and
// returns the one whose customer price equals price. Pages after the match
// are never fetched.
func (s *Service) FindPricePoint(ctx context.Context, subscriptionID, territory string, price decimal.Decimal) (PricePoint, error) {
	opts := s.page("territory")
	opts.Filter = map[string]string{"territory": territory}

	for r, err := range s.client.Paginate("subscriptions/"+subscriptionID+"/pricePoints", opts).All(ctx) {
		if err != nil {
			return PricePoint{}, fmt.Errorf("list price points in %s: %w", territory, err)
		}
		pp, err := decodePricePoint(r)
		if err != nil {
			return PricePoint{}, err
		}
		if pp.CustomerPrice.Equal(price) {
			if pp.Territory == "" {
				pp.Territory = territory
			}
			return pp, nil
		}
	}
	return PricePoint{}, fmt.Errorf("price %s in %s: %w", price, territory, ErrNotFound)
}

// Equalizations returns the price points equivalent to pricePointID in every
// other territory.
func (s *Service) Equalizations(ctx context.Context, pricePointID string) ([]PricePoint, error) {
	records, err := s.client.Paginate("subscriptionPricePoints/"+pricePointID+"/equalizations", s.page("territory")).Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("equalizations of %s: %w", pricePointID, err)
	}

	points := make([]PricePoint, 0, len(records))
	for _, r := range records {
		pp, err := decodePricePoint(r)
		if err != nil {
			return nil, err
		}
		points = append(points, pp)
	}
	return points, nil
}

type priceAttributes struct {
	StartDate            *string `json:"startDate"`
	Preserved            bool    `json:"preserved,omitempty"`
	PreserveCurrentPrice *bool   `json:"preserveCurrentPrice,omitempty"`
}

// ListPrices returns every price of a subscription, current and scheduled.
func (s *Service) ListPrices(ctx context.Context, subscriptionID string) ([]Price, error) {
	records, err := s.client.Paginate("subscriptions/"+subscriptionID+"/prices", s.page("territory", "subscriptionPricePoint")).Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("list prices of subscription %s: %w", subscriptionID, err)
	}

	prices := make([]Price, 0, len(records))
	for _, r := range records {
		var attrs priceAttributes
		if err := r.Decode(&attrs); err != nil {
			return nil, err
		}
		p := Price{
			ID:             r.ID,
			SubscriptionID: subscriptionID,
			Territory:      r.RelationshipID("territory"),
			PricePointID:   r.RelationshipID("subscriptionPricePoint"),
			Preserved:      attrs.Preserved,
		}
		if attrs.StartDate != nil {
			p.StartDate = *attrs.StartDate
		}
		prices = append(prices, p)
	}
	return prices, nil
}

// CreatePrice schedules pricePointID for the subscription. An empty
// startDate makes it effective immediately.
func (s *Service) CreatePrice(ctx context.Context, subscriptionID, pricePointID, startDate string, preserveCurrent bool) (Price, error) {
	attrs := priceAttributes{}
	if startDate != "" {
		attrs.StartDate = &startDate
	}
	if preserveCurrent {
		attrs.PreserveCurrentPrice = &preserveCurrent
	}
	res, err := jsonapi.NewResource(TypePrices, "", attrs, map[string]jsonapi.Relationship{
		"subscription":           jsonapi.NewToOne(TypeSubscriptions, subscriptionID),
		"subscriptionPricePoint": jsonapi.NewToOne(TypePricePoints, pricePointID),
	})
	if err != nil {
		return Price{}, err
	}

	doc, err := s.client.Post(ctx, "subscriptionPrices", &jsonapi.Payload{Data: res})
	if err != nil {
		return Price{}, fmt.Errorf("create price %s: %w", pricePointID, err)
	}
	created, err := doc.Resource()
	if err != nil {
		return Price{}, err
	}
	return Price{
		ID:             created.ID,
		SubscriptionID: subscriptionID,
		Territory:      created.RelationshipID("territory"),
		PricePointID:   pricePointID,
		StartDate:      startDate,
	}, nil
}

// GetAvailability returns the subscription's availability. found is false
// when none has been created yet.
func (s *Service) GetAvailability(ctx context.Context, subscriptionID string) (avail Availability, found bool, err error) {
	doc, err := s.client.Get(ctx, "subscriptions/"+subscriptionID+"/subscriptionAvailability", nil)
	if err != nil {
		if isNotFound(err) {
			return Availability{}, false, nil
		}
		return Availability{}, false, fmt.Errorf("get availability of subscription %s: %w", subscriptionID, err)
	}
	r, err := doc.Resource()
	if err != nil {
		return Availability{}, false, err
	}

	var attrs struct {
		AvailableInNewTerritories bool `json:"availableInNewTerritories"`
	}
	if err := r.Decode(&attrs); err != nil {
		return Availability{}, false, err
	}

	territories, err := s.client.Paginate("subscriptionAvailabilities/"+r.ID+"/availableTerritories", s.page()).Collect(ctx)
	if err != nil {
		return Availability{}, false, fmt.Errorf("list available territories: %w", err)
	}

	avail = Availability{
		ID:                        r.ID,
		SubscriptionID:            subscriptionID,
		AvailableInNewTerritories: attrs.AvailableInNewTerritories,
		Territories:               make([]string, 0, len(territories)),
	}
	for _, t := range territories {
		avail.Territories = append(avail.Territories, t.ID)
	}
	return avail, true, nil
}

// SetAvailability replaces the subscription's territory set.
func (s *Service) SetAvailability(ctx context.Context, subscriptionID string, territories []string, availableInNew bool) (Availability, error) {
	attrs := struct {
		AvailableInNewTerritories bool `json:"availableInNewTerritories"`
	}{availableInNew}
	res, err := jsonapi.NewResource(TypeAvailabilities, "", attrs, map[string]jsonapi.Relationship{
		"subscription":         jsonapi.NewToOne(TypeSubscriptions, subscriptionID),
		"availableTerritories": jsonapi.NewToMany(TypeTerritories, territories...),
	})
	if err != nil {
		return Availability{}, err
	}

	doc, err := s.client.Post(ctx, "subscriptionAvailabilities", &jsonapi.Payload{Data: res})
	if err != nil {
		return Availability{}, fmt.Errorf("set availability of subscription %s: %w", subscriptionID, err)
	}
	created, err := doc.Resource()
	if err != nil {
		return Availability{}, err
	}
	return Availability{
		ID:                        created.ID,
		SubscriptionID:            subscriptionID,
		Territories:               territories,
		AvailableInNewTerritories: availableInNew,
	}, nil
}

type offerAttributes struct {
	StartDate       *string   `json:"startDate,omitempty"`
	EndDate         *string   `json:"endDate,omitempty"`
	Duration        Duration  `json:"duration"`
	OfferMode       OfferMode `json:"offerMode"`
	NumberOfPeriods int       `json:"numberOfPeriods"`
}

func optionalDate(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ListOffers returns the subscription's introductory offers.
func (s *Service) ListOffers(ctx context.Context, subscriptionID string) ([]IntroductoryOffer, error) {
	records, err := s.client.Paginate("subscriptions/"+subscriptionID+"/introductoryOffers", s.page("territory", "subscriptionPricePoint")).Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("list offers of subscription %s: %w", subscriptionID, err)
	}

	offers := make([]IntroductoryOffer, 0, len(records))
	for _, r := range records {
		var attrs offerAttributes
		if err := r.Decode(&attrs); err != nil {
			return nil, err
		}
		o := IntroductoryOffer{
			ID:              r.ID,
			SubscriptionID:  subscriptionID,
			Territory:       r.RelationshipID("territory"),
			Mode:            attrs.OfferMode,
			Duration:        attrs.Duration,
			NumberOfPeriods: attrs.NumberOfPeriods,
			PricePointID:    r.RelationshipID("subscriptionPricePoint"),
		}
		if attrs.StartDate != nil {
			o.StartDate = *attrs.StartDate
		}
		if attrs.EndDate != nil {
			o.EndDate = *attrs.EndDate
		}
		offers = append(offers, o)
	}
	return offers, nil
}

// CreateOffer creates an introductory offer in one territory.
func (s *Service) CreateOffer(ctx context.Context, offer IntroductoryOffer) (IntroductoryOffer, error) {
	rels := map[string]jsonapi.Relationship{
		"subscription": jsonapi.NewToOne(TypeSubscriptions, offer.SubscriptionID),
		"territory":    jsonapi.NewToOne(TypeTerritories, offer.Territory),
	}
	if offer.PricePointID != "" {
		rels["subscriptionPricePoint"] = jsonapi.NewToOne(TypePricePoints, offer.PricePointID)
	}
	periods := offer.NumberOfPeriods
	if periods <= 0 {
		periods = 1
	}
	res, err := jsonapi.NewResource(TypeIntroductoryOffers, "", offerAttributes{
		StartDate:       optionalDate(offer.StartDate),
		EndDate:         optionalDate(offer.EndDate),
		Duration:        offer.Duration,
		OfferMode:       offer.Mode,
		NumberOfPeriods: periods,
	}, rels)
	if err != nil {
		return IntroductoryOffer{}, err
	}

	doc, err := s.client.Post(ctx, "subscriptionIntroductoryOffers", &jsonapi.Payload{Data: res})
	if err != nil {
		return IntroductoryOffer{}, fmt.Errorf("create offer in %s: %w", offer.Territory, err)
	}
	created, err := doc.Resource()
	if err != nil {
		return IntroductoryOffer{}, err
	}
	offer.ID = created.ID
	offer.NumberOfPeriods = periods
	return offer, nil
}

// DeleteOffer removes an introductory offer.
func (s *Service) DeleteOffer(ctx context.Context, offerID string) error {
	if err := s.client.Delete(ctx, "subscriptionIntroductoryOffers/"+offerID); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("offer %s: %w", offerID, ErrNotFound)
		}
		return fmt.Errorf("delete offer %s: %w", offerID, err)
	}
	return nil
}

// ListLocalizations returns the subscription's localizations.
func (s *Service) ListLocalizations(ctx context.Context, subscriptionID string) ([]Localization, error) {
	records, err := s.client.Paginate("subscriptions/"+subscriptionID+"/subscriptionLocalizations", s.page()).Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("list localizations of subscription %s: %w", subscriptionID, err)
	}

	locs := make([]Localization, 0, len(records))
	for _, r := range records {
		var attrs struct {
			Locale      string `json:"locale"`
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := r.Decode(&attrs); err != nil {
			return nil, err
		}
		locs = append(locs, Localization{ID: r.ID, Locale: attrs.Locale, Name: attrs.Name, Description: attrs.Description})
	}
	return locs, nil
}

package appstore

import (
	"github.com/shopspring/decimal"
)

// Resource type names on the wire.
const (
	TypeApps               = "apps"
	TypeSubscriptionGroups = "subscriptionGroups"
	TypeSubscriptions      = "subscriptions"
	TypeTerritories        = "territories"
	TypePricePoints        = "subscriptionPricePoints"
	TypePrices             = "subscriptionPrices"
	TypeAvailabilities     = "subscriptionAvailabilities"
	TypeIntroductoryOffers = "subscriptionIntroductoryOffers"
	TypeLocalizations      = "subscriptionLocalizations"
)

// App is an App Store app.
type App struct {
	ID       string
	BundleID string
	Name     string
}

// Group is a subscription group.
type Group struct {
	ID            string
	ReferenceName string
}

// Territory is a sales region.
type Territory struct {
	// Code is the ISO-3 country code, which is also the resource id.
	Code     string
	Currency string
}

// PricePoint is an Apple-defined price tier in one territory.
type PricePoint struct {
	ID            string
	Territory     string
	CustomerPrice decimal.Decimal
	Proceeds      decimal.Decimal
}

// Subscription is an auto-renewable subscription product.
type Subscription struct {
	ID        string
	ProductID string
	Name      string
	GroupID   string
	// Period is empty while unset.
	Period     Period
	State      State
	GroupLevel int
}

// Availability is the set of territories a subscription is sold in.
type Availability struct {
	ID                        string
	SubscriptionID            string
	Territories               []string
	AvailableInNewTerritories bool
}

// Price is a subscription price in one territory.
type Price struct {
	ID             string
	SubscriptionID string
	Territory      string
	PricePointID   string
	// StartDate is YYYY-MM-DD, or empty for a price effective immediately.
	StartDate string
	Preserved bool
}

// IntroductoryOffer is a time-boxed discount in one territory.
type IntroductoryOffer struct {
	ID              string
	SubscriptionID  string
	Territory       string
	Mode            OfferMode
	Duration        Duration
	NumberOfPeriods int
	// PricePointID is empty for free trials.
	PricePointID string
	// StartDate and EndDate are YYYY-MM-DD; empty means unbounded.
	StartDate string
	EndDate   string
}

// Overlaps reports whether the offer's date range intersects [start, end].
// Empty bounds are open-ended.
func (o IntroductoryOffer) Overlaps(start, end string) bool {
	// a.start <= b.end && b.start <= a.end, with empty meaning unbounded.
	startsBeforeEnd := o.StartDate == "" || end == "" || o.StartDate <= end
	endsAfterStart := o.EndDate == "" || start == "" || start <= o.EndDate
	return startsBeforeEnd && endsAfterStart
}

// Localization is a subscription's display name and description in one locale.
type Localization struct {
	ID          string
	Locale      string
	Name        string
	Description string
}

// ActivePrices picks the price in effect on day (YYYY-MM-DD) for each
// territory: the one with the latest start date not after day.
func ActivePrices(prices []Price, day string) map[string]Price {
	active := make(map[string]Price)
	for _, p := range prices {
		if p.StartDate != "" && p.StartDate > day {
			continue
		}
		current, ok := active[p.Territory]
		if !ok || p.StartDate >= current.StartDate {
			active[p.Territory] = p
		}
	}
	return active
}

package sandbox

import (
	"fmt"

	"asc-manager/core/appstore"

	"github.com/shopspring/decimal"
)

// territoryCodes are the 175 storefronts, in the order the remote system lists them.
var territoryCodes = []string{
	"AFG", "ALB", "DZA", "AGO", "AIA", "ATG", "ARG", "ARM", "AUS", "AUT",
	"AZE", "BHS", "BHR", "BRB", "BLR", "BEL", "BLZ", "BEN", "BMU", "BTN",
	"BOL", "BIH", "BWA", "BRA", "VGB", "BRN", "BGR", "BFA", "KHM", "CMR",
	"CAN", "CPV", "CYM", "TCD", "CHL", "CHN", "COL", "COD", "COG", "CRI",
	"CIV", "HRV", "CYP", "CZE", "DNK", "DMA", "DOM", "ECU", "EGY", "SLV",
	"EST", "SWZ", "FJI", "FIN", "FRA", "GAB", "GMB", "GEO", "DEU", "GHA",
	"GRC", "GRD", "GTM", "GNB", "GUY", "HND", "HKG", "HUN", "ISL", "IND",
	"IDN", "IRQ", "IRL", "ISR", "ITA", "JAM", "JPN", "JOR", "KAZ", "KEN",
	"KOR", "XKS", "KWT", "KGZ", "LAO", "LVA", "LBN", "LBR", "LBY", "LTU",
	"LUX", "MAC", "MDG", "MWI", "MYS", "MDV", "MLI", "MLT", "MRT", "MUS",
	"MEX", "FSM", "MDA", "MNG", "MNE", "MSR", "MAR", "MOZ", "MMR", "NAM",
	"NRU", "NPL", "NLD", "NZL", "NIC", "NER", "NGA", "MKD", "NOR", "OMN",
	"PAK", "PLW", "PAN", "PNG", "PRY", "PER", "PHL", "POL", "PRT", "QAT",
	"ROU", "RUS", "RWA", "KNA", "LCA", "VCT", "STP", "SAU", "SEN", "SRB",
	"SYC", "SLE", "SGP", "SVK", "SVN", "SLB", "ZAF", "ESP", "LKA", "SUR",
	"SWE", "CHE", "TWN", "TJK", "TZA", "THA", "TON", "TTO", "TUN", "TUR",
	"TKM", "TCA", "UGA", "UKR", "ARE", "GBR", "USA", "URY", "UZB", "VUT",
	"VEN", "VNM", "YEM", "ZMB", "ZWE",
}

var currencies = map[string]string{
	"AUS": "AUD", "BRA": "BRL", "CAN": "CAD", "CHE": "CHF", "CHN": "CNY",
	"DNK": "DKK", "GBR": "GBP", "HKG": "HKD", "IDN": "IDR", "IND": "INR",
	"ISR": "ILS", "JPN": "JPY", "KOR": "KRW", "MEX": "MXN", "NOR": "NOK",
	"NZL": "NZD", "POL": "PLN", "SAU": "SAR", "SGP": "SGD", "SWE": "SEK",
	"THA": "THB", "TUR": "TRY", "TWN": "TWD", "ZAF": "ZAR", "ARE": "AED",
	"AUT": "EUR", "BEL": "EUR", "CYP": "EUR", "DEU": "EUR", "ESP": "EUR",
	"EST": "EUR", "FIN": "EUR", "FRA": "EUR", "GRC": "EUR", "HRV": "EUR",
	"IRL": "EUR", "ITA": "EUR", "LTU": "EUR", "LUX": "EUR", "LVA": "EUR",
	"MLT": "EUR", "NLD": "EUR", "PRT": "EUR", "SVK": "EUR", "SVN": "EUR",
}

// TerritoryCodes returns the simulated territory codes in listing order.
func TerritoryCodes() []string {
	return append([]string(nil), territoryCodes...)
}

// SubscriptionFixture seeds one subscription.
type SubscriptionFixture struct {
	ID        string
	ProductID string
	Name      string
	GroupID   string
	Period    appstore.Period
}

// Fixture describes the initial remote state.
type Fixture struct {
	AppID    string
	BundleID string
	AppName  string
	Groups   []appstore.Group

	Subscriptions []SubscriptionFixture

	// Tiers is the number of price tiers per territory. The reference tier
	// n costs n-0.01 in USA.
	Tiers int

	// Unequalized territories never appear in equalization results.
	Unequalized []string
}

// DefaultFixture is one app with a group of two subscriptions, both without
// a period.
func DefaultFixture() Fixture {
	return Fixture{
		AppID:    "1234567890",
		BundleID: "com.example.app",
		AppName:  "Example",
		Groups:   []appstore.Group{{ID: "group-1", ReferenceName: "Premium"}},
		Subscriptions: []SubscriptionFixture{
			{ID: "sub-monthly", ProductID: "com.example.premium.monthly", Name: "Premium Monthly", GroupID: "group-1"},
			{ID: "sub-yearly", ProductID: "com.example.premium.yearly", Name: "Premium Yearly", GroupID: "group-1"},
		},
		Tiers: 60,
	}
}

func (f Fixture) withDefaults() Fixture {
	def := DefaultFixture()
	if f.AppID == "" {
		f.AppID = def.AppID
	}
	if f.BundleID == "" {
		f.BundleID = def.BundleID
	}
	if f.AppName == "" {
		f.AppName = def.AppName
	}
	if len(f.Groups) == 0 {
		f.Groups = def.Groups
	}
	if len(f.Subscriptions) == 0 {
		f.Subscriptions = def.Subscriptions
	}
	if f.Tiers <= 0 {
		f.Tiers = def.Tiers
	}
	return f
}

// PricePointID returns the id of the tier price point in territory.
func PricePointID(territory string, tier int) string {
	return fmt.Sprintf("%s.%03d", territory, tier)
}

// ReferencePrice returns the USA customer price of tier.
func ReferencePrice(tier int) decimal.Decimal {
	return decimal.New(int64(tier*100-1), -2)
}

// tierPrice derives the local customer price from the reference price with
// a fixed per-territory factor between 0.6 and 1.4.
func tierPrice(territoryIndex int, territory string, tier int) decimal.Decimal {
	ref := ReferencePrice(tier)
	if territory == "USA" {
		return ref
	}
	factor := decimal.New(int64(6+territoryIndex%9), -1)
	return ref.Mul(factor).Round(2)
}

// proceedsShare is the developer's share of the customer price.
var proceedsShare = decimal.New(85, -2)

func currencyOf(territory string) string {
	if c, ok := currencies[territory]; ok {
		return c
	}
	return "USD"
}

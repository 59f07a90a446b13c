package subscriptions

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"asc-manager/core/appstore"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// TerritorySelector is either every territory or an explicit list.
type TerritorySelector struct {
	All   bool
	Codes []string
}

// AllTerritories selects every territory the remote system lists.
func AllTerritories() TerritorySelector {
	return TerritorySelector{All: true}
}

// Territories selects an explicit list.
func Territories(codes ...string) TerritorySelector {
	return TerritorySelector{Codes: codes}
}

// IsZero reports whether nothing was selected.
func (s TerritorySelector) IsZero() bool {
	return !s.All && len(s.Codes) == 0
}

func (s *TerritorySelector) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if strings.EqualFold(strings.TrimSpace(node.Value), "all") {
			*s = AllTerritories()
			return nil
		}
		return fmt.Errorf("line %d: territories must be \"all\" or a list of codes", node.Line)
	case yaml.SequenceNode:
		var codes []string
		if err := node.Decode(&codes); err != nil {
			return err
		}
		for i, code := range codes {
			codes[i] = strings.ToUpper(strings.TrimSpace(code))
		}
		*s = Territories(codes...)
		return nil
	}
	return fmt.Errorf("line %d: territories must be \"all\" or a list of codes", node.Line)
}

func (s TerritorySelector) MarshalYAML() (any, error) {
	if s.All {
		return "all", nil
	}
	return s.Codes, nil
}

// OfferConfig is one introductory offer in the desired-state file.
type OfferConfig struct {
	Type     string `yaml:"type" validate:"required"`
	Duration string `yaml:"duration" validate:"required"`
	// Periods is the number of offer periods; zero means one.
	Periods     int               `yaml:"periods,omitempty" validate:"gte=0,lte=12"`
	Price       *decimal.Decimal  `yaml:"price_usd,omitempty"`
	Territories TerritorySelector `yaml:"territories,omitempty"`
	StartDate   string            `yaml:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate     string            `yaml:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// SubscriptionConfig is one subscription in the desired-state file.
type SubscriptionConfig struct {
	ProductID string `yaml:"product_id" validate:"required"`
	Name      string `yaml:"name,omitempty"`
	Period    string `yaml:"period,omitempty"`
	// Price is the canonical price in the reference territory.
	Price       *decimal.Decimal  `yaml:"price_usd,omitempty"`
	Territories TerritorySelector `yaml:"territories,omitempty"`
	// Equalize prices every selected territory; otherwise only the reference
	// territory is priced.
	Equalize *bool         `yaml:"equalize,omitempty"`
	Offers   []OfferConfig `yaml:"offers,omitempty" validate:"dive"`
}

// Desired is the desired-state file.
type Desired struct {
	AppBundleID   string               `yaml:"app_bundle_id" validate:"required"`
	DryRun        bool                 `yaml:"dry_run,omitempty"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions" validate:"required,min=1,dive"`
}

// Offer is a validated offer of a Record.
type Offer struct {
	Mode        appstore.OfferMode
	Duration    appstore.Duration
	Periods     int
	Price       *decimal.Decimal
	Territories TerritorySelector
	StartDate   string
	EndDate     string
}

// Record is one validated desired-state record.
type Record struct {
	ProductID string
	// Period is empty when the record does not manage it.
	Period      appstore.Period
	Price       *decimal.Decimal
	Territories TerritorySelector
	Equalize    bool
	Offers      []Offer
}

// LoadFile reads and validates a desired-state file.
func LoadFile(path string) (*Desired, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read desired state: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a desired-state document. Unknown keys are
// rejected.
func Parse(data []byte) (*Desired, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var d Desired
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("parse desired state: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Validate runs the structural checks and the rules that need no remote
// state: known enums, offer durations that suit a declared period, a price
// for paid offers and ordered date ranges.
func (d *Desired) Validate() error {
	if err := validator.New().Struct(d); err != nil {
		return fmt.Errorf("invalid desired state: %w", err)
	}

	var errs []error
	seen := make(map[string]bool, len(d.Subscriptions))
	for i, sub := range d.Subscriptions {
		if seen[sub.ProductID] {
			errs = append(errs, fmt.Errorf("subscriptions[%d]: duplicate product_id %s", i, sub.ProductID))
		}
		seen[sub.ProductID] = true

		if _, err := sub.record(); err != nil {
			errs = append(errs, fmt.Errorf("subscriptions[%d] (%s): %w", i, sub.ProductID, err))
		}
	}
	return errors.Join(errs...)
}

// Records converts the file into validated records.
func (d *Desired) Records() ([]Record, error) {
	records := make([]Record, 0, len(d.Subscriptions))
	for i, sub := range d.Subscriptions {
		rec, err := sub.record()
		if err != nil {
			return nil, fmt.Errorf("subscriptions[%d] (%s): %w", i, sub.ProductID, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func checkCodes(sel TerritorySelector) error {
	for _, code := range sel.Codes {
		if len(code) != 3 || strings.ToUpper(code) != code {
			return fmt.Errorf("invalid territory code %q", code)
		}
	}
	return nil
}

func (c SubscriptionConfig) record() (Record, error) {
	rec := Record{
		ProductID:   c.ProductID,
		Price:       c.Price,
		Territories: c.Territories,
		Equalize:    c.Equalize == nil || *c.Equalize,
	}
	if rec.Territories.IsZero() {
		rec.Territories = AllTerritories()
	}
	if err := checkCodes(rec.Territories); err != nil {
		return Record{}, err
	}

	if c.Period != "" {
		period, err := appstore.ParsePeriod(c.Period)
		if err != nil {
			return Record{}, err
		}
		rec.Period = period
	}
	if c.Price != nil && !c.Price.IsPositive() {
		return Record{}, fmt.Errorf("price_usd must be positive")
	}

	for j, oc := range c.Offers {
		offer, err := oc.offer()
		if err != nil {
			return Record{}, fmt.Errorf("offers[%d]: %w", j, err)
		}
		if rec.Period != "" && !appstore.Compatible(rec.Period, offer.Duration) {
			return Record{}, fmt.Errorf("offers[%d]: duration %s is not allowed for period %s (allowed: %v)",
				j, offer.Duration, rec.Period, appstore.AllowedDurations(rec.Period))
		}
		rec.Offers = append(rec.Offers, offer)
	}
	return rec, nil
}

func (c OfferConfig) offer() (Offer, error) {
	mode, err := appstore.ParseOfferMode(c.Type)
	if err != nil {
		return Offer{}, err
	}
	duration, err := appstore.ParseDuration(c.Duration)
	if err != nil {
		return Offer{}, err
	}
	if err := checkCodes(c.Territories); err != nil {
		return Offer{}, err
	}

	offer := Offer{
		Mode:        mode,
		Duration:    duration,
		Periods:     max(c.Periods, 1),
		Price:       c.Price,
		Territories: c.Territories,
		StartDate:   c.StartDate,
		EndDate:     c.EndDate,
	}
	switch {
	case mode.RequiresPricePoint() && c.Price == nil:
		return Offer{}, fmt.Errorf("%s offers need price_usd", strings.ToLower(string(mode)))
	case !mode.RequiresPricePoint() && c.Price != nil:
		return Offer{}, fmt.Errorf("free trials take no price_usd")
	case c.StartDate != "" && c.EndDate != "" && c.EndDate < c.StartDate:
		return Offer{}, fmt.Errorf("end_date %s is before start_date %s", c.EndDate, c.StartDate)
	}
	return offer, nil
}

// territoriesOf returns the offer's selection, falling back to the record's.
func (r Record) territoriesOf(o Offer) TerritorySelector {
	if o.Territories.IsZero() {
		return r.Territories
	}
	return o.Territories
}

// exampleConfig is written by the init command.
const exampleConfig = `# Desired state for App Store subscriptions.
app_bundle_id: com.example.app
dry_run: true

subscriptions:
  - product_id: com.example.premium.monthly
    name: Premium Monthly
    period: 1m
    price_usd: 9.99
    territories: all
    offers:
      - type: free-trial
        duration: 1w
        territories: [USA, GBR]

  - product_id: com.example.premium.yearly
    name: Premium Yearly
    period: 1y
    price_usd: 79.99
    territories: [USA, GBR, DEU, FRA, JPN]
    offers:
      - type: pay-up-front
        duration: 1m
        price_usd: 0.99
        start_date: "2026-01-01"
        end_date: "2026-03-31"
`

// ExampleConfig returns a commented desired-state file.
func ExampleConfig() []byte {
	return []byte(exampleConfig)
}

// productIDs lists the records' product identifiers in order.
func productIDs(records []Record) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		if !slices.Contains(ids, r.ProductID) {
			ids = append(ids, r.ProductID)
		}
	}
	return ids
}

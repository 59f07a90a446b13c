package pricing

import "fmt"

// Unresolved territory policies.
const (
	// PolicySkip reports unresolved territories as skipped and continues.
	PolicySkip = "skip"
	// PolicyFail fails the price write of every unresolved territory.
	PolicyFail = "fail"
)

// Config holds configuration for price-point resolution.
type Config struct {
	// ReferenceTerritory is where canonical prices are expressed.
	ReferenceTerritory string `mapstructure:"reference_territory" default:"USA"`
	// UnresolvedPolicy is skip or fail.
	UnresolvedPolicy string `mapstructure:"unresolved_policy" default:"skip"`
	// PageSize is the page size used for remote collections.
	PageSize int `mapstructure:"page_size" default:"200"`
}

// Validate checks the policy name.
func (c Config) Validate() error {
	switch c.UnresolvedPolicy {
	case "", PolicySkip, PolicyFail:
		return nil
	}
	return fmt.Errorf("invalid unresolved_policy %q (use %s or %s)", c.UnresolvedPolicy, PolicySkip, PolicyFail)
}

// FailUnresolved reports whether unresolved territories are failures.
func (c Config) FailUnresolved() bool {
	return c.UnresolvedPolicy == PolicyFail
}

// Package config loads application settings.
//
// Values come from environment variables, optionally seeded from a .env
// file, with defaults taken from the `default` struct tags of each partial
// configuration. Nested keys map to variables by replacing dots with
// underscores: api.token is API_TOKEN, rate.budget is RATE_BUDGET.
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Rate.Budget)
package config

package history

// Config holds configuration for keeping run reports.
type Config struct {
	// Enabled uploads every final report to object storage.
	Enabled bool `mapstructure:"enabled" default:"false"`
	// Prefix is prepended to report object names.
	Prefix string `mapstructure:"prefix" default:"reports/"`
	// RecordRuns stores a summary row per run in the database.
	RecordRuns bool `mapstructure:"record_runs" default:"false"`
	// Keep is the number of archived reports kept by prune; zero keeps all.
	Keep int `mapstructure:"keep" default:"0"`
}

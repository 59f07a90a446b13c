package metrics

// Config holds configuration for run metrics.
type Config struct {
	// Textfile is where metrics are written after each run, in the Prometheus
	// text format. Empty disables the export.
	Textfile string `mapstructure:"textfile" default:""`
}

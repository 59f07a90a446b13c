package reconcile

// Config holds configuration for plan execution.
type Config struct {
	// Workers is the size of the write worker pool.
	Workers int `mapstructure:"workers" default:"8"`
}

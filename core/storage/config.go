package storage

// Config holds configuration for the object store that keeps run reports.
type Config struct {
	// Endpoint is the host and port of the S3 compatible service.
	Endpoint  string `mapstructure:"endpoint" default:"localhost:9000"`
	AccessKey string `mapstructure:"access_key" default:"minioadmin"`
	SecretKey string `mapstructure:"secret_key" default:"minioadmin"`
	UseSSL    bool   `mapstructure:"use_ssl" default:"false"`
	// Bucket receives the report archive.
	Bucket string `mapstructure:"bucket" default:"asc-reports"`
	Region string `mapstructure:"region" default:""`
	// TimeoutSeconds bounds connection setup and the wait for a response.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30"`
}

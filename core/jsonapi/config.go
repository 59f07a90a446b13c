package jsonapi

// Config holds configuration for the remote JSON:API endpoint.
type Config struct {
	// BaseURL is the API root all relative references resolve against.
	BaseURL string `mapstructure:"base_url" default:"https://api.appstoreconnect.apple.com/v1/"`
	// Token is a pre-minted bearer token.
	Token string `mapstructure:"token" default:""`
	// TimeoutSeconds is the per-request timeout in seconds.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30"`
	// UserAgent is sent with every request.
	UserAgent string `mapstructure:"user_agent" default:"asc-manager"`
}

package config

import (
	"reflect"
	"strings"

	"asc-manager/core/database"
	"asc-manager/core/jsonapi"
	"asc-manager/core/logger"
	"asc-manager/core/metrics"
	"asc-manager/core/ratelimit"
	"asc-manager/core/reconcile"
	"asc-manager/core/server"
	"asc-manager/core/storage"
	"asc-manager/feature/history"
	"asc-manager/feature/pricing"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application, one partial
// configuration per package.
type Config struct {
	// API is the remote App Store Connect endpoint and token.
	API jsonapi.Config `mapstructure:"api"`
	// Rate is the request budget and retry policy.
	Rate ratelimit.Config `mapstructure:"rate"`
	// Reconcile sizes the write worker pool.
	Reconcile reconcile.Config `mapstructure:"reconcile"`
	// Pricing controls price-point resolution.
	Pricing pricing.Config `mapstructure:"pricing"`
	// Server is the sandbox HTTP server.
	Server server.Config `mapstructure:"server"`
	Log    logger.Config `mapstructure:"log"`
	// Metrics controls the run metrics export.
	Metrics metrics.Config `mapstructure:"metrics"`
	// Storage is the object store for the report archive.
	Storage storage.Config `mapstructure:"storage"`
	// Database is the MySQL connection for run history.
	Database database.Config `mapstructure:"database"`
	History  history.Config  `mapstructure:"history"`
}

// LoadConfig loads configuration from environment variables and the .env
// file in path.
func LoadConfig(path string) (*Config, error) {
	envPath := ".env"
	if path != "." && path != "" {
		envPath = path + "/.env"
	}
	// A missing .env is normal outside development.
	_ = godotenv.Overload(envPath)

	v := viper.New()
	bindValues(v, Config{}, "")

	// API_TOKEN -> api.token
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// bindValues registers a default for every mapstructure key from the
// `default` tag. Registering empty defaults too makes AutomaticEnv see the key.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := range t.NumField() {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}
		v.SetDefault(key, field.Tag.Get("default"))
	}
}

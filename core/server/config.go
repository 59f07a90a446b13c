package server

import (
	"net"
	"strings"
)

// Config holds configuration for the sandbox HTTP server.
type Config struct {
	// Port is the port the server listens on.
	Port string `mapstructure:"port" default:"8080"`
	// ApiKey, when set, must be presented as a bearer token or X-API-Key.
	ApiKey string `mapstructure:"api_key" default:""`
}

// Addr returns the listen address. A port given as host:port is used as is.
func (c Config) Addr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.Contains(port, ":") {
		return port
	}
	return net.JoinHostPort("", port)
}

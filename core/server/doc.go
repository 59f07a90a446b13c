// Package server holds the HTTP server configuration used by the sandbox
// command.
package server

// Package server holds the management HTTP server configuration.
//
// The main application entry point handles the server startup; this package
// only defines the configuration structure embedded by core/config.
package server

// Package app provides the public API surface for embedding bloglytics.
package app

import (
	"github.com/karloscodes/cartridge"

	"bloglytics/internal"
	"bloglytics/internal/config"
	"bloglytics/internal/database"
)

// Re-export core types
type (
	Application = internal.Application
	Config      = config.Config
	DBManager   = database.DBManager
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	return config.GetConfig()
}

// NewApp creates a new application with default routes
func NewApp() (*Application, error) {
	return internal.NewApp()
}

// NewAppWithRoutes creates a new application with custom route mounting
func NewAppWithRoutes(cfg *Config, routeMount func(*cartridge.Server)) (*Application, error) {
	return internal.NewAppWithRoutes(cfg, routeMount)
}

// MountAppRoutes mounts the bloglytics routes on an existing server
func MountAppRoutes(srv *cartridge.Server) {
	internal.MountAppRoutes(srv)
}

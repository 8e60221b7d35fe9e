// Package internal wires configuration, storage, background jobs and routes
// into a runnable application.
package internal

import (
	"context"
	"errors"
	"fmt"

	"github.com/karloscodes/cartridge"

	"trackly/internal/config"
	"trackly/internal/database"
	"trackly/internal/jobs"
	"trackly/internal/services"
)

// Application wraps cartridge.Application with trackly-specific components
type Application struct {
	*cartridge.Application
	Config    *config.Config
	DBManager *database.DBManager // exposes MigrateDatabase
	Scheduler *jobs.Scheduler
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	return NewAppWithConfig(config.GetConfig())
}

// NewAppWithConfig creates a new application with the provided config
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	logger := cartridge.NewLogger(cfg, nil)

	services.RegisterEventNames(cfg)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	scheduler := jobs.NewScheduler(dbManager, logger, cfg)

	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:            cfg,
		Logger:            logger,
		DBManager:         dbManager,
		RouteMountFunc:    MountAppRoutes,
		BackgroundWorkers: []cartridge.BackgroundWorker{scheduler},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application: app,
		Config:      cfg,
		DBManager:   dbManager,
		Scheduler:   scheduler,
	}, nil
}

// Shutdown stops the server and background jobs, then releases the shared
// GeoLite2 reader and Redis client.
func (a *Application) Shutdown(ctx context.Context) error {
	return errors.Join(a.Application.Shutdown(ctx), services.Close())
}

package main

import (
	"context"
	"log/slog"

	"github.com/FACorreiaa/analytics-portal/internal/domain/analytics"
	analyticshandler "github.com/FACorreiaa/analytics-portal/internal/domain/analytics/handler"
	"github.com/FACorreiaa/analytics-portal/internal/domain/analytics/loader"
	"github.com/FACorreiaa/analytics-portal/internal/domain/analytics/store"
	contractshandler "github.com/FACorreiaa/analytics-portal/internal/domain/contracts/handler"
	"github.com/FACorreiaa/analytics-portal/internal/domain/contracts/remote"
	contractsservice "github.com/FACorreiaa/analytics-portal/internal/domain/contracts/service"
	"github.com/FACorreiaa/analytics-portal/pkg/config"
	"github.com/FACorreiaa/analytics-portal/pkg/cron"
	"github.com/FACorreiaa/analytics-portal/pkg/storage"
)

// Dependencies holds all application dependencies.
type Dependencies struct {
	Config *config.Config
	Logger *slog.Logger

	// Engine
	Store            *store.Store
	ContractsService *contractsservice.Service
	Scheduler        *cron.Scheduler

	// Handlers
	AnalyticsHandler *analyticshandler.Handler
	ContractsHandler *contractshandler.Handler
}

// InitDependencies initializes all application dependencies.
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	deps.Store = store.NewStore()

	snapshots := storage.NewSnapshotStore(".", "dashboard_data.json")

	var fetcher contractsservice.WorkbookFetcher
	if cfg.Drive.Enabled() {
		fetcher = remote.NewClient(cfg.Drive.FileID, "")
	}

	load := func(filename string, raw []byte) (*analytics.Table, []analytics.SchemaEntry, error) {
		result, err := loader.Load(filename, raw)
		if err != nil {
			return nil, nil, err
		}
		return result.Table, result.Schema, nil
	}

	deps.ContractsService = contractsservice.New(deps.Store, load, snapshots, fetcher, logger)

	if cfg.Drive.Enabled() {
		deps.Scheduler = cron.NewScheduler(refreshAdapter{deps.ContractsService}, logger)
	}

	deps.AnalyticsHandler = analyticshandler.New(deps.Store, logger)
	deps.ContractsHandler = contractshandler.New(deps.ContractsService, cfg.Drive.SyncToken, logger)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// refreshAdapter narrows the contracts service to the scheduler's
// Refresher contract.
type refreshAdapter struct {
	svc *contractsservice.Service
}

func (a refreshAdapter) RefreshRemote(ctx context.Context) error {
	_, err := a.svc.RefreshRemote(ctx)
	return err
}

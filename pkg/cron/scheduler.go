// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Refresher re-downloads the primary dashboard workbook; satisfied by an
// adapter in cmd/api that wraps the contracts service's RefreshRemote.
type Refresher interface {
	RefreshRemote(ctx context.Context) error
}

// Scheduler manages the background workbook-refresh job.
type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	logger    *slog.Logger
}

// NewScheduler creates a job scheduler around refresher.
func NewScheduler(refresher Refresher, logger *slog.Logger) *Scheduler {
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))
	return &Scheduler{
		cron:      c,
		refresher: refresher,
		logger:    logger,
	}
}

// Start begins scheduled jobs. The workbook refresh runs daily at 5:00 AM,
// before the workday starts.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc("0 5 * * *", s.refreshWorkbook)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow triggers the workbook refresh immediately, used for the boot-time
// sync.
func (s *Scheduler) RunNow() {
	go s.refreshWorkbook()
}

func (s *Scheduler) refreshWorkbook() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	s.logger.Info("starting scheduled workbook refresh")
	if err := s.refresher.RefreshRemote(ctx); err != nil {
		s.logger.Error("scheduled workbook refresh failed", slog.Any("error", err))
		return
	}
	s.logger.Info("scheduled workbook refresh completed")
}

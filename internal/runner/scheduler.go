package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/alexandre-riera/somafi-ingest/internal/domain"
)

// Maintainer is the slice of the queue the scheduler's housekeeping passes
// drive.
type Maintainer interface {
	ResetStuck(ctx context.Context, thresholdMinutes int) (int64, error)
	Purge(ctx context.Context, status string, retentionDays int) (int64, error)
}

// SchedulerConfig holds the periodic intervals and retention knobs.
type SchedulerConfig struct {
	Runner                *Runner
	Maintainer            Maintainer
	Logger                *slog.Logger
	DrainInterval         time.Duration
	MaintenanceInterval   time.Duration
	StuckThresholdMinutes int
	DoneRetentionDays     int
	FailedRetentionDays   int
}

// Scheduler turns the runner's batch passes into cron-like periodic work:
// drain both job types every DrainInterval, recover stuck jobs and purge
// expired terminal jobs every MaintenanceInterval. Each tick is a short-lived
// pass; there is no always-on event loop around individual jobs.
type Scheduler struct {
	cfg SchedulerConfig
}

// NewScheduler creates a Scheduler, filling in interval defaults.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = time.Minute
	}
	if cfg.MaintenanceInterval <= 0 {
		cfg.MaintenanceInterval = time.Hour
	}
	return &Scheduler{cfg: cfg}
}

// Run blocks until ctx is canceled, executing periodic passes.
func (s *Scheduler) Run(ctx context.Context) {
	drainTicker := time.NewTicker(s.cfg.DrainInterval)
	defer drainTicker.Stop()

	maintenanceTicker := time.NewTicker(s.cfg.MaintenanceInterval)
	defer maintenanceTicker.Stop()

	s.cfg.Logger.Info("Scheduler started",
		slog.Duration("drain_interval", s.cfg.DrainInterval),
		slog.Duration("maintenance_interval", s.cfg.MaintenanceInterval),
	)

	for {
		select {
		case <-ctx.Done():
			s.cfg.Logger.Info("Scheduler stopped")
			return

		case <-drainTicker.C:
			s.drainPass(ctx)

		case <-maintenanceTicker.C:
			s.maintenancePass(ctx)
		}
	}
}

func (s *Scheduler) drainPass(ctx context.Context) {
	for _, jobType := range domain.JobTypes() {
		if _, err := s.cfg.Runner.Drain(ctx, jobType, ""); err != nil {
			s.cfg.Logger.Error("Drain pass failed",
				slog.String("job_type", jobType),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *Scheduler) maintenancePass(ctx context.Context) {
	if _, err := s.cfg.Maintainer.ResetStuck(ctx, s.cfg.StuckThresholdMinutes); err != nil {
		s.cfg.Logger.Error("Stuck job reset failed",
			slog.String("error", err.Error()),
		)
	}

	if _, err := s.cfg.Maintainer.Purge(ctx, domain.JobStatusDone, s.cfg.DoneRetentionDays); err != nil {
		s.cfg.Logger.Error("Purge of done jobs failed",
			slog.String("error", err.Error()),
		)
	}

	if _, err := s.cfg.Maintainer.Purge(ctx, domain.JobStatusFailed, s.cfg.FailedRetentionDays); err != nil {
		s.cfg.Logger.Error("Purge of failed jobs failed",
			slog.String("error", err.Error()),
		)
	}
}

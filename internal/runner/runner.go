// Package runner drains pending ingest jobs in short-lived batch passes:
// claim, mark processing, fetch the media from the forms platform, persist
// the artifact, mark done or failed. One fetch failure never blocks the rest
// of the batch.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alexandre-riera/somafi-ingest/internal/domain"
)

// MediaFetcher retrieves one artifact from the upstream forms platform.
// mediaName is empty for pdf jobs, which fetch the data's PDF export.
type MediaFetcher interface {
	Fetch(ctx context.Context, formID, dataID int, mediaName string) ([]byte, error)
}

// ArtifactSink persists fetched bytes and returns a storage reference.
type ArtifactSink interface {
	Store(ctx context.Context, job *domain.Job, data []byte) (string, error)
}

// JobStore is the slice of the queue the runner drives.
type JobStore interface {
	ClaimBatch(ctx context.Context, jobType, agencyCode string, limit int) ([]domain.Job, error)
	MarkProcessing(ctx context.Context, jobID int64) error
	MarkDone(ctx context.Context, jobID int64) error
	MarkFailed(ctx context.Context, jobID int64, reason string) error
}

// Config holds runner configuration.
type Config struct {
	Jobs      JobStore
	Fetcher   MediaFetcher
	Sink      ArtifactSink
	Logger    *slog.Logger
	BatchSize int
}

// Runner processes claimed jobs one batch at a time.
type Runner struct {
	jobs      JobStore
	fetcher   MediaFetcher
	sink      ArtifactSink
	logger    *slog.Logger
	batchSize int
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Claimed int
	Done    int
	Failed  int
	Skipped int
}

// New creates a Runner.
func New(cfg *Config) *Runner {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 25
	}

	return &Runner{
		jobs:      cfg.Jobs,
		fetcher:   cfg.Fetcher,
		sink:      cfg.Sink,
		logger:    cfg.Logger,
		batchSize: batchSize,
	}
}

// Drain claims one batch of pending jobs of jobType (optionally scoped to one
// agency) and processes them independently. A job whose claim is lost to a
// concurrent runner is skipped; a job whose fetch or persist fails is marked
// failed with the error as reason and the pass continues. Only claiming
// itself can fail the whole pass.
func (r *Runner) Drain(ctx context.Context, jobType, agencyCode string) (DrainResult, error) {
	jobs, err := r.jobs.ClaimBatch(ctx, jobType, agencyCode, r.batchSize)
	if err != nil {
		return DrainResult{}, fmt.Errorf("failed to claim batch: %w", err)
	}

	result := DrainResult{Claimed: len(jobs)}
	if len(jobs) == 0 {
		return result, nil
	}

	r.logger.Info("Draining job batch",
		slog.String("job_type", jobType),
		slog.String("agency", agencyCode),
		slog.Int("claimed", len(jobs)),
	)

	for i := range jobs {
		job := &jobs[i]

		if err := r.jobs.MarkProcessing(ctx, job.ID); err != nil {
			if errors.Is(err, domain.ErrJobConflict) {
				// Another runner won the claim.
				r.logger.Warn("Job claim lost, skipping",
					slog.Int64("job_id", job.ID),
				)
				result.Skipped++
				continue
			}
			return result, fmt.Errorf("failed to mark job %d processing: %w", job.ID, err)
		}

		if err := r.processJob(ctx, job); err != nil {
			result.Failed++
			continue
		}
		result.Done++
	}

	r.logger.Info("Drain pass complete",
		slog.String("job_type", jobType),
		slog.Int("done", result.Done),
		slog.Int("failed", result.Failed),
		slog.Int("skipped", result.Skipped),
	)

	return result, nil
}

// processJob fetches and persists one job's artifact, then records the
// terminal status. Failures are terminal: re-running a permanently missing
// media item forever is worse than surfacing it to an operator.
func (r *Runner) processJob(ctx context.Context, job *domain.Job) error {
	mediaName := ""
	if job.MediaName != nil {
		mediaName = *job.MediaName
	}

	data, err := r.fetcher.Fetch(ctx, job.FormID, job.DataID, mediaName)
	if err != nil {
		r.logger.Error("Media fetch failed",
			slog.Int64("job_id", job.ID),
			slog.String("job_type", job.JobType),
			slog.Int("form_id", job.FormID),
			slog.Int("data_id", job.DataID),
			slog.String("error", err.Error()),
		)
		r.fail(ctx, job.ID, err.Error())
		return err
	}

	ref, err := r.sink.Store(ctx, job, data)
	if err != nil {
		r.logger.Error("Artifact persist failed",
			slog.Int64("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		r.fail(ctx, job.ID, fmt.Sprintf("artifact persist failed: %s", err))
		return err
	}

	if err := r.jobs.MarkDone(ctx, job.ID); err != nil {
		r.logger.Error("Failed to mark job done",
			slog.Int64("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return err
	}

	r.logger.Info("Job completed",
		slog.Int64("job_id", job.ID),
		slog.String("job_type", job.JobType),
		slog.String("artifact", ref),
		slog.Int("bytes", len(data)),
	)

	return nil
}

func (r *Runner) fail(ctx context.Context, jobID int64, reason string) {
	if err := r.jobs.MarkFailed(ctx, jobID, reason); err != nil {
		r.logger.Error("Failed to mark job failed",
			slog.Int64("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

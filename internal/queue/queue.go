// Package queue implements the ingest job queue: enqueue with origin-key
// deduplication, priority-ordered batch claiming, explicit status transitions,
// stuck-job recovery and terminal-job purge. All jobs live in the shared
// ingest_jobs table; each transition is its own atomic statement guarded by a
// WHERE clause on the expected current status.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alexandre-riera/somafi-ingest/internal/domain"
	"github.com/alexandre-riera/somafi-ingest/internal/tenant"
	"github.com/jmoiron/sqlx"
)

const jobColumns = `id, job_type, agency_code, form_id, data_id, media_name, id_contact,
		status, priority, failure_reason, created_at, started_at, completed_at`

// JobChecker decides whether an equivalent job already exists, keyed on the
// upstream-origin triple. Implemented by dedupe.Index.
type JobChecker interface {
	JobExists(ctx context.Context, jobType string, formID, dataID int, mediaName *string) (bool, error)
}

// Queue provides all storage operations on ingest jobs.
type Queue struct {
	db      *sqlx.DB
	checker JobChecker
	logger  *slog.Logger
}

// New creates a Queue backed by db. checker is consulted on every enqueue.
func New(db *sqlx.DB, checker JobChecker, logger *slog.Logger) *Queue {
	return &Queue{
		db:      db,
		checker: checker,
		logger:  logger,
	}
}

// Enqueue inserts job in pending status. It fails with domain.ErrDuplicateJob
// when a job with the same (job_type, form_id, data_id, media_name) already
// exists in any status, with domain.ErrInvalidAgency for codes outside the
// allow-list, and with domain.ErrMissingMediaName for a photo job without a
// media name. On success the job's ID, Status and CreatedAt are filled in.
func (q *Queue) Enqueue(ctx context.Context, job *domain.Job) error {
	if !domain.ValidJobType(job.JobType) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidJobType, job.JobType)
	}
	if !tenant.IsValid(job.AgencyCode) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidAgency, job.AgencyCode)
	}
	if job.JobType == domain.JobTypePhoto && (job.MediaName == nil || *job.MediaName == "") {
		return fmt.Errorf("%w: form=%d data=%d", domain.ErrMissingMediaName, job.FormID, job.DataID)
	}
	job.AgencyCode = tenant.Normalize(job.AgencyCode)

	exists, err := q.checker.JobExists(ctx, job.JobType, job.FormID, job.DataID, job.MediaName)
	if err != nil {
		return fmt.Errorf("failed to check for duplicate job: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: type=%s form=%d data=%d", domain.ErrDuplicateJob, job.JobType, job.FormID, job.DataID)
	}

	if job.Priority == 0 {
		job.Priority = domain.DefaultJobPriority
	}
	job.Status = domain.JobStatusPending
	job.CreatedAt = time.Now()

	query := `
		INSERT INTO ingest_jobs (
			job_type, agency_code, form_id, data_id, media_name,
			id_contact, status, priority, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	err = q.db.QueryRowContext(
		ctx,
		query,
		job.JobType,
		job.AgencyCode,
		job.FormID,
		job.DataID,
		job.MediaName,
		job.IDContact,
		job.Status,
		job.Priority,
		job.CreatedAt,
	).Scan(&job.ID)

	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	q.logger.Info("Job enqueued",
		slog.Int64("job_id", job.ID),
		slog.String("job_type", job.JobType),
		slog.String("agency", job.AgencyCode),
		slog.Int("form_id", job.FormID),
		slog.Int("data_id", job.DataID),
	)

	return nil
}

// ClaimBatch returns up to limit pending jobs of the given type, most urgent
// first (priority ascending, then created_at ascending). agencyCode narrows
// the claim to one agency when non-empty. ClaimBatch is a plain read: the
// caller must confirm each claim with MarkProcessing, which is where a race
// with a concurrent runner is detected.
func (q *Queue) ClaimBatch(ctx context.Context, jobType, agencyCode string, limit int) ([]domain.Job, error) {
	if !domain.ValidJobType(jobType) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidJobType, jobType)
	}
	if limit <= 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM ingest_jobs
		WHERE status = $1 AND job_type = $2`, jobColumns)
	args := []interface{}{domain.JobStatusPending, jobType}
	argIdx := 3

	if agencyCode != "" {
		if !tenant.IsValid(agencyCode) {
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidAgency, agencyCode)
		}
		query += fmt.Sprintf(" AND agency_code = $%d", argIdx)
		args = append(args, tenant.Normalize(agencyCode))
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY priority ASC, created_at ASC LIMIT $%d", argIdx)
	args = append(args, limit)

	var jobs []domain.Job
	if err := q.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to claim job batch: %w", err)
	}

	return jobs, nil
}

// MarkProcessing transitions a pending job to processing and stamps
// started_at. It fails with domain.ErrJobConflict when the job is no longer
// pending, which is how a lost claim race surfaces.
func (q *Queue) MarkProcessing(ctx context.Context, jobID int64) error {
	query := `
		UPDATE ingest_jobs
		SET status = $1, started_at = NOW()
		WHERE id = $2 AND status = $3
	`

	result, err := q.db.ExecContext(ctx, query, domain.JobStatusProcessing, jobID, domain.JobStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark job processing: %w", err)
	}

	return q.checkTransition(result, jobID, domain.JobStatusProcessing)
}

// MarkDone transitions a processing job to done and stamps completed_at.
func (q *Queue) MarkDone(ctx context.Context, jobID int64) error {
	query := `
		UPDATE ingest_jobs
		SET status = $1, completed_at = NOW()
		WHERE id = $2 AND status = $3
	`

	result, err := q.db.ExecContext(ctx, query, domain.JobStatusDone, jobID, domain.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to mark job done: %w", err)
	}

	return q.checkTransition(result, jobID, domain.JobStatusDone)
}

// MarkFailed transitions a processing job to failed, stamps completed_at and
// records reason for operators. The queue does not retry failed jobs on its
// own; re-enqueueing is an operator decision (see ReEnqueue).
func (q *Queue) MarkFailed(ctx context.Context, jobID int64, reason string) error {
	query := `
		UPDATE ingest_jobs
		SET status = $1, completed_at = NOW(), failure_reason = $2
		WHERE id = $3 AND status = $4
	`

	result, err := q.db.ExecContext(ctx, query, domain.JobStatusFailed, reason, jobID, domain.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	return q.checkTransition(result, jobID, domain.JobStatusFailed)
}

// ResetStuck force-transitions every job stuck in processing for longer than
// thresholdMinutes back to pending, clearing started_at so a later drain picks
// them up again. A threshold <= 0 falls back to the default of 60 minutes.
// Returns the number of recovered jobs.
//
// There is no cap on how many times the same job can be recovered this way; a
// job that keeps exceeding the threshold is retried indefinitely, hence the
// WARN log when anything is reset.
func (q *Queue) ResetStuck(ctx context.Context, thresholdMinutes int) (int64, error) {
	if thresholdMinutes <= 0 {
		thresholdMinutes = domain.DefaultStuckThresholdMinutes
	}

	query := `
		UPDATE ingest_jobs
		SET status = $1, started_at = NULL
		WHERE status = $2 AND started_at < NOW() - ($3 * INTERVAL '1 minute')
	`

	result, err := q.db.ExecContext(ctx, query, domain.JobStatusPending, domain.JobStatusProcessing, thresholdMinutes)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stuck jobs: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if count > 0 {
		q.logger.Warn("Recovered stuck jobs",
			slog.Int64("count", count),
			slog.Int("threshold_minutes", thresholdMinutes),
		)
	}

	return count, nil
}

// Purge hard-deletes terminal jobs of the given status whose completed_at is
// older than retentionDays. A retention <= 0 falls back to the per-status
// default (14 days for done, 30 for failed). Only terminal statuses may be
// purged.
func (q *Queue) Purge(ctx context.Context, status string, retentionDays int) (int64, error) {
	switch status {
	case domain.JobStatusDone:
		if retentionDays <= 0 {
			retentionDays = domain.DefaultDoneRetentionDays
		}
	case domain.JobStatusFailed:
		if retentionDays <= 0 {
			retentionDays = domain.DefaultFailedRetentionDays
		}
	default:
		return 0, fmt.Errorf("cannot purge non-terminal status %q", status)
	}

	query := `
		DELETE FROM ingest_jobs
		WHERE status = $1 AND completed_at < NOW() - ($2 * INTERVAL '1 day')
	`

	result, err := q.db.ExecContext(ctx, query, status, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("failed to purge jobs: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	q.logger.Info("Purged terminal jobs",
		slog.String("status", status),
		slog.Int("retention_days", retentionDays),
		slog.Int64("count", count),
	)

	return count, nil
}

// GetByID returns one job or domain.ErrJobNotFound.
func (q *Queue) GetByID(ctx context.Context, jobID int64) (*domain.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM ingest_jobs WHERE id = $1`, jobColumns)

	var job domain.Job
	if err := q.db.GetContext(ctx, &job, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// ReEnqueue moves a failed job back to pending, clearing its failure reason
// and timestamps. This is the operator retry path for jobs whose fetch failed.
func (q *Queue) ReEnqueue(ctx context.Context, jobID int64) error {
	query := `
		UPDATE ingest_jobs
		SET status = $1, failure_reason = NULL, started_at = NULL, completed_at = NULL
		WHERE id = $2 AND status = $3
	`

	result, err := q.db.ExecContext(ctx, query, domain.JobStatusPending, jobID, domain.JobStatusFailed)
	if err != nil {
		return fmt.Errorf("failed to re-enqueue job: %w", err)
	}

	if err := q.checkTransition(result, jobID, domain.JobStatusPending); err != nil {
		return err
	}

	q.logger.Info("Job re-enqueued",
		slog.Int64("job_id", jobID),
	)

	return nil
}

// checkTransition turns a zero-rows-affected update into ErrJobConflict.
func (q *Queue) checkTransition(result sql.Result, jobID int64, target string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		q.logger.Warn("Job transition rejected",
			slog.Int64("job_id", jobID),
			slog.String("target_status", target),
		)
		return fmt.Errorf("%w: job %d -> %s", domain.ErrJobConflict, jobID, target)
	}

	return nil
}

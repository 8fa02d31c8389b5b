package queue

import (
	"context"
	"fmt"

	"github.com/alexandre-riera/somafi-ingest/internal/domain"
	"github.com/alexandre-riera/somafi-ingest/internal/tenant"
)

// StatusCounts maps a job status to its count. Every known status is present,
// zero-valued when no jobs hold it.
type StatusCounts map[string]int64

type statusCountRow struct {
	Key    string `db:"key"`
	Status string `db:"status"`
	Count  int64  `db:"count"`
}

// StatsByType returns status counts for one job type.
func (q *Queue) StatsByType(ctx context.Context, jobType string) (StatusCounts, error) {
	if !domain.ValidJobType(jobType) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidJobType, jobType)
	}

	query := `
		SELECT job_type AS key, status, COUNT(*) AS count
		FROM ingest_jobs
		WHERE job_type = $1
		GROUP BY job_type, status
	`

	var rows []statusCountRow
	if err := q.db.SelectContext(ctx, &rows, query, jobType); err != nil {
		return nil, fmt.Errorf("failed to get stats for job type %s: %w", jobType, err)
	}

	counts := zeroCounts()
	for _, row := range rows {
		counts[row.Status] = row.Count
	}

	return counts, nil
}

// GlobalStats returns status counts for every job type, keyed by type. Types
// with no jobs at all still appear with explicit zero counts.
func (q *Queue) GlobalStats(ctx context.Context) (map[string]StatusCounts, error) {
	query := `
		SELECT job_type AS key, status, COUNT(*) AS count
		FROM ingest_jobs
		GROUP BY job_type, status
	`

	var rows []statusCountRow
	if err := q.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to get global stats: %w", err)
	}

	stats := make(map[string]StatusCounts, len(domain.JobTypes()))
	for _, jobType := range domain.JobTypes() {
		stats[jobType] = zeroCounts()
	}
	for _, row := range rows {
		if _, ok := stats[row.Key]; !ok {
			stats[row.Key] = zeroCounts()
		}
		stats[row.Key][row.Status] = row.Count
	}

	return stats, nil
}

// StatsByAgency returns status counts per agency code. Every agency in the
// allow-list appears, zero-valued when it has no jobs.
func (q *Queue) StatsByAgency(ctx context.Context) (map[string]StatusCounts, error) {
	query := `
		SELECT agency_code AS key, status, COUNT(*) AS count
		FROM ingest_jobs
		GROUP BY agency_code, status
	`

	var rows []statusCountRow
	if err := q.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to get agency stats: %w", err)
	}

	stats := make(map[string]StatusCounts, len(tenant.Codes()))
	for _, code := range tenant.Codes() {
		stats[code] = zeroCounts()
	}
	for _, row := range rows {
		if _, ok := stats[row.Key]; !ok {
			stats[row.Key] = zeroCounts()
		}
		stats[row.Key][row.Status] = row.Count
	}

	return stats, nil
}

// RecentFailures returns the most recently failed jobs with their reasons,
// newest first, capped at limit.
func (q *Queue) RecentFailures(ctx context.Context, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 20
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM ingest_jobs
		WHERE status = $1
		ORDER BY completed_at DESC
		LIMIT $2`, jobColumns)

	var jobs []domain.Job
	if err := q.db.SelectContext(ctx, &jobs, query, domain.JobStatusFailed, limit); err != nil {
		return nil, fmt.Errorf("failed to list recent failures: %w", err)
	}

	return jobs, nil
}

func zeroCounts() StatusCounts {
	counts := make(StatusCounts, len(domain.JobStatuses()))
	for _, status := range domain.JobStatuses() {
		counts[status] = 0
	}
	return counts
}

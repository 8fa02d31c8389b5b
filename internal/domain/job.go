package domain

import "time"

// Job types
const (
	JobTypePhoto = "photo"
	JobTypePDF   = "pdf"
)

// Job status constants
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusDone       = "done"
	JobStatusFailed     = "failed"
)

// Default priority for jobs enqueued without an explicit one. Lower is more
// urgent.
const DefaultJobPriority = 100

// Purge retention defaults, in days. Failed jobs are kept longer so operators
// can investigate before they disappear.
const (
	DefaultDoneRetentionDays   = 14
	DefaultFailedRetentionDays = 30
)

// DefaultStuckThresholdMinutes is how long a job may sit in processing before
// it is presumed abandoned by a crashed runner.
const DefaultStuckThresholdMinutes = 60

// Job is a unit of asynchronous download/processing work tracked in the
// ingest_jobs table. FormID/DataID (plus MediaName for photo jobs) identify
// the originating Kizeo event and back the idempotency check on enqueue.
type Job struct {
	ID            int64      `db:"id" json:"id"`
	JobType       string     `db:"job_type" json:"job_type"`
	AgencyCode    string     `db:"agency_code" json:"agency_code"`
	FormID        int        `db:"form_id" json:"form_id"`
	DataID        int        `db:"data_id" json:"data_id"`
	MediaName     *string    `db:"media_name" json:"media_name,omitempty"`
	IDContact     int        `db:"id_contact" json:"id_contact"`
	Status        string     `db:"status" json:"status"`
	Priority      int        `db:"priority" json:"priority"`
	FailureReason *string    `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	StartedAt     *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt   *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// IsTerminal reports whether the job reached a terminal status.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusDone || j.Status == JobStatusFailed
}

// ValidJobType reports whether t is a known job type.
func ValidJobType(t string) bool {
	return t == JobTypePhoto || t == JobTypePDF
}

// JobStatuses lists every status a job can hold, in lifecycle order. Stats
// accessors iterate this to emit explicit zero counts.
func JobStatuses() []string {
	return []string{JobStatusPending, JobStatusProcessing, JobStatusDone, JobStatusFailed}
}

// JobTypes lists every known job type.
func JobTypes() []string {
	return []string{JobTypePhoto, JobTypePDF}
}

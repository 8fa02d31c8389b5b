package domain

import "errors"

var (
	// ErrInvalidAgency is returned when an agency code is not in the static
	// allow-list. Always fatal to the calling operation: an unknown code must
	// never reach SQL composition.
	ErrInvalidAgency = errors.New("unknown agency code")

	// ErrDuplicateJob is returned when enqueueing a job whose upstream-origin
	// key already exists in any status.
	ErrDuplicateJob = errors.New("job already enqueued for this form/data/media")

	// ErrJobNotFound is returned when a job cannot be found by id.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobConflict is returned when a status transition finds the job no
	// longer in the expected state, e.g. two runners racing on the same row.
	ErrJobConflict = errors.New("job not in expected status")

	// ErrInvalidJobType is returned for job types other than photo or pdf.
	ErrInvalidJobType = errors.New("invalid job type")

	// ErrMissingMediaName is returned when a photo job is enqueued without a
	// media name. Such a job could only ever fetch the entry's PDF export,
	// masquerading as a photo.
	ErrMissingMediaName = errors.New("photo job requires a media name")

	// ErrFetchFailed wraps upstream media fetch failures (network errors and
	// non-2xx responses from the forms platform).
	ErrFetchFailed = errors.New("media fetch failed")
)

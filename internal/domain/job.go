package domain

import (
	"errors"
	"time"
	"unicode/utf8"
)

// JobStatus represents the current state of a queued generation job.
type JobStatus string

// Possible job status values. The state machine is
// pending -> processing -> {completed | pending (retry) | failed};
// failed jobs return to pending only through an explicit operator action.
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job enqueue sources. Free-form at the store level; these are the values
// the engine itself uses.
const (
	SourceManual         = "manual"
	SourceBulk           = "bulk"
	SourceBulkRegenerate = "bulk-regenerate"
	SourceAuto           = "auto"
	SourceQueueRetry     = "queue-retry"
)

// MaxErrorLength bounds stored failure messages. Longer messages are
// truncated before persistence.
const MaxErrorLength = 500

// Job-specific validation errors
var (
	// ErrJobSubjectInvalid is returned when a job's subject ID is not positive.
	ErrJobSubjectInvalid = errors.New("job subject ID must be positive")

	// ErrJobSourceEmpty is returned when a job is created without a source tag.
	ErrJobSourceEmpty = errors.New("job source cannot be empty")

	// ErrJobStatusInvalid is returned when a job carries an unknown status.
	ErrJobStatusInvalid = errors.New("job status is not a known state")
)

// Job represents one unit of queued alt-text generation work tied to an
// image subject. Rows are created on enqueue and mutated only by the queue
// engine; LockedAt is non-nil exactly while the job is processing.
type Job struct {
	ID          int64      `json:"id"`
	SubjectID   int64      `json:"subject_id"`
	Status      JobStatus  `json:"status"`
	Attempts    int        `json:"attempts"`
	Source      string     `json:"source"`
	LastError   string     `json:"last_error,omitempty"`
	EnqueuedAt  time.Time  `json:"enqueued_at"`
	LockedAt    *time.Time `json:"locked_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Validate checks if the Job has valid data.
// Returns an error if any field fails validation.
func (j *Job) Validate() error {
	if j.SubjectID <= 0 {
		return ErrJobSubjectInvalid
	}

	if j.Source == "" {
		return ErrJobSourceEmpty
	}

	switch j.Status {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
	default:
		return ErrJobStatusInvalid
	}

	return nil
}

// Active reports whether the job still occupies its subject's dedup slot,
// i.e. it is pending or processing.
func (j *Job) Active() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusProcessing
}

// Terminal reports whether the job is in a terminal state.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// TruncateError bounds a failure message to MaxErrorLength bytes so arbitrary
// upstream errors cannot bloat the job table.
func TruncateError(message string) string {
	if len(message) <= MaxErrorLength {
		return message
	}
	cut := MaxErrorLength - len("…")
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut] + "…"
}

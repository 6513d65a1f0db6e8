package store

import (
	"context"
	"time"

	"github.com/beepbeepai/alttext-api/internal/domain"
)

// PendingJobRef is the minimal view of a pending job needed by the
// redundant-job sweep.
type PendingJobRef struct {
	JobID     int64
	SubjectID int64
}

// JobStore defines the persistence primitives for queued generation jobs.
// It carries no queue policy: deduplication windows, attempt caps, and lease
// lengths are the engine's business. The one concurrency guarantee it must
// provide is that Claim is a compare-and-swap on the status column — the
// update applies only if the row is still pending at the moment of the
// write, and the return value reports whether it did.
type JobStore interface {
	// Insert creates a new pending job row and returns it with its
	// store-assigned ID and enqueue timestamp.
	Insert(ctx context.Context, subjectID int64, source string) (*domain.Job, error)

	// FindActive returns the pending or processing job for a subject,
	// or ErrJobNotFound when the subject has no active row.
	FindActive(ctx context.Context, subjectID int64) (*domain.Job, error)

	// Candidates returns up to limit pending jobs ordered oldest-ID first.
	Candidates(ctx context.Context, limit int) ([]*domain.Job, error)

	// Claim attempts the conditional pending->processing transition for one
	// job, setting locked_at to now and incrementing attempts. It returns
	// false (and no error) when another claimer won the race.
	Claim(ctx context.Context, jobID int64, now time.Time) (bool, error)

	// MarkComplete transitions a job to completed, clearing the lock and
	// last error and stamping completed_at.
	MarkComplete(ctx context.Context, jobID int64) error

	// MarkRetry transitions a job back to pending for another claim cycle,
	// clearing the lock and recording the failure message.
	MarkRetry(ctx context.Context, jobID int64, message string) error

	// MarkFailed transitions a job to failed, clearing the lock and
	// recording the failure message.
	MarkFailed(ctx context.Context, jobID int64, message string) error

	// ResetStale forces processing rows locked before the cutoff back to
	// pending and returns how many rows it recovered.
	ResetStale(ctx context.Context, lockedBefore time.Time) (int64, error)

	// RetryAllFailed transitions every failed row back to pending,
	// clearing locks and errors. Returns the number of rows affected.
	RetryAllFailed(ctx context.Context) (int64, error)

	// DeleteCompletedBefore deletes completed rows whose completed_at is
	// older than the cutoff. A zero cutoff deletes all completed rows.
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteForSubjects hard-deletes every row (any status) for the given
	// subjects. Used by regeneration sweeps to discard history.
	DeleteForSubjects(ctx context.Context, subjectIDs []int64) (int64, error)

	// CountByStatus returns row counts grouped by status.
	CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error)

	// CountCompletedSince counts rows completed after the given time.
	CountCompletedSince(ctx context.Context, since time.Time) (int, error)

	// PendingSubjects lists pending jobs with their subjects, for the
	// redundant-job sweep.
	PendingSubjects(ctx context.Context) ([]PendingJobRef, error)

	// Recent returns the newest rows of any status, newest first.
	Recent(ctx context.Context, limit int) ([]*domain.Job, error)

	// RecentFailures returns the newest failed rows, newest first.
	RecentFailures(ctx context.Context, limit int) ([]*domain.Job, error)
}

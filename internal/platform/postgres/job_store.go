package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/beepbeepai/alttext-api/internal/domain"
	"github.com/beepbeepai/alttext-api/internal/platform/logger"
	"github.com/beepbeepai/alttext-api/internal/store"
)

// jobColumns is the column list every job SELECT uses, in scanJob order.
const jobColumns = "id, subject_id, status, attempts, source, last_error, enqueued_at, locked_at, completed_at"

// JobStore implements store.JobStore on PostgreSQL. All claim-style
// transitions are single conditional UPDATEs; the row store serializes them,
// which is the entire cross-process locking story.
type JobStore struct {
	db store.DBTX
}

// NewJobStore creates a JobStore on the given connection or transaction.
func NewJobStore(db store.DBTX) *JobStore {
	return &JobStore{db: db}
}

// Insert creates a new pending job row.
func (s *JobStore) Insert(ctx context.Context, subjectID int64, source string) (*domain.Job, error) {
	job := &domain.Job{
		SubjectID:  subjectID,
		Status:     domain.JobStatusPending,
		Source:     source,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO jobs (subject_id, status, source, enqueued_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	err := s.db.QueryRowContext(ctx, query,
		job.SubjectID,
		job.Status,
		job.Source,
		job.EnqueuedAt,
	).Scan(&job.ID)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: subject %d", store.ErrActiveJobExists, subjectID)
		}
		return nil, MapError(err)
	}

	return job, nil
}

// FindActive returns the pending or processing row for a subject.
func (s *JobStore) FindActive(ctx context.Context, subjectID int64) (*domain.Job, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM jobs
		WHERE subject_id = $1 AND status IN ($2, $3)
		LIMIT 1
	`, jobColumns)

	row := s.db.QueryRowContext(ctx, query, subjectID,
		domain.JobStatusPending, domain.JobStatusProcessing)

	job, err := scanJob(row)
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, fmt.Errorf("%w: subject %d", store.ErrJobNotFound, subjectID)
		}
		return nil, MapError(err)
	}
	return job, nil
}

// Candidates returns up to limit pending jobs, oldest ID first. Callers
// oversample relative to their claim target; see the queue engine.
func (s *JobStore) Candidates(ctx context.Context, limit int) ([]*domain.Job, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM jobs
		WHERE status = $1
		ORDER BY id ASC
		LIMIT $2
	`, jobColumns)

	return s.queryJobs(ctx, query, domain.JobStatusPending, limit)
}

// Claim performs the compare-and-swap transition to processing. The WHERE
// clause re-checks status so a row already stolen by a concurrent claimer
// yields zero affected rows instead of a double claim.
func (s *JobStore) Claim(ctx context.Context, jobID int64, now time.Time) (bool, error) {
	query := `
		UPDATE jobs
		SET status = $1, locked_at = $2, attempts = attempts + 1
		WHERE id = $3 AND status = $4
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.JobStatusProcessing,
		now.UTC(),
		jobID,
		domain.JobStatusPending,
	)
	if err != nil {
		return false, MapError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, MapError(err)
	}
	return affected == 1, nil
}

// MarkComplete transitions a job to completed.
func (s *JobStore) MarkComplete(ctx context.Context, jobID int64) error {
	query := `
		UPDATE jobs
		SET status = $1, locked_at = NULL, last_error = NULL, completed_at = $2
		WHERE id = $3
	`
	return s.execOne(ctx, jobID, query, domain.JobStatusCompleted, time.Now().UTC(), jobID)
}

// MarkRetry returns a job to pending with the failure message recorded.
func (s *JobStore) MarkRetry(ctx context.Context, jobID int64, message string) error {
	query := `
		UPDATE jobs
		SET status = $1, locked_at = NULL, last_error = $2
		WHERE id = $3
	`
	return s.execOne(ctx, jobID, query,
		domain.JobStatusPending, domain.TruncateError(message), jobID)
}

// MarkFailed transitions a job to failed with the failure message recorded.
func (s *JobStore) MarkFailed(ctx context.Context, jobID int64, message string) error {
	query := `
		UPDATE jobs
		SET status = $1, locked_at = NULL, last_error = $2
		WHERE id = $3
	`
	return s.execOne(ctx, jobID, query,
		domain.JobStatusFailed, domain.TruncateError(message), jobID)
}

// ResetStale recovers processing rows whose lock predates the cutoff.
func (s *JobStore) ResetStale(ctx context.Context, lockedBefore time.Time) (int64, error) {
	query := `
		UPDATE jobs
		SET status = $1, locked_at = NULL
		WHERE status = $2 AND locked_at IS NOT NULL AND locked_at < $3
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.JobStatusPending,
		domain.JobStatusProcessing,
		lockedBefore.UTC(),
	)
	if err != nil {
		return 0, MapError(err)
	}
	return result.RowsAffected()
}

// RetryAllFailed returns every failed row to pending.
func (s *JobStore) RetryAllFailed(ctx context.Context) (int64, error) {
	query := `
		UPDATE jobs
		SET status = $1, locked_at = NULL, last_error = NULL
		WHERE status = $2
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.JobStatusPending, domain.JobStatusFailed)
	if err != nil {
		return 0, MapError(err)
	}
	return result.RowsAffected()
}

// DeleteCompletedBefore deletes completed rows older than the cutoff; a zero
// cutoff deletes all completed rows.
func (s *JobStore) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var (
		result sql.Result
		err    error
	)
	if cutoff.IsZero() {
		result, err = s.db.ExecContext(ctx,
			`DELETE FROM jobs WHERE status = $1`, domain.JobStatusCompleted)
	} else {
		result, err = s.db.ExecContext(ctx,
			`DELETE FROM jobs WHERE status = $1 AND completed_at IS NOT NULL AND completed_at < $2`,
			domain.JobStatusCompleted, cutoff.UTC())
	}
	if err != nil {
		return 0, MapError(err)
	}
	return result.RowsAffected()
}

// DeleteForSubjects hard-deletes all rows for the given subjects.
func (s *JobStore) DeleteForSubjects(ctx context.Context, subjectIDs []int64) (int64, error) {
	if len(subjectIDs) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(subjectIDs))
	args := make([]any, len(subjectIDs))
	for i, id := range subjectIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf(`DELETE FROM jobs WHERE subject_id IN (%s)`,
		strings.Join(placeholders, ","))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, MapError(err)
	}
	return result.RowsAffected()
}

// CountByStatus returns row counts grouped by status.
func (s *JobStore) CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[domain.JobStatus]int)
	for rows.Next() {
		var status domain.JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, MapError(err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return counts, nil
}

// CountCompletedSince counts rows completed after the given time.
func (s *JobStore) CountCompletedSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM jobs
		WHERE status = $1 AND completed_at IS NOT NULL AND completed_at > $2
	`, domain.JobStatusCompleted, since.UTC()).Scan(&count)
	if err != nil {
		return 0, MapError(err)
	}
	return count, nil
}

// PendingSubjects lists pending jobs with their subjects.
func (s *JobStore) PendingSubjects(ctx context.Context) ([]store.PendingJobRef, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subject_id FROM jobs WHERE status = $1`, domain.JobStatusPending)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var refs []store.PendingJobRef
	for rows.Next() {
		var ref store.PendingJobRef
		if err := rows.Scan(&ref.JobID, &ref.SubjectID); err != nil {
			return nil, MapError(err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return refs, nil
}

// Recent returns the newest rows of any status.
func (s *JobStore) Recent(ctx context.Context, limit int) ([]*domain.Job, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM jobs
		ORDER BY id DESC
		LIMIT $1
	`, jobColumns)

	return s.queryJobs(ctx, query, limit)
}

// RecentFailures returns the newest failed rows.
func (s *JobStore) RecentFailures(ctx context.Context, limit int) ([]*domain.Job, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM jobs
		WHERE status = $1
		ORDER BY id DESC
		LIMIT $2
	`, jobColumns)

	return s.queryJobs(ctx, query, domain.JobStatusFailed, limit)
}

// execOne runs an UPDATE expected to hit one row. A missing row is logged
// and treated as a no-op: the job may have been cleaned up between claim
// and completion, and there is nothing useful to do about it.
func (s *JobStore) execOne(ctx context.Context, jobID int64, query string, args ...any) error {
	log := logger.FromContext(ctx)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return MapError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return MapError(err)
	}
	if affected == 0 {
		log.Warn("job transition touched no rows", "job_id", jobID)
	}
	return nil
}

func (s *JobStore) queryJobs(ctx context.Context, query string, args ...any) ([]*domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, MapError(err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return jobs, nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job         domain.Job
		lastError   sql.NullString
		lockedAt    sql.NullTime
		completedAt sql.NullTime
	)

	err := row.Scan(
		&job.ID,
		&job.SubjectID,
		&job.Status,
		&job.Attempts,
		&job.Source,
		&lastError,
		&job.EnqueuedAt,
		&lockedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.LastError = lastError.String
	if lockedAt.Valid {
		t := lockedAt.Time
		job.LockedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return &job, nil
}

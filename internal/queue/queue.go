package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/beepbeepai/alttext-api/internal/config"
	"github.com/beepbeepai/alttext-api/internal/domain"
	"github.com/beepbeepai/alttext-api/internal/platform/cache"
	"github.com/beepbeepai/alttext-api/internal/store"
)

const (
	// genBucket is the generation-counter bucket all queue cache keys live
	// under. Bumping it orphans cached stats in one write.
	genBucket = "queue"

	// statsSuffix is the cache suffix for the stats snapshot.
	statsSuffix = "stats"

	// statsTTL bounds how stale a served stats snapshot can be even if
	// every invalidation signal is missed.
	statsTTL = cache.ShortTTL

	// cleanupMarkerKey throttles the redundant-job sweep.
	cleanupMarkerKey = "queue_cleanup_ran"

	// cleanupInterval is the minimum spacing between redundant-job sweeps.
	cleanupInterval = time.Hour

	// minLease floors the stale-job lease; a shorter lease would reset
	// jobs that are still legitimately generating.
	minLease = 60 * time.Second

	// minClearAge floors nonzero ClearCompleted ages so a mistyped small
	// value cannot wipe rows the stats endpoint is about to report.
	minClearAge = 5 * time.Minute

	// claimOversample is how many candidates are fetched per claim slot;
	// concurrent drains eat into each other's candidate lists.
	claimOversample = 3

	// recentWindow is the lookback for the completed_recent stat.
	recentWindow = 24 * time.Hour
)

// SubjectChecker reports whether a subject already carries generated text.
// The redundant-job sweep uses it to auto-complete pending jobs whose work
// was done out of band.
type SubjectChecker interface {
	HasAltText(ctx context.Context, subjectID int64) (bool, error)
}

// Stats is the queue snapshot served to operators.
type Stats struct {
	Pending         int  `json:"pending"`
	Processing      int  `json:"processing"`
	Failed          int  `json:"failed"`
	Completed       int  `json:"completed"`
	CompletedRecent int  `json:"completed_recent"`
	HasJobs         bool `json:"has_jobs"`
}

// Queue is the job queue engine. It owns enqueue deduplication, batch
// claiming, state transitions, stale recovery, and the cached stats
// snapshot. It holds no goroutines of its own; the Trigger schedules work.
type Queue struct {
	logger      *slog.Logger
	store       store.JobStore
	generations *cache.Generations
	cache       cache.Cache
	cfg         config.QueueConfig

	// trigger is attached after construction; see AttachTrigger.
	trigger *Trigger

	// subjects is optional; without it the redundant sweep is skipped.
	subjects SubjectChecker

	now func() time.Time
}

// NewQueue creates a queue engine over the given store and cache layers.
func NewQueue(
	logger *slog.Logger,
	js store.JobStore,
	generations *cache.Generations,
	c cache.Cache,
	cfg config.QueueConfig,
) *Queue {
	return &Queue{
		logger:      logger.With("component", "queue"),
		store:       js,
		generations: generations,
		cache:       c,
		cfg:         cfg,
		now:         time.Now,
	}
}

// AttachTrigger wires the trigger armed on enqueue. Attached after
// construction because the trigger's callback is the processor, which in
// turn drains this queue.
func (q *Queue) AttachTrigger(t *Trigger) {
	q.trigger = t
}

// SetSubjectChecker wires the redundant-sweep dependency.
func (q *Queue) SetSubjectChecker(sc SubjectChecker) {
	q.subjects = sc
}

// Enqueue adds a job for a subject unless one is already active. The
// returned bool reports whether a new row was inserted; a dedup hit returns
// the existing job. Either way the trigger is re-armed, so an enqueue against
// a wedged queue still gets processing moving again.
func (q *Queue) Enqueue(ctx context.Context, subjectID int64, source string) (*domain.Job, bool, error) {
	if subjectID <= 0 {
		return nil, false, fmt.Errorf("%w: subject ID must be positive", store.ErrInvalidEntity)
	}
	defer q.arm(q.cfg.DrainDelay)

	if existing, err := q.store.FindActive(ctx, subjectID); err == nil {
		q.logger.DebugContext(ctx, "enqueue deduplicated against active job",
			"subject_id", subjectID,
			"job_id", existing.ID)
		return existing, false, nil
	} else if !errors.Is(err, store.ErrJobNotFound) {
		return nil, false, fmt.Errorf("checking for active job: %w", err)
	}

	job, err := q.store.Insert(ctx, subjectID, source)
	if err != nil {
		if errors.Is(err, store.ErrActiveJobExists) {
			// Lost an enqueue race; the winner's row is our dedup hit.
			existing, findErr := q.store.FindActive(ctx, subjectID)
			if findErr == nil {
				return existing, false, nil
			}
			return nil, false, fmt.Errorf("resolving enqueue race: %w", findErr)
		}
		return nil, false, fmt.Errorf("inserting job: %w", err)
	}

	q.generations.Bump(ctx, genBucket)
	q.logger.InfoContext(ctx, "job enqueued",
		"job_id", job.ID,
		"subject_id", subjectID,
		"source", source)
	return job, true, nil
}

// EnqueueMany enqueues a batch of subjects and returns how many new rows
// were inserted. A bulk regeneration first discards each subject's job
// history so the new run starts from a clean slate. Per-subject failures
// are logged and skipped; one bad subject must not sink a bulk request.
func (q *Queue) EnqueueMany(ctx context.Context, subjectIDs []int64, source string) (int, error) {
	if len(subjectIDs) == 0 {
		return 0, nil
	}

	if source == domain.SourceBulkRegenerate {
		deleted, err := q.store.DeleteForSubjects(ctx, subjectIDs)
		if err != nil {
			return 0, fmt.Errorf("clearing job history for regeneration: %w", err)
		}
		if deleted > 0 {
			q.generations.Bump(ctx, genBucket)
		}
	}

	inserted := 0
	for _, id := range subjectIDs {
		_, fresh, err := q.Enqueue(ctx, id, source)
		if err != nil {
			q.logger.WarnContext(ctx, "bulk enqueue skipped subject",
				"subject_id", id,
				"error", err)
			continue
		}
		if fresh {
			inserted++
		}
	}
	return inserted, nil
}

// ClaimBatch claims up to limit pending jobs via the store's conditional
// update. Candidates are oversampled because concurrent drains thin the
// pending set between the read and the claim.
func (q *Queue) ClaimBatch(ctx context.Context, limit int) ([]*domain.Job, error) {
	if limit < 1 {
		limit = 1
	}

	candidates, err := q.store.Candidates(ctx, limit*claimOversample)
	if err != nil {
		return nil, fmt.Errorf("listing claim candidates: %w", err)
	}

	now := q.now().UTC()
	claimed := make([]*domain.Job, 0, limit)
	for _, job := range candidates {
		ok, err := q.store.Claim(ctx, job.ID, now)
		if err != nil {
			return claimed, fmt.Errorf("claiming job %d: %w", job.ID, err)
		}
		if !ok {
			continue
		}

		job.Status = domain.JobStatusProcessing
		job.Attempts++
		lockedAt := now
		job.LockedAt = &lockedAt
		claimed = append(claimed, job)

		if len(claimed) == limit {
			break
		}
	}
	return claimed, nil
}

// MarkComplete finishes a job successfully.
func (q *Queue) MarkComplete(ctx context.Context, jobID int64) error {
	if err := q.store.MarkComplete(ctx, jobID); err != nil {
		return fmt.Errorf("completing job %d: %w", jobID, err)
	}
	q.generations.Bump(ctx, genBucket)
	return nil
}

// MarkRetry returns a job to pending for another claim cycle.
func (q *Queue) MarkRetry(ctx context.Context, jobID int64, message string) error {
	if err := q.store.MarkRetry(ctx, jobID, domain.TruncateError(message)); err != nil {
		return fmt.Errorf("retrying job %d: %w", jobID, err)
	}
	q.generations.Bump(ctx, genBucket)
	return nil
}

// MarkFailed fails a job permanently.
func (q *Queue) MarkFailed(ctx context.Context, jobID int64, message string) error {
	if err := q.store.MarkFailed(ctx, jobID, domain.TruncateError(message)); err != nil {
		return fmt.Errorf("failing job %d: %w", jobID, err)
	}
	q.generations.Bump(ctx, genBucket)
	return nil
}

// ResetStale recovers jobs whose processing lease has expired, typically
// after a crash mid-generation. The configured lease is floored at one
// minute so in-flight generations are not stolen.
func (q *Queue) ResetStale(ctx context.Context) (int64, error) {
	lease := q.cfg.Lease
	if lease < minLease {
		lease = minLease
	}

	n, err := q.store.ResetStale(ctx, q.now().UTC().Add(-lease))
	if err != nil {
		return 0, fmt.Errorf("resetting stale jobs: %w", err)
	}
	if n > 0 {
		q.logger.InfoContext(ctx, "recovered stale jobs", "count", n)
		q.generations.Bump(ctx, genBucket)
	}
	return n, nil
}

// RetryFailed returns every failed job to pending and re-arms the trigger.
func (q *Queue) RetryFailed(ctx context.Context) (int64, error) {
	n, err := q.store.RetryAllFailed(ctx)
	if err != nil {
		return 0, fmt.Errorf("retrying failed jobs: %w", err)
	}
	if n > 0 {
		q.generations.Bump(ctx, genBucket)
		q.arm(q.cfg.DrainDelay)
	}
	return n, nil
}

// ClearCompleted deletes completed rows older than age. A zero age clears
// all of them; nonzero ages are floored to keep very recent history visible.
func (q *Queue) ClearCompleted(ctx context.Context, age time.Duration) (int64, error) {
	var cutoff time.Time
	if age > 0 {
		if age < minClearAge {
			age = minClearAge
		}
		cutoff = q.now().UTC().Add(-age)
	}

	n, err := q.store.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("clearing completed jobs: %w", err)
	}
	if n > 0 {
		q.generations.Bump(ctx, genBucket)
	}
	return n, nil
}

// Stats returns the queue snapshot, served from cache while live. A recompute
// first runs the redundant-job sweep (at most once per hour) so the numbers
// do not count work that was already done out of band.
func (q *Queue) Stats(ctx context.Context) (*Stats, error) {
	var cached Stats
	if err := q.generations.GetJSON(ctx, genBucket, statsSuffix, &cached); err == nil {
		return &cached, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		q.logger.WarnContext(ctx, "failed to read cached stats", "error", err)
	}

	q.maybeSweepRedundant(ctx)

	counts, err := q.store.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting jobs: %w", err)
	}
	recent, err := q.store.CountCompletedSince(ctx, q.now().UTC().Add(-recentWindow))
	if err != nil {
		return nil, fmt.Errorf("counting recent completions: %w", err)
	}

	stats := &Stats{
		Pending:         counts[domain.JobStatusPending],
		Processing:      counts[domain.JobStatusProcessing],
		Failed:          counts[domain.JobStatusFailed],
		Completed:       counts[domain.JobStatusCompleted],
		CompletedRecent: recent,
	}
	stats.HasJobs = stats.Pending+stats.Processing > 0

	if err := q.generations.SetJSON(ctx, genBucket, statsSuffix, stats, statsTTL); err != nil {
		q.logger.WarnContext(ctx, "failed to cache stats", "error", err)
	}
	return stats, nil
}

// Recent returns the newest jobs of any status.
func (q *Queue) Recent(ctx context.Context, limit int) ([]*domain.Job, error) {
	if limit < 1 {
		limit = 20
	}
	return q.store.Recent(ctx, limit)
}

// RecentFailures returns the newest failed jobs.
func (q *Queue) RecentFailures(ctx context.Context, limit int) ([]*domain.Job, error) {
	if limit < 1 {
		limit = 20
	}
	return q.store.RecentFailures(ctx, limit)
}

// maybeSweepRedundant auto-completes pending jobs whose subject already has
// alt text. Throttled to once per cleanupInterval across all processes via
// a cache marker.
func (q *Queue) maybeSweepRedundant(ctx context.Context) {
	if q.subjects == nil {
		return
	}

	if _, ok, err := q.cache.Get(ctx, cleanupMarkerKey); err != nil || ok {
		return
	}
	if err := q.cache.Set(ctx, cleanupMarkerKey, []byte("1"), cleanupInterval); err != nil {
		q.logger.WarnContext(ctx, "failed to set sweep marker", "error", err)
		return
	}

	refs, err := q.store.PendingSubjects(ctx)
	if err != nil {
		q.logger.WarnContext(ctx, "redundant sweep could not list pending jobs", "error", err)
		return
	}

	completed := 0
	for _, ref := range refs {
		has, err := q.subjects.HasAltText(ctx, ref.SubjectID)
		if err != nil || !has {
			continue
		}
		if err := q.store.MarkComplete(ctx, ref.JobID); err != nil {
			q.logger.WarnContext(ctx, "failed to complete redundant job",
				"job_id", ref.JobID,
				"error", err)
			continue
		}
		completed++
	}

	if completed > 0 {
		q.logger.InfoContext(ctx, "redundant sweep completed jobs", "count", completed)
		q.generations.Bump(ctx, genBucket)
	}
}

func (q *Queue) arm(delay time.Duration) {
	if q.trigger != nil {
		q.trigger.Arm(delay)
	}
}

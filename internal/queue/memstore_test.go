package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/beepbeepai/alttext-api/internal/domain"
	"github.com/beepbeepai/alttext-api/internal/store"
)

// memJobStore is an in-memory store.JobStore with the same concurrency
// contract as the real one: Claim is atomic, and at most one active job can
// exist per subject.
type memJobStore struct {
	mu     sync.Mutex
	nextID int64
	jobs   map[int64]*domain.Job
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[int64]*domain.Job)}
}

func (m *memJobStore) Insert(ctx context.Context, subjectID int64, source string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, j := range m.jobs {
		if j.SubjectID == subjectID && j.Active() {
			return nil, fmt.Errorf("%w: subject %d", store.ErrActiveJobExists, subjectID)
		}
	}

	m.nextID++
	job := &domain.Job{
		ID:         m.nextID,
		SubjectID:  subjectID,
		Status:     domain.JobStatusPending,
		Source:     source,
		EnqueuedAt: time.Now().UTC(),
	}
	m.jobs[job.ID] = job
	out := *job
	return &out, nil
}

func (m *memJobStore) FindActive(ctx context.Context, subjectID int64) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, j := range m.jobs {
		if j.SubjectID == subjectID && j.Active() {
			out := *j
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: subject %d", store.ErrJobNotFound, subjectID)
}

func (m *memJobStore) Candidates(ctx context.Context, limit int) ([]*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.Job
	for _, j := range m.sortedLocked() {
		if j.Status != domain.JobStatusPending {
			continue
		}
		c := *j
		out = append(out, &c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memJobStore) Claim(ctx context.Context, jobID int64, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok || j.Status != domain.JobStatusPending {
		return false, nil
	}
	j.Status = domain.JobStatusProcessing
	j.Attempts++
	lockedAt := now
	j.LockedAt = &lockedAt
	return true, nil
}

func (m *memJobStore) MarkComplete(ctx context.Context, jobID int64) error {
	// Transition writes refuse canceled contexts, matching the SQL driver.
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if j, ok := m.jobs[jobID]; ok {
		now := time.Now().UTC()
		j.Status = domain.JobStatusCompleted
		j.LockedAt = nil
		j.LastError = ""
		j.CompletedAt = &now
	}
	return nil
}

func (m *memJobStore) MarkRetry(ctx context.Context, jobID int64, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if j, ok := m.jobs[jobID]; ok {
		j.Status = domain.JobStatusPending
		j.LockedAt = nil
		j.LastError = message
	}
	return nil
}

func (m *memJobStore) MarkFailed(ctx context.Context, jobID int64, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if j, ok := m.jobs[jobID]; ok {
		j.Status = domain.JobStatusFailed
		j.LockedAt = nil
		j.LastError = message
	}
	return nil
}

func (m *memJobStore) ResetStale(ctx context.Context, lockedBefore time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, j := range m.jobs {
		if j.Status == domain.JobStatusProcessing && j.LockedAt != nil && j.LockedAt.Before(lockedBefore) {
			j.Status = domain.JobStatusPending
			j.LockedAt = nil
			n++
		}
	}
	return n, nil
}

func (m *memJobStore) RetryAllFailed(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, j := range m.jobs {
		if j.Status == domain.JobStatusFailed {
			j.Status = domain.JobStatusPending
			j.LockedAt = nil
			j.LastError = ""
			n++
		}
	}
	return n, nil
}

func (m *memJobStore) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, j := range m.jobs {
		if j.Status != domain.JobStatusCompleted {
			continue
		}
		if cutoff.IsZero() || (j.CompletedAt != nil && j.CompletedAt.Before(cutoff)) {
			delete(m.jobs, id)
			n++
		}
	}
	return n, nil
}

func (m *memJobStore) DeleteForSubjects(ctx context.Context, subjectIDs []int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[int64]bool, len(subjectIDs))
	for _, id := range subjectIDs {
		wanted[id] = true
	}

	var n int64
	for id, j := range m.jobs {
		if wanted[j.SubjectID] {
			delete(m.jobs, id)
			n++
		}
	}
	return n, nil
}

func (m *memJobStore) CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[domain.JobStatus]int)
	for _, j := range m.jobs {
		counts[j.Status]++
	}
	return counts, nil
}

func (m *memJobStore) CountCompletedSince(ctx context.Context, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, j := range m.jobs {
		if j.Status == domain.JobStatusCompleted && j.CompletedAt != nil && j.CompletedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (m *memJobStore) PendingSubjects(ctx context.Context) ([]store.PendingJobRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var refs []store.PendingJobRef
	for _, j := range m.sortedLocked() {
		if j.Status == domain.JobStatusPending {
			refs = append(refs, store.PendingJobRef{JobID: j.ID, SubjectID: j.SubjectID})
		}
	}
	return refs, nil
}

func (m *memJobStore) Recent(ctx context.Context, limit int) ([]*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.sortedLocked()
	var out []*domain.Job
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		c := *all[i]
		out = append(out, &c)
	}
	return out, nil
}

func (m *memJobStore) RecentFailures(ctx context.Context, limit int) ([]*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.sortedLocked()
	var out []*domain.Job
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		if all[i].Status != domain.JobStatusFailed {
			continue
		}
		c := *all[i]
		out = append(out, &c)
	}
	return out, nil
}

// get returns a copy of the job by ID, for assertions.
func (m *memJobStore) get(jobID int64) (domain.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return domain.Job{}, false
	}
	return *j, true
}

func (m *memJobStore) sortedLocked() []*domain.Job {
	all := make([]*domain.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		all = append(all, j)
	}
	sort.Slice(all, func(i, k int) bool { return all[i].ID < all[k].ID })
	return all
}

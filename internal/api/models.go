package api

import (
	"time"

	"github.com/beepbeepai/alttext-api/internal/domain"
)

// EnqueueRequest asks for one subject to be queued.
type EnqueueRequest struct {
	SubjectID int64  `json:"subject_id" validate:"required,gt=0"`
	Source    string `json:"source"     validate:"omitempty,oneof=manual bulk bulk-regenerate auto queue-retry"`
}

// BulkEnqueueRequest asks for a batch of subjects to be queued.
type BulkEnqueueRequest struct {
	SubjectIDs []int64 `json:"subject_ids" validate:"required,min=1,max=1000,dive,gt=0"`
	Regenerate bool    `json:"regenerate"`
}

// JobResponse is the wire shape of a job.
type JobResponse struct {
	ID          int64      `json:"id"`
	SubjectID   int64      `json:"subject_id"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	Source      string     `json:"source"`
	LastError   string     `json:"last_error,omitempty"`
	EnqueuedAt  time.Time  `json:"enqueued_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// EnqueueResponse reports the outcome of an enqueue.
type EnqueueResponse struct {
	Job      JobResponse `json:"job"`
	Enqueued bool        `json:"enqueued"`
}

// BulkEnqueueResponse reports the outcome of a bulk enqueue, including a
// quota advisory so a UI can warn before the queue stalls mid-batch.
type BulkEnqueueResponse struct {
	Requested int    `json:"requested"`
	Enqueued  int    `json:"enqueued"`
	Remaining int    `json:"quota_remaining"`
	Warning   string `json:"warning,omitempty"`
}

// CountResponse reports how many rows an operation touched.
type CountResponse struct {
	Count int64 `json:"count"`
}

func toJobResponse(job *domain.Job) JobResponse {
	return JobResponse{
		ID:          job.ID,
		SubjectID:   job.SubjectID,
		Status:      string(job.Status),
		Attempts:    job.Attempts,
		Source:      job.Source,
		LastError:   job.LastError,
		EnqueuedAt:  job.EnqueuedAt,
		CompletedAt: job.CompletedAt,
	}
}

func toJobResponses(jobs []*domain.Job) []JobResponse {
	out := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, toJobResponse(job))
	}
	return out
}

package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/beepbeepai/alttext-api/internal/api/shared"
	"github.com/beepbeepai/alttext-api/internal/domain"
	"github.com/beepbeepai/alttext-api/internal/queue"
	"github.com/beepbeepai/alttext-api/internal/quota"
)

// QueueHandler exposes the queue engine to operators.
type QueueHandler struct {
	queue      *queue.Queue
	trigger    *queue.Trigger
	reconciler *quota.Reconciler
	logger     *slog.Logger
}

// NewQueueHandler creates a QueueHandler.
func NewQueueHandler(
	q *queue.Queue,
	trigger *queue.Trigger,
	reconciler *quota.Reconciler,
	logger *slog.Logger,
) *QueueHandler {
	return &QueueHandler{
		queue:      q,
		trigger:    trigger,
		reconciler: reconciler,
		logger:     logger.With("component", "queue_handler"),
	}
}

// Enqueue handles POST /queue/jobs.
func (h *QueueHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "subject_id must be a positive integer")
		return
	}
	if req.Source == "" {
		req.Source = domain.SourceManual
	}

	job, fresh, err := h.queue.Enqueue(r.Context(), req.SubjectID, req.Source)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err),
			"failed to enqueue job", err)
		return
	}

	status := http.StatusOK
	if fresh {
		status = http.StatusCreated
	}
	shared.RespondWithJSON(w, r, status, EnqueueResponse{
		Job:      toJobResponse(job),
		Enqueued: fresh,
	})
}

// EnqueueBulk handles POST /queue/bulk. The response carries a quota
// advisory: the batch is accepted either way, but a UI can warn when the
// remaining quota will not cover it.
func (h *QueueHandler) EnqueueBulk(w http.ResponseWriter, r *http.Request) {
	var req BulkEnqueueRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest,
			"subject_ids must be 1-1000 positive integers")
		return
	}

	source := domain.SourceBulk
	if req.Regenerate {
		source = domain.SourceBulkRegenerate
	}

	inserted, err := h.queue.EnqueueMany(r.Context(), req.SubjectIDs, source)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err),
			"failed to enqueue batch", err)
		return
	}

	resp := BulkEnqueueResponse{
		Requested: len(req.SubjectIDs),
		Enqueued:  inserted,
	}
	if snap, err := h.reconciler.Usage(r.Context(), false); err == nil {
		resp.Remaining = snap.Remaining
		if snap.Confirmed && snap.Remaining < inserted {
			resp.Warning = "batch exceeds remaining quota; the queue will pause when it runs out"
		}
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, resp)
}

// Stats handles GET /queue/stats.
func (h *QueueHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"failed to read queue stats", err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, stats)
}

// Jobs handles GET /queue/jobs. ?failures=1 narrows to failed jobs;
// ?limit=N bounds the page (default 20, max 100).
func (h *QueueHandler) Jobs(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n > 100 {
			n = 100
		}
		limit = n
	}

	var jobs []*domain.Job
	var err error
	if r.URL.Query().Get("failures") != "" {
		jobs, err = h.queue.RecentFailures(r.Context(), limit)
	} else {
		jobs, err = h.queue.Recent(r.Context(), limit)
	}
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"failed to list jobs", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, toJobResponses(jobs))
}

// RetryFailed handles POST /queue/retry-failed.
func (h *QueueHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	n, err := h.queue.RetryFailed(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"failed to retry failed jobs", err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, CountResponse{Count: n})
}

// ClearCompleted handles POST /queue/clear-completed. ?age=DURATION keeps
// rows newer than the given age; absent means clear everything completed.
func (h *QueueHandler) ClearCompleted(w http.ResponseWriter, r *http.Request) {
	var age time.Duration
	if raw := r.URL.Query().Get("age"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed < 0 {
			shared.RespondWithError(w, r, http.StatusBadRequest,
				"age must be a duration like 24h")
			return
		}
		age = parsed
	}

	n, err := h.queue.ClearCompleted(r.Context(), age)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"failed to clear completed jobs", err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, CountResponse{Count: n})
}

// Process handles POST /queue/process: kick off a drain pass immediately
// instead of waiting for the trigger.
func (h *QueueHandler) Process(w http.ResponseWriter, r *http.Request) {
	h.trigger.FireNow()
	shared.RespondWithJSON(w, r, http.StatusAccepted, map[string]string{
		"status": "processing",
	})
}

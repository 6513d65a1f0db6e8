package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/beepbeepai/alttext-api/internal/config"
	"github.com/beepbeepai/alttext-api/internal/domain"
	"github.com/beepbeepai/alttext-api/internal/generation"
	"github.com/beepbeepai/alttext-api/internal/platform/cache"
)

// PayloadBuilder turns a subject into a generation request. Failures are
// terminal for the job: a subject that cannot be read now will not read any
// better on the next cycle.
type PayloadBuilder interface {
	BuildRequest(ctx context.Context, subjectID int64, regenerate bool) (generation.Request, error)
}

// ResultSink persists generated alt text back onto the subject.
type ResultSink interface {
	SaveAltText(ctx context.Context, subjectID int64, altText string) error
}

// QuotaInvalidator drops cached quota state after a drain pass so completed
// generations show up in the next usage read.
type QuotaInvalidator interface {
	Invalidate(ctx context.Context)
}

// Processor runs one drain pass per trigger firing: recover stale jobs,
// claim a batch, generate sequentially, and re-arm if work remains. It keeps
// no state between passes; everything it needs to know lives in the store.
type Processor struct {
	logger      *slog.Logger
	queue       *Queue
	generator   generation.Generator
	payloads    PayloadBuilder
	sink        ResultSink
	quota       QuotaInvalidator
	generations *cache.Generations
	cfg         config.QueueConfig

	// trigger is attached after construction; the trigger's callback is
	// this processor's Run.
	trigger *Trigger
}

// NewProcessor creates a processor over the given queue and collaborators.
func NewProcessor(
	logger *slog.Logger,
	q *Queue,
	generator generation.Generator,
	payloads PayloadBuilder,
	sink ResultSink,
	quota QuotaInvalidator,
	generations *cache.Generations,
	cfg config.QueueConfig,
) *Processor {
	return &Processor{
		logger:      logger.With("component", "queue_processor"),
		queue:       q,
		generator:   generator,
		payloads:    payloads,
		sink:        sink,
		quota:       quota,
		generations: generations,
		cfg:         cfg,
	}
}

// AttachTrigger wires the trigger this processor re-arms.
func (p *Processor) AttachTrigger(t *Trigger) {
	p.trigger = t
}

// Run executes one drain pass. Overlapping passes from other processes are
// safe: claims are conditional updates, so a job is only ever processed by
// the claimer that won it.
func (p *Processor) Run(ctx context.Context) {
	// Counter memoization is scoped to one pass; bumps from other
	// processes since the last pass must become visible now.
	p.generations.Reset()

	if _, err := p.queue.ResetStale(ctx); err != nil {
		p.logger.WarnContext(ctx, "stale job recovery failed", "error", err)
	}

	jobs, err := p.queue.ClaimBatch(ctx, p.cfg.BatchSize)
	if err != nil {
		p.logger.ErrorContext(ctx, "claiming batch failed", "error", err)
		return
	}
	if len(jobs) == 0 {
		p.purgeCompleted(ctx)
		return
	}

	p.logger.InfoContext(ctx, "draining queue", "claimed", len(jobs))

	quotaStop := false
	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			p.releaseRemaining(ctx, jobs[i:], "processing interrupted by shutdown")
			return
		}

		if quotaExhausted := p.processJob(ctx, job); quotaExhausted {
			p.releaseRemaining(ctx, jobs[i+1:], "deferred: quota exhausted")
			quotaStop = true
			break
		}
	}

	if p.quota != nil {
		p.quota.Invalidate(ctx)
	}

	if quotaStop {
		// Pause until the next quota window instead of burning attempts.
		if p.trigger != nil {
			p.trigger.Arm(p.cfg.QuotaRetryDelay)
		}
		return
	}

	p.purgeCompleted(ctx)

	stats, err := p.queue.Stats(ctx)
	if err != nil {
		p.logger.WarnContext(ctx, "stats read after drain failed", "error", err)
		return
	}
	if stats.Pending > 0 && p.trigger != nil {
		p.trigger.Arm(p.cfg.DrainDelay)
	}
}

// processJob handles one claimed job end to end. The return value reports
// confirmed quota exhaustion, which stops the whole pass.
func (p *Processor) processJob(ctx context.Context, job *domain.Job) bool {
	log := p.logger.With("job_id", job.ID, "subject_id", job.SubjectID, "attempt", job.Attempts)

	req, err := p.payloads.BuildRequest(ctx, job.SubjectID, job.Source == domain.SourceBulkRegenerate)
	if err != nil {
		log.WarnContext(ctx, "subject cannot be prepared for generation", "error", err)
		p.fail(ctx, job, fmt.Errorf("%w: %v", generation.ErrInvalidImage, err))
		return false
	}

	result, err := p.generator.Generate(ctx, req)
	if err != nil {
		return p.handleGenerationError(ctx, job, err)
	}

	if err := p.sink.SaveAltText(ctx, job.SubjectID, result.AltText); err != nil {
		log.WarnContext(ctx, "persisting alt text failed", "error", err)
		p.retryOrFail(ctx, job, fmt.Errorf("saving result: %w", err))
		return false
	}

	if err := p.queue.MarkComplete(ctx, job.ID); err != nil {
		log.WarnContext(ctx, "completing job failed", "error", err)
		return false
	}
	log.InfoContext(ctx, "job completed", "remaining_quota", result.Remaining)
	return false
}

func (p *Processor) handleGenerationError(ctx context.Context, job *domain.Job, err error) bool {
	switch {
	case errors.Is(err, generation.ErrQuotaExceeded):
		// Not the job's fault; give the cycle back and pause the queue.
		if retryErr := p.queue.MarkRetry(ctx, job.ID, err.Error()); retryErr != nil {
			p.logger.WarnContext(ctx, "requeueing quota-blocked job failed",
				"job_id", job.ID,
				"error", retryErr)
		}
		p.logger.InfoContext(ctx, "quota exhausted, pausing queue",
			"job_id", job.ID,
			"retry_in", p.cfg.QuotaRetryDelay)
		return true

	case generation.IsTerminal(err):
		p.fail(ctx, job, err)
		return false

	default:
		p.retryOrFail(ctx, job, err)
		return false
	}
}

// retryOrFail gives a transiently failed job another cycle until its
// attempts reach the cap, then fails it for good.
func (p *Processor) retryOrFail(ctx context.Context, job *domain.Job, cause error) {
	if job.Attempts >= p.cfg.MaxAttempts {
		p.fail(ctx, job, fmt.Errorf("gave up after %d attempts: %w", job.Attempts, cause))
		return
	}

	if err := p.queue.MarkRetry(ctx, job.ID, cause.Error()); err != nil {
		p.logger.WarnContext(ctx, "requeueing job failed",
			"job_id", job.ID,
			"error", err)
	}
}

func (p *Processor) fail(ctx context.Context, job *domain.Job, cause error) {
	p.logger.WarnContext(ctx, "job failed permanently",
		"job_id", job.ID,
		"subject_id", job.SubjectID,
		"error", cause)
	if err := p.queue.MarkFailed(ctx, job.ID, cause.Error()); err != nil {
		p.logger.WarnContext(ctx, "recording job failure failed",
			"job_id", job.ID,
			"error", err)
	}
}

// releaseRemaining returns unprocessed claimed jobs to pending so another
// pass can pick them up without waiting out the stale lease. It also runs
// on shutdown with an already-canceled context, so the writes are detached
// from the cancellation.
func (p *Processor) releaseRemaining(ctx context.Context, jobs []*domain.Job, reason string) {
	ctx = context.WithoutCancel(ctx)
	for _, job := range jobs {
		if err := p.queue.MarkRetry(ctx, job.ID, reason); err != nil {
			p.logger.WarnContext(ctx, "releasing claimed job failed",
				"job_id", job.ID,
				"error", err)
		}
	}
}

func (p *Processor) purgeCompleted(ctx context.Context) {
	if _, err := p.queue.ClearCompleted(ctx, p.cfg.PurgeAge); err != nil {
		p.logger.WarnContext(ctx, "purging completed jobs failed", "error", err)
	}
}

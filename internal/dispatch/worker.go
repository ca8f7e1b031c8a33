package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/torresline/eventgate/pkg/db/models"
	"github.com/torresline/eventgate/pkg/enums"
	"github.com/torresline/eventgate/pkg/logger"
	"github.com/torresline/eventgate/pkg/metrics"
)

// redeliveryHorizon bounds how far ahead a pointer is worth bouncing on the
// queue. Jobs due later than this are acked and re-announced by the sweeper
// once due.
const redeliveryHorizon = 30 * time.Second

// jobStore is the persistence surface the worker uses. *Repository satisfies
// it; tests substitute fakes.
type jobStore interface {
	FindJobByID(ctx context.Context, id uuid.UUID) (*models.DispatchJob, error)
	ClaimJob(ctx context.Context, id uuid.UUID, now time.Time) (*models.DispatchJob, error)
	HasBlockingSibling(ctx context.Context, poolID uuid.UUID, messageGroup string, sequence int, exclude uuid.UUID) (bool, error)
	MarkSucceeded(ctx context.Context, id uuid.UUID, attemptCount int, completedAt time.Time) error
	MarkFailedTerminal(ctx context.Context, id uuid.UUID, attemptCount int, lastError string, now time.Time) error
	MarkExpired(ctx context.Context, id uuid.UUID, lastError string, now time.Time) (bool, error)
	RequeueForRetry(ctx context.Context, id uuid.UUID, attemptCount int, scheduledFor time.Time, lastError string, now time.Time) error
	InsertAttempt(ctx context.Context, attempt *models.DispatchJobAttempt) error
}

// budgetSource grants per-pool delivery budget.
type budgetSource interface {
	TryAcquire(ctx context.Context, poolID uuid.UUID) (func(), bool, error)
}

// repointer re-announces a requeued job for its next attempt.
type repointer interface {
	Notify(ctx context.Context, pointer JobPointer) error
}

// subscriber is the receive loop surface of a Pub/Sub subscription.
type subscriber interface {
	Receive(ctx context.Context, f func(ctx context.Context, msg *pubsub.Message)) error
}

// WorkerParams collects the delivery worker dependencies.
type WorkerParams struct {
	Subscription   subscriber
	Store          jobStore
	Budget         budgetSource
	Deliverer      Deliverer
	Notifier       repointer
	Logger         *logger.Logger
	Metrics        *metrics.DispatchMetrics
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// Worker consumes job pointers and drives the delivery state machine. All
// coordination runs through conditional database updates; losing a claim race
// or seeing stale pointer metadata is normal operation, not an error.
type Worker struct {
	sub       subscriber
	store     jobStore
	budget    budgetSource
	deliverer Deliverer
	notifier  repointer
	logg      *logger.Logger
	met       *metrics.DispatchMetrics
	baseDelay time.Duration
	maxDelay  time.Duration
}

// NewWorker validates dependencies and builds a delivery worker.
func NewWorker(params WorkerParams) (*Worker, error) {
	if params.Subscription == nil {
		return nil, errors.New("subscription is required")
	}
	if params.Store == nil {
		return nil, errors.New("job store is required")
	}
	if params.Budget == nil {
		return nil, errors.New("budget source is required")
	}
	if params.Deliverer == nil {
		return nil, errors.New("deliverer is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}

	base := params.RetryBaseDelay
	if base <= 0 {
		base = time.Second
	}
	max := params.RetryMaxDelay
	if max <= 0 {
		max = 5 * time.Minute
	}

	return &Worker{
		sub:       params.Subscription,
		store:     params.Store,
		budget:    params.Budget,
		deliverer: params.Deliverer,
		notifier:  params.Notifier,
		logg:      params.Logger,
		met:       params.Metrics,
		baseDelay: base,
		maxDelay:  max,
	}, nil
}

// Run consumes pointers until the context is canceled. Pub/Sub fans messages
// out across the callback pool, so one Run covers the whole worker fleet of a
// process.
func (w *Worker) Run(ctx context.Context) error {
	return w.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if w.Handle(ctx, msg.Data) == ClaimDeferred {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Handle runs the full gate-claim-deliver sequence for one pointer message.
// ClaimDeferred asks the queue to redeliver; everything else consumes the
// message.
func (w *Worker) Handle(ctx context.Context, data []byte) ClaimOutcome {
	pointer, err := DecodePointer(data)
	if err != nil {
		w.logg.Error(ctx, "dropping undecodable pointer", err)
		return ClaimGone
	}

	logCtx := w.logg.WithFields(ctx, map[string]any{
		"job_id":        pointer.JobID.String(),
		"message_group": pointer.MessageGroup,
	})

	job, err := w.store.FindJobByID(logCtx, pointer.JobID)
	if errors.Is(err, ErrJobNotFound) {
		w.logg.Warn(logCtx, "pointer references missing job")
		return ClaimGone
	}
	if err != nil {
		w.logg.Error(logCtx, "loading job for pointer", err)
		return ClaimDeferred
	}

	outcome, claimed, release := w.gateAndClaim(logCtx, job)
	if outcome != ClaimAcquired {
		return outcome
	}
	defer release()

	w.attempt(logCtx, claimed)
	return ClaimAcquired
}

// gateAndClaim walks the pre-claim gates in order and ends with the
// conditional claim. The gates only reduce wasted work; the claim is the only
// step that confers ownership, and the row it returns is the only state the
// attempt may trust. The pre-claim read can be arbitrarily stale: another
// worker may have claimed, failed, and requeued the job with a backoff in
// between, so the attempt counter and scheduledFor come from the claimed row.
func (w *Worker) gateAndClaim(ctx context.Context, job *models.DispatchJob) (ClaimOutcome, *models.DispatchJob, func()) {
	now := time.Now().UTC()

	if job.IsTerminal() {
		return ClaimGone, nil, nil
	}

	if job.IsExpired(now) {
		w.expire(ctx, job, now)
		return ClaimGone, nil, nil
	}

	if wait := job.ScheduledFor.Sub(now); wait > 0 {
		if wait > redeliveryHorizon {
			// Too far out to bounce on the queue; the sweeper re-announces it.
			return ClaimGone, nil, nil
		}
		return ClaimDeferred, nil, nil
	}

	if job.Mode == enums.ModeBlockOnError && job.Sequence > 0 {
		blocked, err := w.store.HasBlockingSibling(ctx, job.DispatchPoolID, job.MessageGroup, job.Sequence, job.ID)
		if err != nil {
			w.logg.Error(ctx, "ordering gate check failed", err)
			return ClaimDeferred, nil, nil
		}
		if blocked {
			return ClaimDeferred, nil, nil
		}
	}

	release, ok, err := w.budget.TryAcquire(ctx, job.DispatchPoolID)
	if err != nil {
		w.logg.Error(ctx, "pool budget unavailable", err)
		return ClaimDeferred, nil, nil
	}
	if !ok {
		return ClaimDeferred, nil, nil
	}

	claimed, err := w.store.ClaimJob(ctx, job.ID, now)
	if err != nil {
		release()
		w.logg.Error(ctx, "claim update failed", err)
		return ClaimDeferred, nil, nil
	}
	if claimed == nil {
		release()
		return ClaimGone, nil, nil
	}
	return ClaimAcquired, claimed, release
}

// attempt executes one delivery for a claimed job and applies the outcome.
func (w *Worker) attempt(ctx context.Context, job *models.DispatchJob) {
	started := time.Now().UTC()
	result := w.deliverer.Deliver(ctx, job)
	completed := started.Add(result.Duration)
	attemptCount := job.AttemptCount + 1

	w.recordAttempt(ctx, job, attemptCount, started, completed, result)
	w.met.ObserveAttempt(attemptOutcomeLabel(result), result.Duration)

	if !result.Failed() {
		if err := w.store.MarkSucceeded(ctx, job.ID, attemptCount, completed); err != nil {
			w.logg.Error(ctx, "marking job succeeded", err)
		}
		return
	}

	lastError := attemptError(result)
	now := time.Now().UTC()

	// Expiry wins over any remaining retry budget.
	if job.IsExpired(now) {
		w.expire(ctx, job, now)
		return
	}

	if result.Retryable() && attemptCount <= job.MaxRetries {
		delay := Backoff(w.baseDelay, w.maxDelay, attemptCount)
		scheduledFor := now.Add(delay)
		if err := w.store.RequeueForRetry(ctx, job.ID, attemptCount, scheduledFor, lastError, now); err != nil {
			w.logg.Error(ctx, "requeueing job for retry", err)
			return
		}
		w.reannounce(ctx, job)
		return
	}

	if err := w.store.MarkFailedTerminal(ctx, job.ID, attemptCount, lastError, now); err != nil {
		w.logg.Error(ctx, "marking job terminally failed", err)
	}
}

func (w *Worker) recordAttempt(ctx context.Context, job *models.DispatchJob, attemptNumber int, started, completed time.Time, result AttemptResult) {
	attempt := &models.DispatchJobAttempt{
		ID:             uuid.New(),
		DispatchJobID:  job.ID,
		AttemptNumber:  attemptNumber,
		Status:         result.Status,
		ResponseCode:   result.ResponseCode,
		ResponseBody:   result.ResponseBody,
		ErrorMessage:   result.ErrorMessage,
		ErrorType:      result.ErrorType,
		DurationMillis: result.Duration.Milliseconds(),
		AttemptedAt:    started,
		CompletedAt:    completed,
	}
	if err := w.store.InsertAttempt(ctx, attempt); err != nil {
		w.logg.Error(ctx, "recording delivery attempt", err)
	}
}

func (w *Worker) expire(ctx context.Context, job *models.DispatchJob, now time.Time) {
	expired, err := w.store.MarkExpired(ctx, job.ID, "delivery window elapsed", now)
	if err != nil {
		w.logg.Error(ctx, "marking job expired", err)
		return
	}
	if expired {
		w.logg.Warn(ctx, "job expired before successful delivery")
	}
}

func (w *Worker) reannounce(ctx context.Context, job *models.DispatchJob) {
	if w.notifier == nil {
		return
	}
	pointer := JobPointer{
		JobID:          job.ID,
		DispatchPoolID: job.DispatchPoolID,
		MessageGroup:   job.MessageGroup,
	}
	if err := w.notifier.Notify(ctx, pointer); err != nil {
		w.logg.Warn(ctx, fmt.Sprintf("retry pointer publish failed, sweeper will recover: %v", err))
	}
}

func attemptOutcomeLabel(result AttemptResult) string {
	if !result.Failed() {
		return "success"
	}
	if result.ErrorType != nil {
		return string(*result.ErrorType)
	}
	return "failed"
}

func attemptError(result AttemptResult) string {
	switch {
	case result.ErrorType != nil && result.ErrorMessage != nil:
		return fmt.Sprintf("%s: %s", *result.ErrorType, *result.ErrorMessage)
	case result.ErrorMessage != nil:
		return *result.ErrorMessage
	case result.ResponseCode != nil:
		return fmt.Sprintf("unexpected response code %d", *result.ResponseCode)
	default:
		return "delivery failed"
	}
}

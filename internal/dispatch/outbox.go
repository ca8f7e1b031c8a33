package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/torresline/eventgate/pkg/db/models"
	"github.com/torresline/eventgate/pkg/logger"
	"github.com/torresline/eventgate/pkg/metrics"
)

const defaultMaxBatchEvents = 100

// EventInput is one event submitted for ingestion, before defaults are
// applied.
type EventInput struct {
	Type            string          `json:"type"`
	Source          string          `json:"source"`
	Subject         string          `json:"subject,omitempty"`
	SpecVersion     string          `json:"specVersion,omitempty"`
	Time            *time.Time      `json:"time,omitempty"`
	Data            json.RawMessage `json:"data,omitempty"`
	CorrelationID   string          `json:"correlationId,omitempty"`
	CausationID     string          `json:"causationId,omitempty"`
	DeduplicationID string          `json:"deduplicationId,omitempty"`
	MessageGroup    string          `json:"messageGroup,omitempty"`
	ContextData     json.RawMessage `json:"contextData,omitempty"`
	ClientID        *uuid.UUID      `json:"-"`
}

func (in *EventInput) validate() error {
	if strings.TrimSpace(in.Type) == "" {
		return errors.New("type is required")
	}
	if strings.TrimSpace(in.Source) == "" {
		return errors.New("source is required")
	}
	return nil
}

type dbClient interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ingestStore is the persistence surface the outbox writer uses. *Repository
// satisfies it; tests substitute fakes.
type ingestStore interface {
	FindActiveSubscriptionsByEventCode(ctx context.Context, code, specVersion string) ([]models.Subscription, error)
	InsertEventTx(tx *gorm.DB, event *models.Event) error
	InsertEventFeedTx(tx *gorm.DB, feed *models.EventFeed) error
	InsertJobTx(tx *gorm.DB, job *models.DispatchJob) error
	InsertJobFeedTx(tx *gorm.DB, feed *models.DispatchJobFeed) error
	JobExistsByIdempotencyKeyTx(tx *gorm.DB, key string) (bool, error)
	EventExistsByDeduplicationIDTx(tx *gorm.DB, dedupID string) (bool, error)
}

// pointerNotifier publishes pointers after the outbox transaction commits.
type pointerNotifier interface {
	NotifyAll(ctx context.Context, pointers []JobPointer) int
}

// OutboxParams collects the outbox writer dependencies.
type OutboxParams struct {
	DB             dbClient
	Store          ingestStore
	Matcher        *Matcher
	Notifier       pointerNotifier
	Logger         *logger.Logger
	Metrics        *metrics.DispatchMetrics
	MaxBatchEvents int
}

// Outbox ingests events and creates their dispatch jobs transactionally. The
// database write is the atomic step; queue notification happens after commit
// and is best effort.
type Outbox struct {
	db       dbClient
	store    ingestStore
	matcher  *Matcher
	notifier pointerNotifier
	logg     *logger.Logger
	met      *metrics.DispatchMetrics
	maxBatch int
}

// NewOutbox validates dependencies and builds the outbox writer.
func NewOutbox(params OutboxParams) (*Outbox, error) {
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Store == nil {
		return nil, errors.New("store is required")
	}
	if params.Matcher == nil {
		return nil, errors.New("matcher is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}

	maxBatch := params.MaxBatchEvents
	if maxBatch <= 0 {
		maxBatch = defaultMaxBatchEvents
	}

	return &Outbox{
		db:       params.DB,
		store:    params.Store,
		matcher:  params.Matcher,
		notifier: params.Notifier,
		logg:     params.Logger,
		met:      params.Metrics,
		maxBatch: maxBatch,
	}, nil
}

// MaxBatchEvents reports the batch cap for API validation.
func (o *Outbox) MaxBatchEvents() int {
	return o.maxBatch
}

// rolledBackMessage marks items that were fine on their own but lost their
// writes because a sibling item failed the batch.
const rolledBackMessage = "batch rolled back"

// ingestPlan is the pre-transaction view of one item: the built event and the
// jobs matching produced for it.
type ingestPlan struct {
	event *models.Event
	jobs  []models.DispatchJob
}

// IngestAndDispatch persists the submitted events together with their dispatch
// jobs and projection feed rows in a single transaction, then announces the
// new jobs to the queue. The batch is atomic: if any item fails, every write
// rolls back and the per-item outcomes identify the failing item; the sound
// items report a rollback instead of success. The returned error covers only
// batch-level rejection.
func (o *Outbox) IngestAndDispatch(ctx context.Context, inputs []EventInput) (IngestResult, error) {
	if len(inputs) == 0 {
		return IngestResult{}, errors.New("at least one event is required")
	}
	if len(inputs) > o.maxBatch {
		return IngestResult{}, fmt.Errorf("batch exceeds maximum of %d events", o.maxBatch)
	}

	now := time.Now().UTC()
	outcomes := make([]ItemOutcome, len(inputs))
	for i := range outcomes {
		outcomes[i] = ItemOutcome{Index: i, Status: OutcomeError, Error: rolledBackMessage}
	}

	plans := make([]ingestPlan, len(inputs))
	for i := range inputs {
		plan, err := o.plan(ctx, &inputs[i], now)
		if err != nil {
			outcomes[i].Error = err.Error()
			return IngestResult{Outcomes: outcomes}, nil
		}
		plans[i] = plan
	}

	var pointers []JobPointer
	err := o.db.WithTx(ctx, func(tx *gorm.DB) error {
		for i := range plans {
			outcome, itemPointers, err := o.writeOne(tx, plans[i], i)
			if err != nil {
				outcomes[i].Error = err.Error()
				return err
			}
			outcomes[i] = outcome
			pointers = append(pointers, itemPointers...)
		}
		return nil
	})
	if err != nil {
		o.logg.Error(ctx, "outbox transaction rolled back", err)
		// Commit never happened; demote every item that thought it succeeded.
		for i := range outcomes {
			if outcomes[i].Status == OutcomeSuccess {
				outcomes[i] = ItemOutcome{Index: i, Status: OutcomeError, Error: rolledBackMessage}
			}
		}
		return IngestResult{Outcomes: outcomes}, nil
	}

	for i := range outcomes {
		if outcomes[i].JobCount > 0 {
			o.met.IncJobsCreated(plans[i].event.Type, outcomes[i].JobCount)
		}
	}

	if o.notifier != nil && len(pointers) > 0 {
		o.notifier.NotifyAll(ctx, pointers)
	}

	return IngestResult{Outcomes: outcomes, Jobs: pointers}, nil
}

// plan validates one item and resolves its matching jobs before any write.
func (o *Outbox) plan(ctx context.Context, input *EventInput, now time.Time) (ingestPlan, error) {
	if err := input.validate(); err != nil {
		return ingestPlan{}, err
	}

	event := buildEvent(input, now)

	subs, err := o.store.FindActiveSubscriptionsByEventCode(ctx, event.Type, event.SpecVersion)
	if err != nil {
		o.logg.Error(ctx, "loading subscriptions for event", err)
		return ingestPlan{}, errors.New("subscription lookup failed")
	}

	jobs, err := o.matcher.Match(event, subs, now)
	if err != nil {
		o.logg.Error(ctx, "matching event to subscriptions", err)
		return ingestPlan{}, err
	}

	return ingestPlan{event: event, jobs: jobs}, nil
}

// writeOne performs the transactional writes for a single planned item.
// Duplicate deduplication ids and idempotency keys are idempotent skips, not
// failures; any returned error rolls back the whole batch.
func (o *Outbox) writeOne(tx *gorm.DB, plan ingestPlan, index int) (ItemOutcome, []JobPointer, error) {
	event := plan.event

	if event.DeduplicationID != nil {
		exists, err := o.store.EventExistsByDeduplicationIDTx(tx, *event.DeduplicationID)
		if err != nil {
			return ItemOutcome{}, nil, fmt.Errorf("checking deduplication id: %w", err)
		}
		if exists {
			// Replayed deduplication id: the original commit already created
			// the jobs, so the replay succeeds with nothing to do.
			return ItemOutcome{Index: index, Status: OutcomeSuccess, EventID: event.ID, JobCount: 0}, nil, nil
		}
	}

	if err := o.store.InsertEventTx(tx, event); err != nil {
		return ItemOutcome{}, nil, fmt.Errorf("inserting event: %w", err)
	}

	eventSnapshot, err := json.Marshal(event)
	if err != nil {
		return ItemOutcome{}, nil, fmt.Errorf("marshaling event snapshot: %w", err)
	}
	if err := o.store.InsertEventFeedTx(tx, &models.EventFeed{
		ID:        uuid.New(),
		EventID:   event.ID,
		EventType: event.Type,
		Snapshot:  eventSnapshot,
	}); err != nil {
		return ItemOutcome{}, nil, fmt.Errorf("inserting event feed: %w", err)
	}

	var pointers []JobPointer
	for j := range plan.jobs {
		job := &plan.jobs[j]
		exists, err := o.store.JobExistsByIdempotencyKeyTx(tx, job.IdempotencyKey)
		if err != nil {
			return ItemOutcome{}, nil, fmt.Errorf("checking idempotency key: %w", err)
		}
		if exists {
			continue
		}
		if err := o.store.InsertJobTx(tx, job); err != nil {
			return ItemOutcome{}, nil, fmt.Errorf("inserting dispatch job: %w", err)
		}
		jobSnapshot, err := json.Marshal(job)
		if err != nil {
			return ItemOutcome{}, nil, fmt.Errorf("marshaling job snapshot: %w", err)
		}
		if err := o.store.InsertJobFeedTx(tx, &models.DispatchJobFeed{
			ID:            uuid.New(),
			DispatchJobID: job.ID,
			Snapshot:      jobSnapshot,
		}); err != nil {
			return ItemOutcome{}, nil, fmt.Errorf("inserting job feed: %w", err)
		}
		pointers = append(pointers, JobPointer{
			JobID:          job.ID,
			DispatchPoolID: job.DispatchPoolID,
			MessageGroup:   job.MessageGroup,
		})
	}

	return ItemOutcome{
		Index:    index,
		Status:   OutcomeSuccess,
		EventID:  event.ID,
		JobCount: len(pointers),
	}, pointers, nil
}

func buildEvent(input *EventInput, now time.Time) *models.Event {
	event := &models.Event{
		ID:            uuid.New(),
		SpecVersion:   input.SpecVersion,
		Type:          strings.TrimSpace(input.Type),
		Source:        strings.TrimSpace(input.Source),
		Subject:       input.Subject,
		Time:          now,
		Data:          input.Data,
		CorrelationID: input.CorrelationID,
		CausationID:   input.CausationID,
		MessageGroup:  input.MessageGroup,
		ContextData:   input.ContextData,
		ClientID:      input.ClientID,
	}
	if event.SpecVersion == "" {
		event.SpecVersion = "1.0"
	}
	if input.Time != nil {
		event.Time = input.Time.UTC()
	}
	if event.CorrelationID == "" {
		event.CorrelationID = event.ID.String()
	}
	if dedup := strings.TrimSpace(input.DeduplicationID); dedup != "" {
		event.DeduplicationID = &dedup
	}
	return event
}

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/torresline/eventgate/internal/repo"
	"github.com/torresline/eventgate/pkg/db/models"
	"github.com/torresline/eventgate/pkg/enums"
	"github.com/torresline/eventgate/pkg/pagination"
)

// ErrJobNotFound is returned when a pointer references a job that does not
// exist.
var ErrJobNotFound = errors.New("dispatch job not found")

// ErrPoolNotFound is returned when a job references an unknown pool.
var ErrPoolNotFound = errors.New("dispatch pool not found")

// Repository provides the persistence surface the dispatch pipeline needs.
// The database is the single source of truth for job status; the conditional
// claim update is the sole mutual-exclusion mechanism across workers.
type Repository struct {
	repo.Base
}

// NewRepository constructs a dispatch repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// FindActiveSubscriptionsByEventCode returns ACTIVE subscriptions bound to the
// event-type code. Spec-version pinning is honored: a binding with a
// specVersion only matches that version.
func (r *Repository) FindActiveSubscriptionsByEventCode(ctx context.Context, code, specVersion string) ([]models.Subscription, error) {
	var rows []models.Subscription
	err := r.DB(ctx).
		Where("status = ?", enums.SubscriptionActive).
		Where("event_type_bindings @> ?", fmt.Sprintf(`[{"code":%q}]`, code)).
		Order("sequence ASC").
		Order("code ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	matched := rows[:0]
	for i := range rows {
		bindings, err := rows[i].Bindings()
		if err != nil {
			return nil, fmt.Errorf("decode bindings for subscription %s: %w", rows[i].Code, err)
		}
		for _, b := range bindings {
			if b.Code != code {
				continue
			}
			if b.SpecVersion == "" || b.SpecVersion == specVersion {
				matched = append(matched, rows[i])
				break
			}
		}
	}
	return matched, nil
}

// FindPoolByID loads a pool by id.
func (r *Repository) FindPoolByID(ctx context.Context, id uuid.UUID) (*models.DispatchPool, error) {
	var pool models.DispatchPool
	err := r.DB(ctx).Where("id = ?", id).First(&pool).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPoolNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pool, nil
}

// FindPoolByCode loads a pool by its code.
func (r *Repository) FindPoolByCode(ctx context.Context, code string) (*models.DispatchPool, error) {
	var pool models.DispatchPool
	err := r.DB(ctx).Where("code = ?", code).First(&pool).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPoolNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pool, nil
}

// FindJobByID reloads full job state for a pointer.
func (r *Repository) FindJobByID(ctx context.Context, id uuid.UUID) (*models.DispatchJob, error) {
	var job models.DispatchJob
	err := r.DB(ctx).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ClaimJob performs the conditional QUEUED to CLAIMED transition and returns
// the row as claimed. At most one caller ever wins; nil means another worker
// got there first, the job left QUEUED, or it is not due yet. Callers must
// drive the attempt off the returned row, never off a pre-claim read: the row
// may have been requeued with a higher attempt count and a later scheduledFor
// between the read and the claim.
func (r *Repository) ClaimJob(ctx context.Context, id uuid.UUID, now time.Time) (*models.DispatchJob, error) {
	var claimed []models.DispatchJob
	res := r.DB(ctx).Model(&claimed).
		Clauses(clause.Returning{}).
		Where("id = ? AND status = ? AND scheduled_for <= ?", id, enums.DispatchQueued, now).
		Updates(map[string]any{
			"status":     enums.DispatchClaimed,
			"updated_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 || len(claimed) == 0 {
		return nil, nil
	}
	return &claimed[0], nil
}

// HasBlockingSibling reports whether any earlier-sequence job in the same
// (pool, message group) is still non-terminal. Used by the BLOCK_ON_ERROR
// ordering gate before claim; a stale true is safe, a stale false is caught by
// the conditional claim.
func (r *Repository) HasBlockingSibling(ctx context.Context, poolID uuid.UUID, messageGroup string, sequence int, exclude uuid.UUID) (bool, error) {
	var count int64
	err := r.DB(ctx).Model(&models.DispatchJob{}).
		Where("dispatch_pool_id = ? AND message_group = ?", poolID, messageGroup).
		Where("sequence < ?", sequence).
		Where("status IN ?", []enums.DispatchStatus{enums.DispatchQueued, enums.DispatchClaimed}).
		Where("id <> ?", exclude).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkSucceeded finalizes a claimed job after a 2xx response.
func (r *Repository) MarkSucceeded(ctx context.Context, id uuid.UUID, attemptCount int, completedAt time.Time) error {
	return r.DB(ctx).Model(&models.DispatchJob{}).
		Where("id = ? AND status = ?", id, enums.DispatchClaimed).
		Updates(map[string]any{
			"status":          enums.DispatchSucceeded,
			"attempt_count":   attemptCount,
			"last_attempt_at": completedAt,
			"completed_at":    completedAt,
			"last_error":      nil,
			"updated_at":      completedAt,
		}).Error
}

// MarkFailedTerminal parks a job whose retry budget is exhausted.
func (r *Repository) MarkFailedTerminal(ctx context.Context, id uuid.UUID, attemptCount int, lastError string, now time.Time) error {
	return r.DB(ctx).Model(&models.DispatchJob{}).
		Where("id = ? AND status = ?", id, enums.DispatchClaimed).
		Updates(map[string]any{
			"status":          enums.DispatchFailedTerminal,
			"attempt_count":   attemptCount,
			"last_attempt_at": now,
			"last_error":      lastError,
			"updated_at":      now,
		}).Error
}

// MarkExpired moves a job past its expiry window to EXPIRED. The transition is
// conditional on the job still being non-terminal, so re-published pointers
// for already-finished jobs are harmless.
func (r *Repository) MarkExpired(ctx context.Context, id uuid.UUID, lastError string, now time.Time) (bool, error) {
	res := r.DB(ctx).Model(&models.DispatchJob{}).
		Where("id = ? AND status IN ?", id, []enums.DispatchStatus{enums.DispatchQueued, enums.DispatchClaimed}).
		Updates(map[string]any{
			"status":     enums.DispatchExpired,
			"last_error": lastError,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RequeueForRetry schedules the next attempt of a claimed job.
func (r *Repository) RequeueForRetry(ctx context.Context, id uuid.UUID, attemptCount int, scheduledFor time.Time, lastError string, now time.Time) error {
	return r.DB(ctx).Model(&models.DispatchJob{}).
		Where("id = ? AND status = ?", id, enums.DispatchClaimed).
		Updates(map[string]any{
			"status":          enums.DispatchQueued,
			"attempt_count":   attemptCount,
			"scheduled_for":   scheduledFor,
			"last_attempt_at": now,
			"last_error":      lastError,
			"updated_at":      now,
		}).Error
}

// InsertAttempt appends one delivery attempt row.
func (r *Repository) InsertAttempt(ctx context.Context, attempt *models.DispatchJobAttempt) error {
	return r.DB(ctx).Create(attempt).Error
}

// JobFilter narrows job listings for operator inspection.
type JobFilter struct {
	Status   *enums.DispatchStatus
	PoolID   *uuid.UUID
	EventID  *uuid.UUID
	ClientID *uuid.UUID
}

// ListJobs returns a page of jobs ordered by creation time, newest first.
func (r *Repository) ListJobs(ctx context.Context, filter JobFilter, params pagination.Params) ([]models.DispatchJob, error) {
	query := r.DB(ctx).Order("created_at DESC").Order("id DESC").Limit(pagination.LimitWithBuffer(params.Limit))
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.PoolID != nil {
		query = query.Where("dispatch_pool_id = ?", *filter.PoolID)
	}
	if filter.EventID != nil {
		query = query.Where("event_id = ?", *filter.EventID)
	}
	if filter.ClientID != nil {
		query = query.Where("client_id = ?", *filter.ClientID)
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var rows []models.DispatchJob
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// FindAttemptsByJob returns the attempt history for operator inspection.
func (r *Repository) FindAttemptsByJob(ctx context.Context, jobID uuid.UUID) ([]models.DispatchJobAttempt, error) {
	var rows []models.DispatchJobAttempt
	err := r.DB(ctx).
		Where("dispatch_job_id = ?", jobID).
		Order("attempt_number ASC").
		Find(&rows).Error
	return rows, err
}

// FindQueuedStaleJobs returns QUEUED jobs whose scheduledFor passed before the
// cutoff; their pointer notification may have been lost.
func (r *Repository) FindQueuedStaleJobs(ctx context.Context, cutoff time.Time, limit int) ([]models.DispatchJob, error) {
	var rows []models.DispatchJob
	err := r.DB(ctx).
		Where("status = ? AND scheduled_for < ?", enums.DispatchQueued, cutoff).
		Order("scheduled_for ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// CountJobsByStatus returns the number of jobs currently in the given status.
func (r *Repository) CountJobsByStatus(ctx context.Context, status enums.DispatchStatus) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&models.DispatchJob{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}

// InsertEventTx writes an event row inside the outbox transaction.
func (r *Repository) InsertEventTx(tx *gorm.DB, event *models.Event) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(event).Error
}

// InsertEventFeedTx writes the event projection feed row inside the outbox
// transaction.
func (r *Repository) InsertEventFeedTx(tx *gorm.DB, feed *models.EventFeed) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(feed).Error
}

// InsertJobTx writes a dispatch job row inside the outbox transaction.
func (r *Repository) InsertJobTx(tx *gorm.DB, job *models.DispatchJob) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(job).Error
}

// JobExistsByIdempotencyKeyTx checks for an existing job with the key within
// the same transaction, making re-ingestion idempotent.
func (r *Repository) JobExistsByIdempotencyKeyTx(tx *gorm.DB, key string) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	var count int64
	err := tx.Model(&models.DispatchJob{}).
		Where("idempotency_key = ?", key).
		Count(&count).Error
	return count > 0, err
}

// InsertJobFeedTx writes the dispatch job projection feed row inside the
// outbox transaction.
func (r *Repository) InsertJobFeedTx(tx *gorm.DB, feed *models.DispatchJobFeed) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(feed).Error
}

// EventExistsByDeduplicationIDTx checks for a prior event carrying the same
// deduplication id within the transaction.
func (r *Repository) EventExistsByDeduplicationIDTx(tx *gorm.DB, dedupID string) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	var count int64
	err := tx.Model(&models.Event{}).
		Where("deduplication_id = ?", dedupID).
		Count(&count).Error
	return count > 0, err
}

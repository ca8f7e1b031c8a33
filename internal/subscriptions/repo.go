package subscriptions

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/torresline/eventgate/internal/repo"
	"github.com/torresline/eventgate/pkg/db/models"
	"github.com/torresline/eventgate/pkg/enums"
	"github.com/torresline/eventgate/pkg/pagination"
)

// Repository persists subscriptions.
type Repository struct {
	repo.Base
}

// NewRepository constructs a subscriptions repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// Create inserts a subscription.
func (r *Repository) Create(ctx context.Context, sub *models.Subscription) error {
	return r.DB(ctx).Create(sub).Error
}

// Update saves the full subscription row.
func (r *Repository) Update(ctx context.Context, sub *models.Subscription) error {
	return r.DB(ctx).Save(sub).Error
}

// FindByID loads a subscription by id.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.DB(ctx).Where("id = ?", id).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// FindByCode loads a subscription by its unique code.
func (r *Repository) FindByCode(ctx context.Context, code string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.DB(ctx).Where("code = ?", code).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// List returns a page of subscriptions ordered by creation time.
func (r *Repository) List(ctx context.Context, status *enums.SubscriptionStatus, clientID *uuid.UUID, params pagination.Params) ([]models.Subscription, error) {
	query := r.DB(ctx).Order("created_at DESC").Order("id DESC").Limit(pagination.LimitWithBuffer(params.Limit))
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	if clientID != nil {
		query = query.Where("client_id = ?", *clientID)
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Subscription
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateStatus transitions the subscription status.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.SubscriptionStatus) error {
	return r.DB(ctx).Model(&models.Subscription{}).
		Where("id = ?", id).
		Update("status", status).Error
}

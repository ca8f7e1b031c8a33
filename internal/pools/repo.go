package pools

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

// Repository persists dispatch pools.
type Repository struct {
	repo.Base
}

// NewRepository constructs a dispatch pools repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// Create inserts a pool.
func (r *Repository) Create(ctx context.Context, pool *models.DispatchPool) error {
	return r.DB(ctx).Create(pool).Error
}

// Update saves the full pool row.
func (r *Repository) Update(ctx context.Context, pool *models.DispatchPool) error {
	return r.DB(ctx).Save(pool).Error
}

// FindByID loads a pool by id.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.DispatchPool, error) {
	var pool models.DispatchPool
	err := r.DB(ctx).Where("id = ?", id).First(&pool).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pool, nil
}

// FindByCode loads a pool by its unique code.
func (r *Repository) FindByCode(ctx context.Context, code string) (*models.DispatchPool, error) {
	var pool models.DispatchPool
	err := r.DB(ctx).Where("code = ?", code).First(&pool).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pool, nil
}

// List returns a page of pools ordered by creation time.
func (r *Repository) List(ctx context.Context, params pagination.Params) ([]models.DispatchPool, error) {
	query := r.DB(ctx).Order("created_at DESC").Order("id DESC").Limit(pagination.LimitWithBuffer(params.Limit))
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var rows []models.DispatchPool
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateStatus transitions the pool status.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.PoolStatus) error {
	return r.DB(ctx).Model(&models.DispatchPool{}).
		Where("id = ?", id).
		Update("status", status).Error
}

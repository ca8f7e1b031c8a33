package pools

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/torresline/eventgate/pkg/db/models"
	"github.com/torresline/eventgate/pkg/enums"
	pkgerrors "github.com/torresline/eventgate/pkg/errors"
	"github.com/torresline/eventgate/pkg/pagination"
)

type poolsRepository interface {
	Create(ctx context.Context, pool *models.DispatchPool) error
	Update(ctx context.Context, pool *models.DispatchPool) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.DispatchPool, error)
	FindByCode(ctx context.Context, code string) (*models.DispatchPool, error)
	List(ctx context.Context, params pagination.Params) ([]models.DispatchPool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.PoolStatus) error
}

// CreateInput carries a new pool definition.
type CreateInput struct {
	Code        string     `json:"code" validate:"required,max=120"`
	RateLimit   int        `json:"rateLimit" validate:"min=0,max=10000"`
	Concurrency int        `json:"concurrency" validate:"min=0,max=1000"`
	ClientID    *uuid.UUID `json:"clientId,omitempty"`
}

// UpdateInput adjusts the pool budget knobs.
type UpdateInput struct {
	RateLimit   int `json:"rateLimit" validate:"min=0,max=10000"`
	Concurrency int `json:"concurrency" validate:"min=0,max=1000"`
}

// Service exposes dispatch pool administration.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.DispatchPool, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.DispatchPool, error)
	Get(ctx context.Context, id uuid.UUID) (*models.DispatchPool, error)
	List(ctx context.Context, page pagination.Params) ([]models.DispatchPool, error)
	Suspend(ctx context.Context, id uuid.UUID) (*models.DispatchPool, error)
	Reactivate(ctx context.Context, id uuid.UUID) (*models.DispatchPool, error)
}

type service struct {
	repo poolsRepository
}

// NewService builds the pool admin service.
func NewService(repo poolsRepository) Service {
	return &service{repo: repo}
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.DispatchPool, error) {
	code := strings.TrimSpace(input.Code)

	existing, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup pool")
	}
	if existing != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "pool code already exists")
	}

	pool := &models.DispatchPool{
		ID:          uuid.New(),
		Code:        code,
		RateLimit:   defaultInt(input.RateLimit, 10),
		Concurrency: defaultInt(input.Concurrency, 5),
		ClientID:    input.ClientID,
		Status:      enums.PoolActive,
	}
	if err := s.repo.Create(ctx, pool); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create pool")
	}
	return pool, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.DispatchPool, error) {
	pool, err := s.mustFind(ctx, id)
	if err != nil {
		return nil, err
	}

	pool.RateLimit = defaultInt(input.RateLimit, 10)
	pool.Concurrency = defaultInt(input.Concurrency, 5)
	if err := s.repo.Update(ctx, pool); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update pool")
	}
	return pool, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.DispatchPool, error) {
	return s.mustFind(ctx, id)
}

func (s *service) List(ctx context.Context, page pagination.Params) ([]models.DispatchPool, error) {
	rows, err := s.repo.List(ctx, page)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pools")
	}
	return rows, nil
}

func (s *service) Suspend(ctx context.Context, id uuid.UUID) (*models.DispatchPool, error) {
	return s.transition(ctx, id, enums.PoolSuspended)
}

func (s *service) Reactivate(ctx context.Context, id uuid.UUID) (*models.DispatchPool, error) {
	return s.transition(ctx, id, enums.PoolActive)
}

func (s *service) transition(ctx context.Context, id uuid.UUID, status enums.PoolStatus) (*models.DispatchPool, error) {
	pool, err := s.mustFind(ctx, id)
	if err != nil {
		return nil, err
	}
	if pool.Status == status {
		return pool, nil
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update pool status")
	}
	pool.Status = status
	return pool, nil
}

func (s *service) mustFind(ctx context.Context, id uuid.UUID) (*models.DispatchPool, error) {
	pool, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup pool")
	}
	if pool == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "pool not found")
	}
	return pool, nil
}

func defaultInt(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

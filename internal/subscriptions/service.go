package subscriptions

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/torresline/eventgate/pkg/db/models"
	"github.com/torresline/eventgate/pkg/enums"
	pkgerrors "github.com/torresline/eventgate/pkg/errors"
	"github.com/torresline/eventgate/pkg/pagination"
)

type subscriptionsRepository interface {
	Create(ctx context.Context, sub *models.Subscription) error
	Update(ctx context.Context, sub *models.Subscription) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	FindByCode(ctx context.Context, code string) (*models.Subscription, error)
	List(ctx context.Context, status *enums.SubscriptionStatus, clientID *uuid.UUID, params pagination.Params) ([]models.Subscription, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.SubscriptionStatus) error
}

type poolsRepository interface {
	FindByCode(ctx context.Context, code string) (*models.DispatchPool, error)
}

// BindingInput is one event-type binding on a subscription request.
type BindingInput struct {
	Code        string `json:"code" validate:"required"`
	SpecVersion string `json:"specVersion,omitempty"`
}

// ConfigInput is one ordered target override entry.
type ConfigInput struct {
	Key   string `json:"key" validate:"required"`
	Value string `json:"value"`
}

// CreateInput carries a new subscription definition.
type CreateInput struct {
	Code              string         `json:"code" validate:"required,max=120"`
	EventTypeBindings []BindingInput `json:"eventTypeBindings" validate:"required,min=1,dive"`
	Target            string         `json:"target" validate:"required,url"`
	QueueName         string         `json:"queueName,omitempty"`
	CustomConfig      []ConfigInput  `json:"customConfig,omitempty" validate:"omitempty,dive"`
	ClientID          *uuid.UUID     `json:"clientId,omitempty"`
	ClientScoped      bool           `json:"clientScoped"`
	DispatchPoolCode  string         `json:"dispatchPoolCode,omitempty"`
	MessageGroup      string         `json:"messageGroup,omitempty"`
	Sequence          int            `json:"sequence" validate:"min=0"`
	Mode              string         `json:"mode,omitempty"`
	DataOnly          bool           `json:"dataOnly"`
	DelaySeconds      int            `json:"delaySeconds" validate:"min=0"`
	TimeoutSeconds    int            `json:"timeoutSeconds" validate:"min=0,max=300"`
	MaxRetries        int            `json:"maxRetries" validate:"min=0,max=20"`
	MaxAgeSeconds     int            `json:"maxAgeSeconds" validate:"min=0"`
}

// UpdateInput mirrors CreateInput minus the immutable code.
type UpdateInput struct {
	EventTypeBindings []BindingInput `json:"eventTypeBindings" validate:"required,min=1,dive"`
	Target            string         `json:"target" validate:"required,url"`
	QueueName         string         `json:"queueName,omitempty"`
	CustomConfig      []ConfigInput  `json:"customConfig,omitempty" validate:"omitempty,dive"`
	DispatchPoolCode  string         `json:"dispatchPoolCode,omitempty"`
	MessageGroup      string         `json:"messageGroup,omitempty"`
	Sequence          int            `json:"sequence" validate:"min=0"`
	Mode              string         `json:"mode,omitempty"`
	DataOnly          bool           `json:"dataOnly"`
	DelaySeconds      int            `json:"delaySeconds" validate:"min=0"`
	TimeoutSeconds    int            `json:"timeoutSeconds" validate:"min=0,max=300"`
	MaxRetries        int            `json:"maxRetries" validate:"min=0,max=20"`
	MaxAgeSeconds     int            `json:"maxAgeSeconds" validate:"min=0"`
}

// ListParams filters and paginates subscription listings.
type ListParams struct {
	Status   *enums.SubscriptionStatus
	ClientID *uuid.UUID
	Page     pagination.Params
}

// Service exposes subscription administration.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Subscription, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Subscription, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	List(ctx context.Context, params ListParams) ([]models.Subscription, error)
	Pause(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	Resume(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
}

type service struct {
	repo            subscriptionsRepository
	pools           poolsRepository
	defaultPoolCode string
}

// NewService builds the subscription admin service.
func NewService(repo subscriptionsRepository, pools poolsRepository, defaultPoolCode string) Service {
	return &service{
		repo:            repo,
		pools:           pools,
		defaultPoolCode: defaultPoolCode,
	}
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Subscription, error) {
	code := strings.TrimSpace(input.Code)

	existing, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup subscription")
	}
	if existing != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "subscription code already exists")
	}

	mode, err := resolveMode(input.Mode)
	if err != nil {
		return nil, err
	}
	pool, err := s.resolvePool(ctx, input.DispatchPoolCode)
	if err != nil {
		return nil, err
	}
	if input.ClientScoped && input.ClientID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client-scoped subscription requires clientId")
	}

	bindings, err := encodeBindings(input.EventTypeBindings)
	if err != nil {
		return nil, err
	}
	custom, err := encodeConfig(input.CustomConfig)
	if err != nil {
		return nil, err
	}

	sub := &models.Subscription{
		ID:                uuid.New(),
		Code:              code,
		EventTypeBindings: bindings,
		Target:            input.Target,
		QueueName:         input.QueueName,
		CustomConfig:      custom,
		ClientID:          input.ClientID,
		ClientScoped:      input.ClientScoped,
		DispatchPoolID:    pool.ID,
		MessageGroup:      input.MessageGroup,
		Sequence:          input.Sequence,
		Mode:              mode,
		DataOnly:          input.DataOnly,
		DelaySeconds:      input.DelaySeconds,
		TimeoutSeconds:    defaultInt(input.TimeoutSeconds, 30),
		MaxRetries:        defaultInt(input.MaxRetries, 3),
		MaxAgeSeconds:     defaultInt(input.MaxAgeSeconds, 86400),
		Status:            enums.SubscriptionActive,
	}

	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create subscription")
	}
	return sub, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Subscription, error) {
	sub, err := s.mustFind(ctx, id)
	if err != nil {
		return nil, err
	}

	mode, err := resolveMode(input.Mode)
	if err != nil {
		return nil, err
	}
	pool, err := s.resolvePool(ctx, input.DispatchPoolCode)
	if err != nil {
		return nil, err
	}
	bindings, err := encodeBindings(input.EventTypeBindings)
	if err != nil {
		return nil, err
	}
	custom, err := encodeConfig(input.CustomConfig)
	if err != nil {
		return nil, err
	}

	sub.EventTypeBindings = bindings
	sub.Target = input.Target
	sub.QueueName = input.QueueName
	sub.CustomConfig = custom
	sub.DispatchPoolID = pool.ID
	sub.MessageGroup = input.MessageGroup
	sub.Sequence = input.Sequence
	sub.Mode = mode
	sub.DataOnly = input.DataOnly
	sub.DelaySeconds = input.DelaySeconds
	sub.TimeoutSeconds = defaultInt(input.TimeoutSeconds, 30)
	sub.MaxRetries = defaultInt(input.MaxRetries, 3)
	sub.MaxAgeSeconds = defaultInt(input.MaxAgeSeconds, 86400)

	if err := s.repo.Update(ctx, sub); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update subscription")
	}
	return sub, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	return s.mustFind(ctx, id)
}

func (s *service) List(ctx context.Context, params ListParams) ([]models.Subscription, error) {
	rows, err := s.repo.List(ctx, params.Status, params.ClientID, params.Page)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list subscriptions")
	}
	return rows, nil
}

func (s *service) Pause(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	return s.transition(ctx, id, enums.SubscriptionPaused)
}

func (s *service) Resume(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	return s.transition(ctx, id, enums.SubscriptionActive)
}

func (s *service) transition(ctx context.Context, id uuid.UUID, status enums.SubscriptionStatus) (*models.Subscription, error) {
	sub, err := s.mustFind(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status == status {
		return sub, nil
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update subscription status")
	}
	sub.Status = status
	return sub, nil
}

func (s *service) mustFind(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	sub, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup subscription")
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	return sub, nil
}

func (s *service) resolvePool(ctx context.Context, code string) (*models.DispatchPool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		code = s.defaultPoolCode
	}
	pool, err := s.pools.FindByCode(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup dispatch pool")
	}
	if pool == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown dispatch pool code").WithDetails(map[string]string{"dispatchPoolCode": code})
	}
	return pool, nil
}

func resolveMode(raw string) (enums.DispatchMode, error) {
	if strings.TrimSpace(raw) == "" {
		return enums.ModeImmediate, nil
	}
	mode, err := enums.ParseDispatchMode(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid dispatch mode")
	}
	return mode, nil
}

func encodeBindings(inputs []BindingInput) (json.RawMessage, error) {
	bindings := make([]models.EventTypeBinding, 0, len(inputs))
	for _, in := range inputs {
		bindings = append(bindings, models.EventTypeBinding{
			Code:        strings.TrimSpace(in.Code),
			SpecVersion: strings.TrimSpace(in.SpecVersion),
		})
	}
	raw, err := json.Marshal(bindings)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode event type bindings")
	}
	return raw, nil
}

func encodeConfig(inputs []ConfigInput) (json.RawMessage, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	entries := make([]models.ConfigEntry, 0, len(inputs))
	for _, in := range inputs {
		entries = append(entries, models.ConfigEntry{Key: in.Key, Value: in.Value})
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode custom config")
	}
	return raw, nil
}

func defaultInt(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

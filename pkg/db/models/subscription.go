package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/torresline/eventgate/pkg/enums"
)

// EventTypeBinding pins a subscription to an event-type code, optionally at a
// specific spec version.
type EventTypeBinding struct {
	Code        string `json:"code"`
	SpecVersion string `json:"specVersion,omitempty"`
}

// ConfigEntry is one ordered key/value override applied to the delivery target.
type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Subscription binds event types to a delivery target. The dispatcher reads
// these rows; only the admin API mutates them.
type Subscription struct {
	ID                uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code              string                   `gorm:"column:code;not null;uniqueIndex:ux_subscriptions_code"`
	EventTypeBindings json.RawMessage          `gorm:"column:event_type_bindings;type:jsonb;not null"`
	Target            string                   `gorm:"column:target;not null"`
	QueueName         string                   `gorm:"column:queue_name"`
	CustomConfig      json.RawMessage          `gorm:"column:custom_config;type:jsonb"`
	ClientID          *uuid.UUID               `gorm:"column:client_id;type:uuid"`
	ClientScoped      bool                     `gorm:"column:client_scoped;not null;default:false"`
	DispatchPoolID    uuid.UUID                `gorm:"column:dispatch_pool_id;type:uuid;not null"`
	MessageGroup      string                   `gorm:"column:message_group"`
	Sequence          int                      `gorm:"column:sequence;not null;default:0"`
	Mode              enums.DispatchMode       `gorm:"column:mode;type:dispatch_mode_enum;not null;default:'IMMEDIATE'"`
	DataOnly          bool                     `gorm:"column:data_only;not null;default:false"`
	DelaySeconds      int                      `gorm:"column:delay_seconds;not null;default:0"`
	TimeoutSeconds    int                      `gorm:"column:timeout_seconds;not null;default:30"`
	MaxRetries        int                      `gorm:"column:max_retries;not null;default:3"`
	MaxAgeSeconds     int                      `gorm:"column:max_age_seconds;not null;default:86400"`
	Status            enums.SubscriptionStatus `gorm:"column:status;type:subscription_status_enum;not null;default:'ACTIVE'"`
	CreatedAt         time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides the default GORM naming.
func (Subscription) TableName() string { return "subscriptions" }

// Bindings decodes the event-type bindings column.
func (s *Subscription) Bindings() ([]EventTypeBinding, error) {
	if len(s.EventTypeBindings) == 0 {
		return nil, nil
	}
	var bindings []EventTypeBinding
	if err := json.Unmarshal(s.EventTypeBindings, &bindings); err != nil {
		return nil, err
	}
	return bindings, nil
}

// ConfigEntries decodes the custom config column, preserving order.
func (s *Subscription) ConfigEntries() ([]ConfigEntry, error) {
	if len(s.CustomConfig) == 0 {
		return nil, nil
	}
	var entries []ConfigEntry
	if err := json.Unmarshal(s.CustomConfig, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

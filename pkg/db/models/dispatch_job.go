package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/torresline/eventgate/pkg/enums"
)

// DispatchJob is one unit of outbound delivery work, created exactly once per
// (event, matched subscription) pair inside the outbox transaction. Only the
// delivery worker mutates status and scheduling fields; rows are never deleted.
type DispatchJob struct {
	ID                 uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	ExternalID         string                 `gorm:"column:external_id"`
	Source             string                 `gorm:"column:source;not null"`
	Code               string                 `gorm:"column:code;not null"`
	Subject            string                 `gorm:"column:subject"`
	EventID            uuid.UUID              `gorm:"column:event_id;type:uuid;not null;index:idx_dispatch_jobs_event"`
	SubscriptionID     uuid.UUID              `gorm:"column:subscription_id;type:uuid;not null"`
	CorrelationID      string                 `gorm:"column:correlation_id"`
	TargetURL          string                 `gorm:"column:target_url;not null"`
	Protocol           enums.DispatchProtocol `gorm:"column:protocol;not null;default:'HTTP_WEBHOOK'"`
	Payload            json.RawMessage        `gorm:"column:payload;type:jsonb"`
	PayloadContentType string                 `gorm:"column:payload_content_type;not null;default:'application/json'"`
	DataOnly           bool                   `gorm:"column:data_only;not null;default:false"`
	ClientID           *uuid.UUID             `gorm:"column:client_id;type:uuid"`
	DispatchPoolID     uuid.UUID              `gorm:"column:dispatch_pool_id;type:uuid;not null;index:idx_dispatch_jobs_pool_group"`
	MessageGroup       string                 `gorm:"column:message_group;not null;index:idx_dispatch_jobs_pool_group"`
	Sequence           int                    `gorm:"column:sequence;not null;default:0"`
	Mode               enums.DispatchMode     `gorm:"column:mode;type:dispatch_mode_enum;not null"`
	TimeoutSeconds     int                    `gorm:"column:timeout_seconds;not null;default:30"`
	Status             enums.DispatchStatus   `gorm:"column:status;type:dispatch_status_enum;not null;index:idx_dispatch_jobs_status_scheduled"`
	MaxRetries         int                    `gorm:"column:max_retries;not null;default:3"`
	RetryStrategy      enums.RetryStrategy    `gorm:"column:retry_strategy;not null;default:'exponential'"`
	AttemptCount       int                    `gorm:"column:attempt_count;not null;default:0"`
	ScheduledFor       time.Time              `gorm:"column:scheduled_for;not null;index:idx_dispatch_jobs_status_scheduled"`
	ExpiresAt          *time.Time             `gorm:"column:expires_at"`
	IdempotencyKey     string                 `gorm:"column:idempotency_key;not null;uniqueIndex:ux_dispatch_jobs_idempotency_key"`
	LastError          *string                `gorm:"column:last_error"`
	LastAttemptAt      *time.Time             `gorm:"column:last_attempt_at"`
	CompletedAt        *time.Time             `gorm:"column:completed_at"`
	CreatedAt          time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides the default GORM naming.
func (DispatchJob) TableName() string { return "dispatch_jobs" }

// IsTerminal reports whether the job admits no further transitions.
func (j *DispatchJob) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// IsExpired reports whether the job's delivery window has closed at the given
// instant. Jobs without an expiry never expire.
func (j *DispatchJob) IsExpired(now time.Time) bool {
	return j.ExpiresAt != nil && !now.Before(*j.ExpiresAt)
}

// DispatchJobFeed is the append-only projection feed row written alongside
// each dispatch job inside the outbox transaction.
type DispatchJobFeed struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	DispatchJobID uuid.UUID       `gorm:"column:dispatch_job_id;type:uuid;not null"`
	Snapshot      json.RawMessage `gorm:"column:snapshot;type:jsonb;not null"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// TableName overrides the default GORM naming.
func (DispatchJobFeed) TableName() string { return "dispatch_job_projection_feed" }

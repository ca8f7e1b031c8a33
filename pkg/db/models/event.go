package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is an immutable domain fact recorded at ingestion. Rows are never
// mutated or deleted by the dispatcher.
type Event struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	SpecVersion     string          `gorm:"column:spec_version;not null;default:'1.0'"`
	Type            string          `gorm:"column:type;not null;index:idx_events_type"`
	Source          string          `gorm:"column:source;not null"`
	Subject         string          `gorm:"column:subject"`
	Time            time.Time       `gorm:"column:time;not null"`
	Data            json.RawMessage `gorm:"column:data;type:jsonb"`
	CorrelationID   string          `gorm:"column:correlation_id"`
	CausationID     string          `gorm:"column:causation_id"`
	DeduplicationID *string         `gorm:"column:deduplication_id;uniqueIndex:ux_events_deduplication_id"`
	MessageGroup    string          `gorm:"column:message_group"`
	ContextData     json.RawMessage `gorm:"column:context_data;type:jsonb"`
	ClientID        *uuid.UUID      `gorm:"column:client_id;type:uuid"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// TableName overrides the default GORM naming.
func (Event) TableName() string { return "events" }

// EventFeed is the append-only projection feed row written alongside each event.
type EventFeed struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID   uuid.UUID       `gorm:"column:event_id;type:uuid;not null"`
	EventType string          `gorm:"column:event_type;not null"`
	Snapshot  json.RawMessage `gorm:"column:snapshot;type:jsonb;not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// TableName overrides the default GORM naming.
func (EventFeed) TableName() string { return "event_projection_feed" }

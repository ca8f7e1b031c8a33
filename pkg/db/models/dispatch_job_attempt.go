package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/torresline/eventgate/pkg/enums"
)

// DispatchJobAttempt records one delivery attempt. Rows are append-only and
// never mutated after insert.
type DispatchJobAttempt struct {
	ID             uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	DispatchJobID  uuid.UUID               `gorm:"column:dispatch_job_id;type:uuid;not null;index:idx_attempts_job"`
	AttemptNumber  int                     `gorm:"column:attempt_number;not null"`
	Status         enums.AttemptStatus     `gorm:"column:status;type:attempt_status_enum;not null"`
	ResponseCode   *int                    `gorm:"column:response_code"`
	ResponseBody   string                  `gorm:"column:response_body"`
	ErrorMessage   *string                 `gorm:"column:error_message"`
	ErrorType      *enums.AttemptErrorType `gorm:"column:error_type"`
	DurationMillis int64                   `gorm:"column:duration_millis;not null;default:0"`
	AttemptedAt    time.Time               `gorm:"column:attempted_at;not null"`
	CompletedAt    time.Time               `gorm:"column:completed_at;not null"`
	CreatedAt      time.Time               `gorm:"column:created_at;autoCreateTime"`
}

// TableName overrides the default GORM naming.
func (DispatchJobAttempt) TableName() string { return "dispatch_job_attempts" }

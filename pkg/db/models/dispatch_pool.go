package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/torresline/eventgate/pkg/enums"
)

// DispatchPool is a resource lane bounding delivery rate and concurrency for
// the jobs assigned to it. Read-only to the dispatcher.
type DispatchPool struct {
	ID          uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code        string           `gorm:"column:code;not null;uniqueIndex:ux_dispatch_pools_code"`
	RateLimit   int              `gorm:"column:rate_limit;not null;default:10"`
	Concurrency int              `gorm:"column:concurrency;not null;default:5"`
	ClientID    *uuid.UUID       `gorm:"column:client_id;type:uuid"`
	Status      enums.PoolStatus `gorm:"column:status;type:pool_status_enum;not null;default:'ACTIVE'"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides the default GORM naming.
func (DispatchPool) TableName() string { return "dispatch_pools" }

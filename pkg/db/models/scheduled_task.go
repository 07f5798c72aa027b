package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
)

// ScheduledTask is a durable delayed action. DedupeKey makes scheduling
// idempotent across retries and restarts.
type ScheduledTask struct {
	ID          uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	Kind        enums.ScheduledTaskKind   `gorm:"column:kind;type:scheduled_task_kind;not null"`
	DedupeKey   string                    `gorm:"column:dedupe_key;not null"`
	DueAt       time.Time                 `gorm:"column:due_at;not null"`
	Payload     json.RawMessage           `gorm:"column:payload;type:jsonb;not null"`
	Status      enums.ScheduledTaskStatus `gorm:"column:status;type:scheduled_task_status;not null"`
	Attempts    int                       `gorm:"column:attempts;not null;default:0"`
	LastError   *string                   `gorm:"column:last_error"`
	LockedUntil *time.Time                `gorm:"column:locked_until"`
	ProcessedAt *time.Time                `gorm:"column:processed_at"`
	CreatedAt   time.Time                 `gorm:"column:created_at"`
	UpdatedAt   time.Time                 `gorm:"column:updated_at"`
}

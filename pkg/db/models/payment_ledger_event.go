package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
)

// PaymentLedgerEvent is an append-only record of a hold lifecycle step.
type PaymentLedgerEvent struct {
	ID            uuid.UUID                    `gorm:"column:id;type:uuid;primaryKey"`
	ReferenceType enums.PaymentReferenceType   `gorm:"column:reference_type;type:payment_reference_type;not null"`
	ReferenceID   uuid.UUID                    `gorm:"column:reference_id;type:uuid;not null"`
	HoldID        *string                      `gorm:"column:hold_id"`
	Provider      string                       `gorm:"column:provider;not null"`
	Type          enums.PaymentLedgerEventType `gorm:"column:type;type:payment_ledger_event_type;not null"`
	AmountMinor   int64                        `gorm:"column:amount_minor;not null"`
	Currency      string                       `gorm:"column:currency;not null"`
	Metadata      json.RawMessage              `gorm:"column:metadata;type:jsonb"`
	CreatedAt     time.Time                    `gorm:"column:created_at"`
}

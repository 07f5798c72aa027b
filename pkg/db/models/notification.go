package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
)

// Notification is written once per (event, recipient, type) by the fan-out
// consumer; only ReadAt changes afterwards.
type Notification struct {
	ID              uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	EventID         uuid.UUID              `gorm:"column:event_id;type:uuid;not null"`
	RecipientUserID uuid.UUID              `gorm:"column:recipient_user_id;type:uuid;not null"`
	Type            enums.NotificationType `gorm:"column:type;type:notification_type;not null"`
	Title           string                 `gorm:"column:title;not null"`
	Message         string                 `gorm:"column:message;not null"`
	ListingID       *uuid.UUID             `gorm:"column:listing_id;type:uuid"`
	BidID           *uuid.UUID             `gorm:"column:bid_id;type:uuid"`
	EscrowID        *uuid.UUID             `gorm:"column:escrow_id;type:uuid"`
	Payload         json.RawMessage        `gorm:"column:payload;type:jsonb"`
	ReadAt          *time.Time             `gorm:"column:read_at"`
	CreatedAt       time.Time              `gorm:"column:created_at"`
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
)

// EscrowTransaction is a settlement workflow instance. Only one non-terminal
// row may exist per listing (partial unique index).
type EscrowTransaction struct {
	ID                 uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	ListingID          uuid.UUID          `gorm:"column:listing_id;type:uuid;not null"`
	BuyerID            uuid.UUID          `gorm:"column:buyer_id;type:uuid;not null"`
	SellerID           uuid.UUID          `gorm:"column:seller_id;type:uuid;not null"`
	BidID              *uuid.UUID         `gorm:"column:bid_id;type:uuid"`
	OfferID            *uuid.UUID         `gorm:"column:offer_id;type:uuid"`
	Amount             decimal.Decimal    `gorm:"column:amount;type:numeric(14,2);not null"`
	PlatformFee        decimal.Decimal    `gorm:"column:platform_fee;type:numeric(14,2);not null"`
	EscrowFee          decimal.Decimal    `gorm:"column:escrow_fee;type:numeric(14,2);not null"`
	Currency           string             `gorm:"column:currency;not null"`
	Status             enums.EscrowStatus `gorm:"column:status;type:escrow_status;not null"`
	ConversationID     uuid.UUID          `gorm:"column:conversation_id;type:uuid;not null"`
	PaymentReferenceID *string            `gorm:"column:payment_reference_id"`
	PaymentClientToken *string            `gorm:"column:payment_client_token"`
	DeliveryDetails    *string            `gorm:"column:delivery_details"`
	DisputeReason      *string            `gorm:"column:dispute_reason"`
	StateEnteredAt     time.Time          `gorm:"column:state_entered_at;not null"`
	DeadlineAt         *time.Time         `gorm:"column:deadline_at"`
	CompletedAt        *time.Time         `gorm:"column:completed_at"`
	CreatedAt          time.Time          `gorm:"column:created_at"`
	UpdatedAt          time.Time          `gorm:"column:updated_at"`
}

// Total is the amount the buyer's deposit hold covers.
func (e EscrowTransaction) Total() decimal.Decimal {
	return e.Amount.Add(e.PlatformFee).Add(e.EscrowFee)
}

// HoldID is the deposit hold reference, empty when none is stored.
func (e EscrowTransaction) HoldID() string {
	if e.PaymentReferenceID == nil {
		return ""
	}
	return *e.PaymentReferenceID
}

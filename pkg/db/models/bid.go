package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
)

// Bid is a buyer's commitment on an auction listing.
type Bid struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	ListingID          uuid.UUID           `gorm:"column:listing_id;type:uuid;not null"`
	BidderID           uuid.UUID           `gorm:"column:bidder_id;type:uuid;not null"`
	Amount             decimal.Decimal     `gorm:"column:amount;type:numeric(14,2);not null"`
	Currency           string              `gorm:"column:currency;not null"`
	Status             enums.BidStatus     `gorm:"column:status;type:bid_status;not null"`
	PaymentStatus      enums.PaymentStatus `gorm:"column:payment_status;type:payment_status;not null"`
	PaymentReferenceID *string             `gorm:"column:payment_reference_id"`
	CreatedAt          time.Time           `gorm:"column:created_at"`
	UpdatedAt          time.Time           `gorm:"column:updated_at"`
	CancelledAt        *time.Time          `gorm:"column:cancelled_at"`
}

// Offer is a negotiated proposal; a bidder has at most one open offer per
// listing and resubmissions update it in place.
type Offer struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	ListingID          uuid.UUID           `gorm:"column:listing_id;type:uuid;not null"`
	BidderID           uuid.UUID           `gorm:"column:bidder_id;type:uuid;not null"`
	Amount             decimal.Decimal     `gorm:"column:amount;type:numeric(14,2);not null"`
	Currency           string              `gorm:"column:currency;not null"`
	Message            string              `gorm:"column:message;not null;default:''"`
	Status             enums.OfferStatus   `gorm:"column:status;type:offer_status;not null"`
	PaymentStatus      enums.PaymentStatus `gorm:"column:payment_status;type:payment_status;not null"`
	PaymentReferenceID *string             `gorm:"column:payment_reference_id"`
	CreatedAt          time.Time           `gorm:"column:created_at"`
	UpdatedAt          time.Time           `gorm:"column:updated_at"`
}

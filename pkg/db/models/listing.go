package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
)

// Listing is the authoritative row for a sellable item. The highest-bid
// fields and Version are only written through the bid ledger's
// compare-and-swap.
type Listing struct {
	ID                       uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	SellerID                 uuid.UUID           `gorm:"column:seller_id;type:uuid;not null"`
	Title                    string              `gorm:"column:title;not null"`
	Description              string              `gorm:"column:description;not null;default:''"`
	Type                     enums.ListingType   `gorm:"column:listing_type;type:listing_type;not null"`
	Status                   enums.ListingStatus `gorm:"column:status;type:listing_status;not null"`
	Currency                 string              `gorm:"column:currency;not null"`
	StartingPrice            decimal.Decimal     `gorm:"column:starting_price;type:numeric(14,2);not null"`
	ReservePrice             *decimal.Decimal    `gorm:"column:reserve_price;type:numeric(14,2)"`
	PriceDecrement           decimal.Decimal     `gorm:"column:price_decrement;type:numeric(14,2);not null"`
	DecrementIntervalSeconds *int64              `gorm:"column:decrement_interval_seconds"`
	AuctionEndTime           *time.Time          `gorm:"column:auction_end_time"`
	CurrentPrice             decimal.Decimal     `gorm:"column:current_price;type:numeric(14,2);not null"`
	HighestBid               *decimal.Decimal    `gorm:"column:highest_bid;type:numeric(14,2)"`
	HighestBidderID          *uuid.UUID          `gorm:"column:highest_bidder_id;type:uuid"`
	HighestBidID             *uuid.UUID          `gorm:"column:highest_bid_id;type:uuid"`
	Version                  int64               `gorm:"column:version;not null;default:0"`
	EndedAt                  *time.Time          `gorm:"column:ended_at"`
	CreatedAt                time.Time           `gorm:"column:created_at"`
	UpdatedAt                time.Time           `gorm:"column:updated_at"`
}

// DecrementInterval returns the configured decay step, zero when unset.
func (l Listing) DecrementInterval() time.Duration {
	if l.DecrementIntervalSeconds == nil {
		return 0
	}
	return time.Duration(*l.DecrementIntervalSeconds) * time.Second
}

// HasWinner reports whether a highest bidder has been recorded.
func (l Listing) HasWinner() bool {
	return l.HighestBid != nil && l.HighestBidderID != nil
}

// ListingWatch records a user's interest in price changes on a listing.
type ListingWatch struct {
	ID                uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	ListingID         uuid.UUID        `gorm:"column:listing_id;type:uuid;not null"`
	UserID            uuid.UUID        `gorm:"column:user_id;type:uuid;not null"`
	PriceThreshold    *decimal.Decimal `gorm:"column:price_threshold;type:numeric(14,2)"`
	LastNotifiedPrice *decimal.Decimal `gorm:"column:last_notified_price;type:numeric(14,2)"`
	CreatedAt         time.Time        `gorm:"column:created_at"`
}

// Package payloads defines the data section of every outbox event. The
// notification fan-out derives recipients from these fields alone, so each
// payload carries the user ids it concerns.
package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
)

// BidPlacedEvent is emitted when the ledger records a new highest bid.
type BidPlacedEvent struct {
	ListingID        uuid.UUID         `json:"listingId"`
	ListingTitle     string            `json:"listingTitle"`
	ListingType      enums.ListingType `json:"listingType"`
	SellerID         uuid.UUID         `json:"sellerId"`
	BidID            uuid.UUID         `json:"bidId"`
	BidderID         uuid.UUID         `json:"bidderId"`
	Amount           decimal.Decimal   `json:"amount"`
	Currency         string            `json:"currency"`
	PreviousBidID    *uuid.UUID        `json:"previousBidId,omitempty"`
	PreviousBidderID *uuid.UUID        `json:"previousBidderId,omitempty"`
	PreviousAmount   *decimal.Decimal  `json:"previousAmount,omitempty"`
	// Won is set when the bid closed a Dutch auction.
	Won bool `json:"won"`
}

type OfferSubmittedEvent struct {
	ListingID    uuid.UUID       `json:"listingId"`
	ListingTitle string          `json:"listingTitle"`
	SellerID     uuid.UUID       `json:"sellerId"`
	OfferID      uuid.UUID       `json:"offerId"`
	BidderID     uuid.UUID       `json:"bidderId"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Message      string          `json:"message,omitempty"`
	Updated      bool            `json:"updated"`
}

type OfferAcceptedEvent struct {
	ListingID    uuid.UUID       `json:"listingId"`
	ListingTitle string          `json:"listingTitle"`
	SellerID     uuid.UUID       `json:"sellerId"`
	OfferID      uuid.UUID       `json:"offerId"`
	BuyerID      uuid.UUID       `json:"buyerId"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	EscrowID     uuid.UUID       `json:"escrowId"`
}

// ListingPriceDroppedEvent targets watchers whose threshold the new Dutch
// price has crossed.
type ListingPriceDroppedEvent struct {
	ListingID    uuid.UUID       `json:"listingId"`
	ListingTitle string          `json:"listingTitle"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	WatcherIDs   []uuid.UUID     `json:"watcherIds"`
}

type AuctionEndingSoonEvent struct {
	ListingID      uuid.UUID   `json:"listingId"`
	ListingTitle   string      `json:"listingTitle"`
	AuctionEndTime time.Time   `json:"auctionEndTime"`
	RecipientIDs   []uuid.UUID `json:"recipientIds"`
}

type AuctionEndedEvent struct {
	ListingID    uuid.UUID           `json:"listingId"`
	ListingTitle string              `json:"listingTitle"`
	SellerID     uuid.UUID           `json:"sellerId"`
	Outcome      enums.ListingStatus `json:"outcome"`
	WinnerID     *uuid.UUID          `json:"winnerId,omitempty"`
	WinningBid   *decimal.Decimal    `json:"winningBid,omitempty"`
	Currency     string              `json:"currency"`
	BidderIDs    []uuid.UUID         `json:"bidderIds"`
	EscrowID     *uuid.UUID          `json:"escrowId,omitempty"`
	ReserveMet   bool                `json:"reserveMet"`
}

type EscrowCreatedEvent struct {
	EscrowID     uuid.UUID       `json:"escrowId"`
	ListingID    uuid.UUID       `json:"listingId"`
	ListingTitle string          `json:"listingTitle"`
	BuyerID      uuid.UUID       `json:"buyerId"`
	SellerID     uuid.UUID       `json:"sellerId"`
	Amount       decimal.Decimal `json:"amount"`
	PlatformFee  decimal.Decimal `json:"platformFee"`
	EscrowFee    decimal.Decimal `json:"escrowFee"`
	Currency     string          `json:"currency"`
	DeadlineAt   *time.Time      `json:"deadlineAt,omitempty"`
}

type EscrowTransitionedEvent struct {
	EscrowID   uuid.UUID          `json:"escrowId"`
	ListingID  uuid.UUID          `json:"listingId"`
	BuyerID    uuid.UUID          `json:"buyerId"`
	SellerID   uuid.UUID          `json:"sellerId"`
	Action     enums.EscrowAction `json:"action"`
	From       enums.EscrowStatus `json:"from"`
	To         enums.EscrowStatus `json:"to"`
	ActorRole  enums.EscrowRole   `json:"actorRole"`
	Reason     string             `json:"reason,omitempty"`
	DeadlineAt *time.Time         `json:"deadlineAt,omitempty"`
}

type EscrowReminderEvent struct {
	EscrowID       uuid.UUID          `json:"escrowId"`
	ListingID      uuid.UUID          `json:"listingId"`
	Status         enums.EscrowStatus `json:"status"`
	RecipientID    uuid.UUID          `json:"recipientId"`
	AwaitedRole    enums.EscrowRole   `json:"awaitedRole"`
	HoursRemaining int                `json:"hoursRemaining"`
	DeadlineAt     time.Time          `json:"deadlineAt"`
}

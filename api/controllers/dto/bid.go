package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/auctionhouse-backend/internal/payments"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
)

type Bid struct {
	ID            uuid.UUID           `json:"id"`
	ListingID     uuid.UUID           `json:"listingId"`
	BidderID      uuid.UUID           `json:"bidderId"`
	Amount        decimal.Decimal     `json:"amount"`
	Currency      string              `json:"currency"`
	Status        enums.BidStatus     `json:"status"`
	PaymentStatus enums.PaymentStatus `json:"paymentStatus"`
	CreatedAt     time.Time           `json:"createdAt"`
	CancelledAt   *time.Time          `json:"cancelledAt,omitempty"`
}

func FromBid(b *models.Bid) Bid {
	return Bid{
		ID:            b.ID,
		ListingID:     b.ListingID,
		BidderID:      b.BidderID,
		Amount:        b.Amount,
		Currency:      b.Currency,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		CreatedAt:     b.CreatedAt,
		CancelledAt:   b.CancelledAt,
	}
}

// BidPlacement is returned from bid placement and authorization. Hold is
// present when a new hold was placed and carries the client token the
// buyer needs to confirm it.
type BidPlacement struct {
	Bid     Bid            `json:"bid"`
	Hold    *payments.Hold `json:"hold,omitempty"`
	Listing *ListingState  `json:"listing,omitempty"`
}

// ListingState is the slice of a listing a bidder needs after placing a bid.
type ListingState struct {
	Status          enums.ListingStatus `json:"status"`
	CurrentPrice    decimal.Decimal     `json:"currentPrice"`
	HighestBid      *decimal.Decimal    `json:"highestBid,omitempty"`
	HighestBidderID *uuid.UUID          `json:"highestBidderId,omitempty"`
}

func FromListingState(l *models.Listing) *ListingState {
	if l == nil {
		return nil
	}
	return &ListingState{
		Status:          l.Status,
		CurrentPrice:    l.CurrentPrice,
		HighestBid:      l.HighestBid,
		HighestBidderID: l.HighestBidderID,
	}
}

type Offer struct {
	ID            uuid.UUID           `json:"id"`
	ListingID     uuid.UUID           `json:"listingId"`
	BidderID      uuid.UUID           `json:"bidderId"`
	Amount        decimal.Decimal     `json:"amount"`
	Currency      string              `json:"currency"`
	Message       string              `json:"message,omitempty"`
	Status        enums.OfferStatus   `json:"status"`
	PaymentStatus enums.PaymentStatus `json:"paymentStatus"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

func FromOffer(o *models.Offer) Offer {
	return Offer{
		ID:            o.ID,
		ListingID:     o.ListingID,
		BidderID:      o.BidderID,
		Amount:        o.Amount,
		Currency:      o.Currency,
		Message:       o.Message,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

type OfferSubmission struct {
	Offer Offer          `json:"offer"`
	Hold  *payments.Hold `json:"hold,omitempty"`
}

type OfferAcceptance struct {
	Offer  Offer  `json:"offer"`
	Escrow Escrow `json:"escrow"`
}

package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/auctionhouse-backend/internal/listings"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
)

// Listing is the public listing view. The reserve amount is only shown to
// the seller; everyone else sees whether it has been met.
type Listing struct {
	ID                       uuid.UUID           `json:"id"`
	SellerID                 uuid.UUID           `json:"sellerId"`
	Title                    string              `json:"title"`
	Description              string              `json:"description"`
	Type                     enums.ListingType   `json:"listingType"`
	Status                   enums.ListingStatus `json:"status"`
	Currency                 string              `json:"currency"`
	StartingPrice            decimal.Decimal     `json:"startingPrice"`
	CurrentPrice             decimal.Decimal     `json:"currentPrice"`
	ReservePrice             *decimal.Decimal    `json:"reservePrice,omitempty"`
	HasReserve               bool                `json:"hasReserve"`
	ReserveMet               bool                `json:"reserveMet"`
	PriceDecrement           *decimal.Decimal    `json:"priceDecrement,omitempty"`
	DecrementIntervalSeconds *int64              `json:"decrementIntervalSeconds,omitempty"`
	NextPriceDrop            *time.Time          `json:"nextPriceDrop,omitempty"`
	AuctionEndTime           *time.Time          `json:"auctionEndTime,omitempty"`
	HighestBid               *decimal.Decimal    `json:"highestBid,omitempty"`
	HighestBidderID          *uuid.UUID          `json:"highestBidderId,omitempty"`
	EndedAt                  *time.Time          `json:"endedAt,omitempty"`
	CreatedAt                time.Time           `json:"createdAt"`
}

func FromListingView(view *listings.View, viewerID uuid.UUID) Listing {
	l := view.Listing
	out := Listing{
		ID:                       l.ID,
		SellerID:                 l.SellerID,
		Title:                    l.Title,
		Description:              l.Description,
		Type:                     l.Type,
		Status:                   view.EffectiveStatus,
		Currency:                 l.Currency,
		StartingPrice:            l.StartingPrice,
		CurrentPrice:             view.CurrentPrice,
		HasReserve:               l.ReservePrice != nil,
		DecrementIntervalSeconds: l.DecrementIntervalSeconds,
		NextPriceDrop:            view.NextPriceDrop,
		AuctionEndTime:           l.AuctionEndTime,
		HighestBid:               l.HighestBid,
		HighestBidderID:          l.HighestBidderID,
		EndedAt:                  l.EndedAt,
		CreatedAt:                l.CreatedAt,
	}
	if l.ReservePrice == nil {
		out.ReserveMet = true
	} else if l.HighestBid != nil {
		out.ReserveMet = l.HighestBid.GreaterThanOrEqual(*l.ReservePrice)
	}
	if viewerID == l.SellerID {
		out.ReservePrice = l.ReservePrice
	}
	if l.Type == enums.ListingTypeDutchAuction {
		decrement := l.PriceDecrement
		out.PriceDecrement = &decrement
	}
	return out
}

type Watch struct {
	ListingID         uuid.UUID        `json:"listingId"`
	PriceThreshold    *decimal.Decimal `json:"priceThreshold,omitempty"`
	LastNotifiedPrice *decimal.Decimal `json:"lastNotifiedPrice,omitempty"`
	CreatedAt         time.Time        `json:"createdAt"`
}

func FromWatch(w *models.ListingWatch) Watch {
	return Watch{
		ListingID:         w.ListingID,
		PriceThreshold:    w.PriceThreshold,
		LastNotifiedPrice: w.LastNotifiedPrice,
		CreatedAt:         w.CreatedAt,
	}
}

package controllers

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/auctionhouse-backend/internal/bids"
	"github.com/angelmondragon/auctionhouse-backend/internal/escrow"
	"github.com/angelmondragon/auctionhouse-backend/internal/listings"
	"github.com/angelmondragon/auctionhouse-backend/internal/payments"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
)

// ListingService is the listing surface the API drives.
type ListingService interface {
	Create(ctx context.Context, in listings.CreateInput) (*listings.View, error)
	Get(ctx context.Context, id uuid.UUID) (*listings.View, error)
	Watch(ctx context.Context, listingID, userID uuid.UUID, threshold *decimal.Decimal) (*models.ListingWatch, error)
	Unwatch(ctx context.Context, listingID, userID uuid.UUID) error
}

// BidService covers bids and offers; both go through the bid ledger.
type BidService interface {
	PlaceBid(ctx context.Context, in bids.PlaceBidInput) (*bids.BidResult, error)
	AuthorizeBid(ctx context.Context, bidID, userID uuid.UUID, sourceID string) (*bids.BidResult, error)
	CancelBid(ctx context.Context, bidID, userID uuid.UUID) (*models.Bid, error)
	SubmitOffer(ctx context.Context, in bids.SubmitOfferInput) (*bids.OfferResult, error)
	CancelOffer(ctx context.Context, offerID, userID uuid.UUID) (*models.Offer, error)
	AcceptOffer(ctx context.Context, offerID, sellerID uuid.UUID) (*bids.AcceptOfferResult, error)
}

type EscrowService interface {
	Get(ctx context.Context, escrowID, userID uuid.UUID) (*models.EscrowTransaction, error)
	Transition(ctx context.Context, in escrow.TransitionInput) (*models.EscrowTransaction, error)
	AuthorizeDeposit(ctx context.Context, escrowID uuid.UUID, actorID *uuid.UUID, sourceID string) (*payments.Hold, *models.EscrowTransaction, error)
}

var (
	_ ListingService = (*listings.Service)(nil)
	_ BidService     = (*bids.Service)(nil)
	_ EscrowService  = (*escrow.Service)(nil)
)

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

type fakeListingService struct {
	createFn  func(ctx context.Context, in listings.CreateInput) (*listings.View, error)
	getFn     func(ctx context.Context, id uuid.UUID) (*listings.View, error)
	watchFn   func(ctx context.Context, listingID, userID uuid.UUID, threshold *decimal.Decimal) (*models.ListingWatch, error)
	unwatchFn func(ctx context.Context, listingID, userID uuid.UUID) error
}

func (f *fakeListingService) Create(ctx context.Context, in listings.CreateInput) (*listings.View, error) {
	return f.createFn(ctx, in)
}

func (f *fakeListingService) Get(ctx context.Context, id uuid.UUID) (*listings.View, error) {
	return f.getFn(ctx, id)
}

func (f *fakeListingService) Watch(ctx context.Context, listingID, userID uuid.UUID, threshold *decimal.Decimal) (*models.ListingWatch, error) {
	return f.watchFn(ctx, listingID, userID, threshold)
}

func (f *fakeListingService) Unwatch(ctx context.Context, listingID, userID uuid.UUID) error {
	return f.unwatchFn(ctx, listingID, userID)
}

type fakeBidService struct {
	placeFn       func(ctx context.Context, in bids.PlaceBidInput) (*bids.BidResult, error)
	authorizeFn   func(ctx context.Context, bidID, userID uuid.UUID, sourceID string) (*bids.BidResult, error)
	cancelBidFn   func(ctx context.Context, bidID, userID uuid.UUID) (*models.Bid, error)
	submitFn      func(ctx context.Context, in bids.SubmitOfferInput) (*bids.OfferResult, error)
	cancelOfferFn func(ctx context.Context, offerID, userID uuid.UUID) (*models.Offer, error)
	acceptFn      func(ctx context.Context, offerID, sellerID uuid.UUID) (*bids.AcceptOfferResult, error)
}

func (f *fakeBidService) PlaceBid(ctx context.Context, in bids.PlaceBidInput) (*bids.BidResult, error) {
	return f.placeFn(ctx, in)
}

func (f *fakeBidService) AuthorizeBid(ctx context.Context, bidID, userID uuid.UUID, sourceID string) (*bids.BidResult, error) {
	return f.authorizeFn(ctx, bidID, userID, sourceID)
}

func (f *fakeBidService) CancelBid(ctx context.Context, bidID, userID uuid.UUID) (*models.Bid, error) {
	return f.cancelBidFn(ctx, bidID, userID)
}

func (f *fakeBidService) SubmitOffer(ctx context.Context, in bids.SubmitOfferInput) (*bids.OfferResult, error) {
	return f.submitFn(ctx, in)
}

func (f *fakeBidService) CancelOffer(ctx context.Context, offerID, userID uuid.UUID) (*models.Offer, error) {
	return f.cancelOfferFn(ctx, offerID, userID)
}

func (f *fakeBidService) AcceptOffer(ctx context.Context, offerID, sellerID uuid.UUID) (*bids.AcceptOfferResult, error) {
	return f.acceptFn(ctx, offerID, sellerID)
}

type fakeEscrowService struct {
	getFn        func(ctx context.Context, escrowID, userID uuid.UUID) (*models.EscrowTransaction, error)
	transitionFn func(ctx context.Context, in escrow.TransitionInput) (*models.EscrowTransaction, error)
	depositFn    func(ctx context.Context, escrowID uuid.UUID, actorID *uuid.UUID, sourceID string) (*payments.Hold, *models.EscrowTransaction, error)
}

func (f *fakeEscrowService) Get(ctx context.Context, escrowID, userID uuid.UUID) (*models.EscrowTransaction, error) {
	return f.getFn(ctx, escrowID, userID)
}

func (f *fakeEscrowService) Transition(ctx context.Context, in escrow.TransitionInput) (*models.EscrowTransaction, error) {
	return f.transitionFn(ctx, in)
}

func (f *fakeEscrowService) AuthorizeDeposit(ctx context.Context, escrowID uuid.UUID, actorID *uuid.UUID, sourceID string) (*payments.Hold, *models.EscrowTransaction, error) {
	return f.depositFn(ctx, escrowID, actorID, sourceID)
}

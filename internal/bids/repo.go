package bids

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
)

// Repository persists listings' bid state, bids and offers. Writes to the
// listing's highest-bid fields only go through SwapListing.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindListing(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	SwapListing(ctx context.Context, id uuid.UUID, version int64, swap ListingSwap) (bool, error)

	CreateBid(ctx context.Context, bid *models.Bid) error
	FindBid(ctx context.Context, id uuid.UUID) (*models.Bid, error)
	ActivateBid(ctx context.Context, id uuid.UUID, holdID string, at time.Time) (bool, error)
	CancelBid(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	CancelPendingBid(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkBidHoldReleased(ctx context.Context, id uuid.UUID, at time.Time) error
	ListLiveBids(ctx context.Context, listingID uuid.UUID) ([]models.Bid, error)
	ListBidderIDs(ctx context.Context, listingID uuid.UUID) ([]uuid.UUID, error)

	CreateOffer(ctx context.Context, offer *models.Offer) error
	FindOffer(ctx context.Context, id uuid.UUID) (*models.Offer, error)
	FindOpenOffer(ctx context.Context, listingID, bidderID uuid.UUID) (*models.Offer, error)
	ReviseOffer(ctx context.Context, id uuid.UUID, amount decimal.Decimal, message string, keepHold bool, at time.Time) (bool, error)
	ActivateOffer(ctx context.Context, id uuid.UUID, amount decimal.Decimal, holdID string, at time.Time) (bool, error)
	CancelOffer(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	AcceptOffer(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkOfferHoldReleased(ctx context.Context, id uuid.UUID, at time.Time) error
	ListOpenOffers(ctx context.Context, listingID uuid.UUID) ([]models.Offer, error)
}

// ListingSwap is the column set a successful compare-and-swap writes.
type ListingSwap struct {
	HighestBid      *decimal.Decimal
	HighestBidderID *uuid.UUID
	HighestBidID    *uuid.UUID
	CurrentPrice    decimal.Decimal
	Status          enums.ListingStatus
	EndedAt         *time.Time
	At              time.Time
}

var openOfferStatuses = []enums.OfferStatus{enums.OfferStatusPending, enums.OfferStatusActive}
var liveBidStatuses = []enums.BidStatus{enums.BidStatusPending, enums.BidStatusActive}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindListing(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&listing).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

// SwapListing applies swap only if the row still carries version. The
// version is bumped on success.
func (r *repository) SwapListing(ctx context.Context, id uuid.UUID, version int64, swap ListingSwap) (bool, error) {
	cols := map[string]any{
		"highest_bid":       swap.HighestBid,
		"highest_bidder_id": swap.HighestBidderID,
		"highest_bid_id":    swap.HighestBidID,
		"current_price":     swap.CurrentPrice,
		"status":            swap.Status,
		"ended_at":          swap.EndedAt,
		"version":           gorm.Expr("version + 1"),
		"updated_at":        swap.At.UTC(),
	}
	res := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND version = ?", id, version).
		Updates(cols)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreateBid(ctx context.Context, bid *models.Bid) error {
	return r.db.WithContext(ctx).Create(bid).Error
}

func (r *repository) FindBid(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	var bid models.Bid
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&bid).Error; err != nil {
		return nil, err
	}
	return &bid, nil
}

// ActivateBid records the hold and moves a pending bid to active. It
// reports false when the bid is no longer pending.
func (r *repository) ActivateBid(ctx context.Context, id uuid.UUID, holdID string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Bid{}).
		Where("id = ? AND status = ?", id, enums.BidStatusPending).
		Updates(map[string]any{
			"status":               enums.BidStatusActive,
			"payment_status":       enums.PaymentStatusAuthorized,
			"payment_reference_id": holdID,
			"updated_at":           at.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CancelBid(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Bid{}).
		Where("id = ? AND status IN ?", id, liveBidStatuses).
		Updates(map[string]any{
			"status":       enums.BidStatusCancelled,
			"cancelled_at": at.UTC(),
			"updated_at":   at.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CancelPendingBid cancels a bid that never got its hold. It reports false
// once the bid was activated or already cancelled.
func (r *repository) CancelPendingBid(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Bid{}).
		Where("id = ? AND status = ?", id, enums.BidStatusPending).
		Updates(map[string]any{
			"status":       enums.BidStatusCancelled,
			"cancelled_at": at.UTC(),
			"updated_at":   at.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkBidHoldReleased(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Bid{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"payment_status": enums.PaymentStatusCancelled,
			"updated_at":     at.UTC(),
		}).Error
}

func (r *repository) ListLiveBids(ctx context.Context, listingID uuid.UUID) ([]models.Bid, error) {
	var bids []models.Bid
	if err := r.db.WithContext(ctx).
		Where("listing_id = ? AND status IN ?", listingID, liveBidStatuses).
		Order("created_at ASC").
		Find(&bids).Error; err != nil {
		return nil, err
	}
	return bids, nil
}

// ListBidderIDs returns every user who ever bid on the listing.
func (r *repository) ListBidderIDs(ctx context.Context, listingID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.Bid{}).
		Where("listing_id = ?", listingID).
		Distinct("bidder_id").
		Pluck("bidder_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) CreateOffer(ctx context.Context, offer *models.Offer) error {
	return r.db.WithContext(ctx).Create(offer).Error
}

func (r *repository) FindOffer(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	var offer models.Offer
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&offer).Error; err != nil {
		return nil, err
	}
	return &offer, nil
}

// FindOpenOffer returns nil, nil when the bidder has no open offer.
func (r *repository) FindOpenOffer(ctx context.Context, listingID, bidderID uuid.UUID) (*models.Offer, error) {
	var offer models.Offer
	err := r.db.WithContext(ctx).
		Where("listing_id = ? AND bidder_id = ? AND status IN ?", listingID, bidderID, openOfferStatuses).
		First(&offer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

// ReviseOffer updates an open offer in place. Unless keepHold is set the
// offer drops back to pending until a new hold is placed.
func (r *repository) ReviseOffer(ctx context.Context, id uuid.UUID, amount decimal.Decimal, message string, keepHold bool, at time.Time) (bool, error) {
	cols := map[string]any{
		"amount":     amount,
		"message":    message,
		"updated_at": at.UTC(),
	}
	if !keepHold {
		cols["status"] = enums.OfferStatusPending
		cols["payment_status"] = enums.PaymentStatusNone
		cols["payment_reference_id"] = nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Offer{}).
		Where("id = ? AND status IN ?", id, openOfferStatuses).
		Updates(cols)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ActivateOffer attaches a hold to a pending offer whose amount has not been
// revised since the hold was requested.
func (r *repository) ActivateOffer(ctx context.Context, id uuid.UUID, amount decimal.Decimal, holdID string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Offer{}).
		Where("id = ? AND status = ? AND amount = ?", id, enums.OfferStatusPending, amount).
		Updates(map[string]any{
			"status":               enums.OfferStatusActive,
			"payment_status":       enums.PaymentStatusAuthorized,
			"payment_reference_id": holdID,
			"updated_at":           at.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CancelOffer(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Offer{}).
		Where("id = ? AND status IN ?", id, openOfferStatuses).
		Updates(map[string]any{
			"status":     enums.OfferStatusCancelled,
			"updated_at": at.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) AcceptOffer(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Offer{}).
		Where("id = ? AND status = ?", id, enums.OfferStatusActive).
		Updates(map[string]any{
			"status":     enums.OfferStatusAccepted,
			"updated_at": at.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkOfferHoldReleased(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Offer{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"payment_status": enums.PaymentStatusCancelled,
			"updated_at":     at.UTC(),
		}).Error
}

func (r *repository) ListOpenOffers(ctx context.Context, listingID uuid.UUID) ([]models.Offer, error) {
	var offers []models.Offer
	if err := r.db.WithContext(ctx).
		Where("listing_id = ? AND status IN ?", listingID, openOfferStatuses).
		Order("created_at ASC").
		Find(&offers).Error; err != nil {
		return nil, err
	}
	return offers, nil
}

package listings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/auctionhouse-backend/internal/repo"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
)

// Repository persists listings and their watchers.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, listing *models.Listing) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	ListDecaying(ctx context.Context, limit int) ([]models.Listing, error)
	CachePrice(ctx context.Context, id uuid.UUID, version int64, price decimal.Decimal, at time.Time) (bool, error)
	UpsertWatch(ctx context.Context, watch *models.ListingWatch) error
	FindWatch(ctx context.Context, listingID, userID uuid.UUID) (*models.ListingWatch, error)
	DeleteWatch(ctx context.Context, listingID, userID uuid.UUID) (bool, error)
	ListWatches(ctx context.Context, listingID uuid.UUID) ([]models.ListingWatch, error)
	MarkWatchesNotified(ctx context.Context, ids []uuid.UUID, price decimal.Decimal) error
	ListBidderIDs(ctx context.Context, listingID uuid.UUID) ([]uuid.UUID, error)
}

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

func (r *repository) Create(ctx context.Context, listing *models.Listing) error {
	return r.db.WithContext(ctx).Create(listing).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&listing).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

// ListDecaying returns active Dutch listings that have not been won and
// still have a decrement configured.
func (r *repository) ListDecaying(ctx context.Context, limit int) ([]models.Listing, error) {
	var rows []models.Listing
	err := r.db.WithContext(ctx).
		Where("listing_type = ? AND status = ? AND highest_bid IS NULL AND price_decrement > 0", enums.ListingTypeDutchAuction, enums.ListingStatusActive).
		Order("created_at ASC").
		Limit(repo.Batch(limit, repo.MaxBatch)).
		Find(&rows).Error
	return rows, err
}

// CachePrice stores the decayed asking price for readers. It is guarded by
// the version but does not bump it, so a bid committed in between wins.
func (r *repository) CachePrice(ctx context.Context, id uuid.UUID, version int64, price decimal.Decimal, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND version = ? AND highest_bid IS NULL", id, version).
		Updates(map[string]any{
			"current_price": price,
			"updated_at":    at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpsertWatch inserts the watch or replaces its threshold, which re-arms the
// notification.
func (r *repository) UpsertWatch(ctx context.Context, watch *models.ListingWatch) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "listing_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"price_threshold", "last_notified_price"}),
		}).
		Create(watch).Error
}

func (r *repository) FindWatch(ctx context.Context, listingID, userID uuid.UUID) (*models.ListingWatch, error) {
	var watch models.ListingWatch
	err := r.db.WithContext(ctx).
		Where("listing_id = ? AND user_id = ?", listingID, userID).
		First(&watch).Error
	if err != nil {
		return nil, err
	}
	return &watch, nil
}

func (r *repository) DeleteWatch(ctx context.Context, listingID, userID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("listing_id = ? AND user_id = ?", listingID, userID).
		Delete(&models.ListingWatch{})
	return res.RowsAffected > 0, res.Error
}

func (r *repository) ListWatches(ctx context.Context, listingID uuid.UUID) ([]models.ListingWatch, error) {
	var rows []models.ListingWatch
	err := r.db.WithContext(ctx).
		Where("listing_id = ?", listingID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) MarkWatchesNotified(ctx context.Context, ids []uuid.UUID, price decimal.Decimal) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.ListingWatch{}).
		Where("id IN ?", ids).
		Update("last_notified_price", price).Error
}

func (r *repository) ListBidderIDs(ctx context.Context, listingID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Bid{}).
		Where("listing_id = ?", listingID).
		Distinct("bidder_id").
		Pluck("bidder_id", &ids).Error
	return ids, err
}

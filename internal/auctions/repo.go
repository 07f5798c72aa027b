package auctions

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/auctionhouse-backend/internal/repo"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
)

// Repository finds listings whose auction is over but not yet closed.
type Repository interface {
	ListEnded(ctx context.Context, now time.Time, limit int) ([]models.Listing, error)
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

// ListEnded returns active ascending auctions past their end time and active
// Dutch auctions that already have a winner, oldest first.
func (r *repository) ListEnded(ctx context.Context, now time.Time, limit int) ([]models.Listing, error) {
	var rows []models.Listing
	db := r.DB(ctx)
	err := db.
		Where("status = ?", enums.ListingStatusActive).
		Where(
			db.Session(&gorm.Session{NewDB: true}).Where("listing_type = ? AND auction_end_time <= ?", enums.ListingTypeAscendingBid, now).
				Or("listing_type = ? AND highest_bid IS NOT NULL", enums.ListingTypeDutchAuction),
		).
		Order("created_at ASC").
		Limit(repo.Batch(limit, repo.MaxBatch)).
		Find(&rows).Error
	return rows, err
}

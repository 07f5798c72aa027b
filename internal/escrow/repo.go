package escrow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
)

// Repository persists escrow transactions. Status changes only go through
// Transition, which is conditional on the status the caller read.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, esc *models.EscrowTransaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.EscrowTransaction, error)
	FindOpenByListing(ctx context.Context, listingID uuid.UUID) (*models.EscrowTransaction, error)
	Transition(ctx context.Context, id uuid.UUID, from enums.EscrowStatus, update StatusUpdate) (bool, error)
	SetPaymentHold(ctx context.Context, id uuid.UUID, holdID string, clientToken *string, at time.Time) (bool, error)
}

// StatusUpdate is the column set written when an escrow changes state.
type StatusUpdate struct {
	To              enums.EscrowStatus
	EnteredAt       time.Time
	DeadlineAt      *time.Time
	DeliveryDetails *string
	DisputeReason   *string
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

func (r *repository) Create(ctx context.Context, esc *models.EscrowTransaction) error {
	return r.db.WithContext(ctx).Create(esc).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.EscrowTransaction, error) {
	var esc models.EscrowTransaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&esc).Error; err != nil {
		return nil, err
	}
	return &esc, nil
}

// FindOpenByListing returns nil, nil when the listing has no non-terminal
// escrow.
func (r *repository) FindOpenByListing(ctx context.Context, listingID uuid.UUID) (*models.EscrowTransaction, error) {
	var esc models.EscrowTransaction
	err := r.db.WithContext(ctx).
		Where("listing_id = ? AND status NOT IN ?", listingID, enums.TerminalEscrowStatuses).
		First(&esc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &esc, nil
}

func (r *repository) Transition(ctx context.Context, id uuid.UUID, from enums.EscrowStatus, update StatusUpdate) (bool, error) {
	entered := update.EnteredAt.UTC()
	cols := map[string]any{
		"status":           update.To,
		"state_entered_at": entered,
		"deadline_at":      update.DeadlineAt,
		"updated_at":       entered,
	}
	if update.To == enums.EscrowStatusCompleted {
		cols["completed_at"] = entered
	}
	if update.DeliveryDetails != nil {
		cols["delivery_details"] = *update.DeliveryDetails
	}
	if update.DisputeReason != nil {
		cols["dispute_reason"] = *update.DisputeReason
	}
	res := r.db.WithContext(ctx).
		Model(&models.EscrowTransaction{}).
		Where("id = ? AND status = ?", id, from).
		Updates(cols)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetPaymentHold stores the deposit hold while the escrow is still in a
// funding state. It reports false once the escrow has moved on.
func (r *repository) SetPaymentHold(ctx context.Context, id uuid.UUID, holdID string, clientToken *string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.EscrowTransaction{}).
		Where("id = ? AND status IN ?", id, enums.FundingEscrowStatuses).
		Updates(map[string]any{
			"payment_reference_id": holdID,
			"payment_client_token": clientToken,
			"updated_at":           at.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

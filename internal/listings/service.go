// Package listings registers sellable items, keeps watchers and fans out
// price-drop and ending-soon signals.
package listings

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/auctionhouse-backend/internal/bids"
	"github.com/angelmondragon/auctionhouse-backend/internal/payments"
	"github.com/angelmondragon/auctionhouse-backend/internal/pricing"
	"github.com/angelmondragon/auctionhouse-backend/internal/scheduledtasks"
	"github.com/angelmondragon/auctionhouse-backend/pkg/config"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/auctionhouse-backend/pkg/errors"
	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox"
)

const maxTitleLength = 200

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type CreateInput struct {
	SellerID          uuid.UUID
	Title             string
	Description       string
	Type              enums.ListingType
	Currency          string
	StartingPrice     decimal.Decimal
	ReservePrice      *decimal.Decimal
	PriceDecrement    decimal.Decimal
	DecrementInterval time.Duration
	AuctionEndTime    *time.Time
}

// View is a listing as readers see it at a point in time.
type View struct {
	Listing         models.Listing
	CurrentPrice    decimal.Decimal
	EffectiveStatus enums.ListingStatus
	NextPriceDrop   *time.Time
}

type ServiceParams struct {
	Repo            Repository
	Tx              txRunner
	Scheduler       scheduledtasks.Scheduler
	Outbox          outbox.Emitter
	Config          config.AuctionsConfig
	DefaultCurrency string
	MaxAmount       decimal.Decimal
	Logger          *logger.Logger
	Now             func() time.Time
}

type Service struct {
	repo      Repository
	tx        txRunner
	scheduler scheduledtasks.Scheduler
	outbox    outbox.Emitter
	cfg       config.AuctionsConfig
	currency  string
	maxAmount decimal.Decimal
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("listing repository required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Scheduler == nil {
		return nil, errors.New("task scheduler required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	currency := strings.ToUpper(strings.TrimSpace(params.DefaultCurrency))
	if currency == "" {
		currency = "USD"
	}
	cfg := params.Config
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 100
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:      params.Repo,
		tx:        params.Tx,
		scheduler: params.Scheduler,
		outbox:    params.Outbox,
		cfg:       cfg,
		currency:  currency,
		maxAmount: params.MaxAmount,
		logg:      params.Logger,
		now:       now,
	}, nil
}

// Create validates and stores a listing. Dutch decay settings are checked
// here once; an ascending auction gets its ending-soon task in the same
// transaction.
func (s *Service) Create(ctx context.Context, in CreateInput) (*View, error) {
	now := s.now().UTC()
	listing, err := s.build(in, now)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"listing_id": listing.ID.String(),
		"seller_id":  listing.SellerID.String(),
	})

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, listing); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create listing")
		}
		if listing.AuctionEndTime == nil {
			return nil
		}
		dueAt := listing.AuctionEndTime.Add(-s.cfg.EndingSoonLead)
		if dueAt.Before(now) {
			dueAt = now
		}
		return s.scheduler.Schedule(ctx, tx, scheduledtasks.ScheduleInput{
			Kind:      enums.TaskAuctionEndingSoon,
			DedupeKey: scheduledtasks.EndingSoonKey(listing.ID),
			DueAt:     dueAt,
			Payload:   scheduledtasks.ListingPayload{ListingID: listing.ID},
		})
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(ctx, "listing created")
	return s.view(*listing, now), nil
}

func (s *Service) build(in CreateInput, now time.Time) (*models.Listing, error) {
	if in.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller is required")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is too long")
	}
	if !in.Type.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown listing type %q", in.Type)
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.currency
	}
	if len(currency) != 3 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "currency must be a three-letter code")
	}
	if err := s.checkAmount("starting price", in.StartingPrice, currency); err != nil {
		return nil, err
	}
	if !in.StartingPrice.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, pricing.ErrNonPositiveStart.Error())
	}

	listing := &models.Listing{
		ID:             uuid.New(),
		SellerID:       in.SellerID,
		Title:          title,
		Description:    strings.TrimSpace(in.Description),
		Type:           in.Type,
		Status:         enums.ListingStatusActive,
		Currency:       currency,
		StartingPrice:  in.StartingPrice,
		PriceDecrement: decimal.Zero,
		CurrentPrice:   in.StartingPrice,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if in.AuctionEndTime != nil && in.Type != enums.ListingTypeAscendingBid {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "auction end time only applies to ascending auctions")
	}

	switch in.Type {
	case enums.ListingTypeDutchAuction:
		params := pricing.Params{
			StartingPrice:     in.StartingPrice,
			Reserve:           in.ReservePrice,
			Decrement:         in.PriceDecrement,
			DecrementInterval: in.DecrementInterval,
			CreatedAt:         now,
		}
		if err := params.Validate(); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
		}
		if in.DecrementInterval%time.Second != 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "decrement interval must be whole seconds")
		}
		if err := s.checkAmount("price decrement", in.PriceDecrement, currency); err != nil {
			return nil, err
		}
		seconds := int64(in.DecrementInterval / time.Second)
		listing.ReservePrice = in.ReservePrice
		listing.PriceDecrement = in.PriceDecrement
		listing.DecrementIntervalSeconds = &seconds

	case enums.ListingTypeAscendingBid:
		if in.AuctionEndTime == nil || !in.AuctionEndTime.After(now) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "auction end time must be in the future")
		}
		if in.ReservePrice != nil && in.ReservePrice.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, pricing.ErrNegativeReserve.Error())
		}
		end := in.AuctionEndTime.UTC()
		listing.ReservePrice = in.ReservePrice
		listing.AuctionEndTime = &end
	}

	if listing.ReservePrice != nil {
		if err := s.checkAmount("reserve price", *listing.ReservePrice, currency); err != nil {
			return nil, err
		}
	}
	return listing, nil
}

func (s *Service) checkAmount(field string, amount decimal.Decimal, currency string) error {
	if exp := payments.Exponent(currency); !amount.Equal(amount.Truncate(exp)) {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "%s has too many decimal places", field)
	}
	if s.maxAmount.IsPositive() && amount.GreaterThan(s.maxAmount) {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "%s must not exceed %s", field, bids.FormatAmount(s.maxAmount, currency))
	}
	return nil
}

// Get returns the listing with its price recomputed for now.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*View, error) {
	listing, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(*listing, s.now().UTC()), nil
}

func (s *Service) view(listing models.Listing, now time.Time) *View {
	v := &View{
		Listing:         listing,
		CurrentPrice:    pricing.CurrentPrice(listing, now),
		EffectiveStatus: bids.EffectiveStatus(listing, now),
	}
	if listing.Type == enums.ListingTypeDutchAuction && listing.HighestBid == nil && v.EffectiveStatus == enums.ListingStatusActive {
		if next, ok := pricing.NextDrop(pricing.ParamsFor(listing), now); ok {
			v.NextPriceDrop = &next
		}
	}
	return v
}

// Watch records or updates the caller's interest in a listing. A threshold
// limits price-drop notifications to prices at or below it.
func (s *Service) Watch(ctx context.Context, listingID, userID uuid.UUID, threshold *decimal.Decimal) (*models.ListingWatch, error) {
	listing, err := s.load(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if threshold != nil {
		if !threshold.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "price threshold must be positive")
		}
		if err := s.checkAmount("price threshold", *threshold, listing.Currency); err != nil {
			return nil, err
		}
	}
	watch := &models.ListingWatch{
		ID:             uuid.New(),
		ListingID:      listing.ID,
		UserID:         userID,
		PriceThreshold: threshold,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.repo.UpsertWatch(ctx, watch); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save watch")
	}
	stored, err := s.repo.FindWatch(ctx, listing.ID, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load watch")
	}
	return stored, nil
}

// Unwatch removes the caller's watch. Removing a missing watch succeeds.
func (s *Service) Unwatch(ctx context.Context, listingID, userID uuid.UUID) error {
	if _, err := s.repo.DeleteWatch(ctx, listingID, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete watch")
	}
	return nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	listing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
	}
	return listing, nil
}

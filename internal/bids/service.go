// Package bids is the bid ledger: it validates proposals against a snapshot
// of the listing, commits them with a version-guarded compare-and-swap and
// places the payment hold once the ledger has accepted the bid.
package bids

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/auctionhouse-backend/internal/escrow"
	"github.com/angelmondragon/auctionhouse-backend/internal/payments"
	"github.com/angelmondragon/auctionhouse-backend/internal/pricing"
	"github.com/angelmondragon/auctionhouse-backend/internal/scheduledtasks"
	"github.com/angelmondragon/auctionhouse-backend/pkg/config"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/auctionhouse-backend/pkg/errors"
	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
	"github.com/angelmondragon/auctionhouse-backend/pkg/metrics"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox/payloads"
)

// errVersionMoved signals a lost compare-and-swap; PlaceBid re-reads and
// retries on it.
var errVersionMoved = errors.New("listing version moved")

// ErrLeadNotPending is returned by VoidPendingLead when the leading bid got
// its hold first. The caller's transaction must roll back.
var ErrLeadNotPending = errors.New("leading bid is no longer pending")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type PlaceBidInput struct {
	ListingID uuid.UUID
	BidderID  uuid.UUID
	Amount    decimal.Decimal
	Currency  string
	SourceID  string
}

// BidResult is a bid with the hold that backs it. Hold is nil when no new
// hold was placed.
type BidResult struct {
	Bid     *models.Bid
	Listing *models.Listing
	Hold    *payments.Hold
}

type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Broker    payments.HoldBroker
	Scheduler scheduledtasks.Scheduler
	Outbox    outbox.Emitter
	Escrow    escrow.Opener
	Config    config.BiddingConfig
	Logger    *logger.Logger
	Metrics   *metrics.AuctionMetrics
	Now       func() time.Time
}

type Service struct {
	repo      Repository
	tx        txRunner
	broker    payments.HoldBroker
	scheduler scheduledtasks.Scheduler
	outbox    outbox.Emitter
	escrow    escrow.Opener
	cfg       config.BiddingConfig
	logg      *logger.Logger
	metrics   *metrics.AuctionMetrics
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("bid repository required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Broker == nil {
		return nil, errors.New("hold broker required")
	}
	if params.Scheduler == nil {
		return nil, errors.New("task scheduler required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox emitter required")
	}
	if params.Escrow == nil {
		return nil, errors.New("escrow opener required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	cfg := params.Config
	if cfg.MaxConflictRetries <= 0 {
		cfg.MaxConflictRetries = 3
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:      params.Repo,
		tx:        params.Tx,
		broker:    params.Broker,
		scheduler: params.Scheduler,
		outbox:    params.Outbox,
		escrow:    params.Escrow,
		cfg:       cfg,
		logg:      params.Logger,
		metrics:   params.Metrics,
		now:       now,
	}, nil
}

// PlaceBid records a bid as the listing's new highest and then authorizes
// its hold. A lost swap is retried against a fresh read up to the configured
// bound, after which the caller gets a conflict. When the hold fails the bid
// stays pending and can be retried with AuthorizeBid.
func (s *Service) PlaceBid(ctx context.Context, in PlaceBidInput) (*BidResult, error) {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"listing_id": in.ListingID.String(),
		"bidder_id":  in.BidderID.String(),
	})

	var (
		bid     *models.Bid
		listing *models.Listing
	)
	for attempt := 1; attempt <= s.cfg.MaxConflictRetries; attempt++ {
		var err error
		bid, listing, err = s.recordBid(ctx, in)
		if err == nil {
			break
		}
		// A serialization failure or deadlock between concurrent bidders is
		// contention like a lost swap and gets the same fresh read.
		if !errors.Is(err, errVersionMoved) && !pkgerrors.IsTransient(err) {
			s.metrics.IncBid(outcomeFor(err))
			return nil, err
		}
		s.metrics.IncConflict()
		s.logg.Debug(s.logg.WithField(ctx, "attempt", attempt), "bid lost compare-and-swap")
		bid = nil
	}
	if bid == nil {
		s.metrics.IncBid("conflict")
		s.logg.Warn(ctx, "bid gave up after repeated conflicts")
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "listing changed while bidding, please retry")
	}

	ctx = s.logg.WithField(ctx, "bid_id", bid.ID.String())
	s.logg.Info(ctx, "bid recorded")

	res, err := s.authorize(ctx, bid, listing, in.SourceID)
	if err != nil {
		return nil, err
	}
	s.metrics.IncBid("accepted")
	return res, nil
}

// recordBid runs one validate-then-swap attempt.
func (s *Service) recordBid(ctx context.Context, in PlaceBidInput) (*models.Bid, *models.Listing, error) {
	listing, err := s.loadListing(ctx, in.ListingID)
	if err != nil {
		return nil, nil, err
	}
	if listing.SellerID == in.BidderID {
		return nil, nil, reject(ReasonOwnListing, "sellers cannot bid on their own listing").AsError()
	}
	if !listing.Type.AcceptsBids() {
		return nil, nil, reject(ReasonWrongListingType, "listing does not accept bids").AsError()
	}
	currency, err := matchCurrency(in.Currency, listing.Currency)
	if err != nil {
		return nil, nil, err
	}

	now := s.now().UTC()
	if rej := ValidateBid(Proposal{
		Amount:        in.Amount,
		Currency:      currency,
		HighestBid:    listing.HighestBid,
		CurrentPrice:  pricing.CurrentPrice(*listing, now),
		ListingType:   listing.Type,
		ListingStatus: EffectiveStatus(*listing, now),
		Ceiling:       s.cfg.MaxAmount,
	}); rej != nil {
		return nil, nil, rej.AsError()
	}

	amount := in.Amount
	bid := &models.Bid{
		ID:            uuid.New(),
		ListingID:     listing.ID,
		BidderID:      in.BidderID,
		Amount:        amount,
		Currency:      currency,
		Status:        enums.BidStatusPending,
		PaymentStatus: enums.PaymentStatusNone,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	swap := ListingSwap{
		HighestBid:      &amount,
		HighestBidderID: &bid.BidderID,
		HighestBidID:    &bid.ID,
		CurrentPrice:    amount,
		Status:          listing.Status,
		EndedAt:         listing.EndedAt,
		At:              now,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.SwapListing(ctx, listing.ID, listing.Version, swap)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update listing")
		}
		if !ok {
			return errVersionMoved
		}
		if err := repo.CreateBid(ctx, bid); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create bid")
		}

		event := payloads.BidPlacedEvent{
			ListingID:        listing.ID,
			ListingTitle:     listing.Title,
			ListingType:      listing.Type,
			SellerID:         listing.SellerID,
			BidID:            bid.ID,
			BidderID:         bid.BidderID,
			Amount:           bid.Amount,
			Currency:         bid.Currency,
			PreviousBidID:    listing.HighestBidID,
			PreviousBidderID: listing.HighestBidderID,
			PreviousAmount:   listing.HighestBid,
			Won:              listing.Type == enums.ListingTypeDutchAuction,
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBidPlaced,
			AggregateType: enums.AggregateListing,
			AggregateID:   listing.ID,
			Actor:         &outbox.ActorRef{UserID: bid.BidderID, Role: "bidder"},
			OccurredAt:    now,
			Data:          event,
		}); err != nil {
			return err
		}

		if listing.HighestBidID != nil {
			return s.scheduleRelease(ctx, tx, scheduledtasks.ReleaseHoldPayload{
				ReferenceType: enums.PaymentReferenceBid,
				ReferenceID:   *listing.HighestBidID,
				CancelBid:     true,
			})
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	listing.HighestBid = swap.HighestBid
	listing.HighestBidderID = swap.HighestBidderID
	listing.HighestBidID = swap.HighestBidID
	listing.CurrentPrice = swap.CurrentPrice
	listing.Version++
	return bid, listing, nil
}

// authorize places the hold for a pending bid and activates it. If the bid
// was superseded and cancelled while the hold was in flight, the fresh hold
// is released again and the caller gets a conflict.
func (s *Service) authorize(ctx context.Context, bid *models.Bid, listing *models.Listing, sourceID string) (*BidResult, error) {
	ref := payments.Reference{Type: enums.PaymentReferenceBid, ID: bid.ID}
	hold, err := s.broker.Authorize(ctx, payments.AuthorizeInput{
		Amount:    bid.Amount,
		Currency:  bid.Currency,
		Reference: ref,
		SourceID:  sourceID,
		Revision:  sourceID,
	})
	if err != nil {
		s.metrics.IncBid("payment_failed")
		s.logg.Warn(ctx, "bid recorded but payment hold failed")
		return nil, withBidDetails(err, bid.ID)
	}

	now := s.now().UTC()
	ok, err := s.repo.ActivateBid(ctx, bid.ID, hold.HoldID, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "activate bid")
	}
	if !ok {
		s.releaseOrSchedule(ctx, ref, hold.HoldID)
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "bid was outbid before its payment hold completed")
	}

	bid.Status = enums.BidStatusActive
	bid.PaymentStatus = enums.PaymentStatusAuthorized
	bid.PaymentReferenceID = &hold.HoldID
	bid.UpdatedAt = now
	s.logg.Info(s.logg.WithField(ctx, "hold_id", hold.HoldID), "bid activated")
	return &BidResult{Bid: bid, Listing: listing, Hold: hold}, nil
}

// AuthorizeBid retries the hold for the caller's pending bid.
func (s *Service) AuthorizeBid(ctx context.Context, bidID, userID uuid.UUID, sourceID string) (*BidResult, error) {
	bid, err := s.loadBid(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if bid.BidderID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "bid belongs to another user")
	}
	if bid.Status != enums.BidStatusPending {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "bid is %s and not awaiting payment", bid.Status)
	}
	listing, err := s.loadListing(ctx, bid.ListingID)
	if err != nil {
		return nil, err
	}
	if listing.HighestBidID == nil || *listing.HighestBidID != bid.ID {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "bid has been outbid")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"listing_id": listing.ID.String(),
		"bid_id":     bid.ID.String(),
	})
	return s.authorize(ctx, bid, listing, sourceID)
}

// CancelBid withdraws the caller's bid. A leading bid is binding once its
// hold is authorized; a leading bid still pending payment can be withdrawn,
// which clears the listing's lead. An authorized hold is released before the
// bid is marked cancelled.
func (s *Service) CancelBid(ctx context.Context, bidID, userID uuid.UUID) (*models.Bid, error) {
	bid, err := s.loadBid(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if bid.BidderID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "bid belongs to another user")
	}
	if bid.Status == enums.BidStatusCancelled {
		return bid, nil
	}
	listing, err := s.loadListing(ctx, bid.ListingID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithField(ctx, "bid_id", bid.ID.String())
	if listing.HighestBidID != nil && *listing.HighestBidID == bid.ID {
		if bid.Status != enums.BidStatusPending {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "an authorized leading bid cannot be withdrawn")
		}
		if listing.Status != enums.ListingStatusActive {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "bidding on this listing has closed")
		}
		return s.withdrawLead(ctx, bid, listing)
	}

	now := s.now().UTC()
	if bid.PaymentStatus == enums.PaymentStatusAuthorized && bid.PaymentReferenceID != nil {
		ref := payments.Reference{Type: enums.PaymentReferenceBid, ID: bid.ID}
		if _, err := s.broker.Release(ctx, ref, *bid.PaymentReferenceID); err != nil {
			return nil, err
		}
		if err := s.repo.MarkBidHoldReleased(ctx, bid.ID, now); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark bid hold released")
		}
		bid.PaymentStatus = enums.PaymentStatusCancelled
	}
	if _, err := s.repo.CancelBid(ctx, bid.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel bid")
	}
	bid.Status = enums.BidStatusCancelled
	bid.CancelledAt = &now
	s.logg.Info(ctx, "bid cancelled")
	return bid, nil
}

// withdrawLead voids the caller's unfunded leading bid. The listing returns
// to having no lead, since the bids it displaced were cancelled when it was
// placed.
func (s *Service) withdrawLead(ctx context.Context, bid *models.Bid, listing *models.Listing) (*models.Bid, error) {
	now := s.now().UTC()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := VoidPendingLead(ctx, s.repo.WithTx(tx), listing, now)
		if err != nil {
			return err
		}
		if !ok {
			return errVersionMoved
		}
		return nil
	})
	switch {
	case errors.Is(err, errVersionMoved):
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "listing changed while withdrawing, please retry")
	case errors.Is(err, ErrLeadNotPending):
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "bid was authorized while withdrawing")
	case err != nil:
		return nil, err
	}
	bid.Status = enums.BidStatusCancelled
	bid.CancelledAt = &now
	s.logg.Info(ctx, "leading bid withdrawn before payment")
	return bid, nil
}

// VoidPendingLead clears the listing's lead and cancels the pending bid that
// held it. The listing keeps its status and its price falls back to what it
// would be without bids. It reports false when the listing version moved.
// On success listing is updated in place.
func VoidPendingLead(ctx context.Context, repo Repository, listing *models.Listing, now time.Time) (bool, error) {
	if listing.HighestBidID == nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "listing has no leading bid")
	}
	bidID := *listing.HighestBidID
	cleared := *listing
	cleared.HighestBid = nil
	cleared.HighestBidderID = nil
	cleared.HighestBidID = nil
	cleared.CurrentPrice = pricing.CurrentPrice(cleared, now)

	ok, err := repo.SwapListing(ctx, listing.ID, listing.Version, ListingSwap{
		CurrentPrice: cleared.CurrentPrice,
		Status:       listing.Status,
		EndedAt:      listing.EndedAt,
		At:           now,
	})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear listing lead")
	}
	if !ok {
		return false, nil
	}
	cancelled, err := repo.CancelPendingBid(ctx, bidID, now)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel leading bid")
	}
	if !cancelled {
		return false, ErrLeadNotPending
	}
	cleared.Version++
	*listing = cleared
	return true, nil
}

// releaseOrSchedule frees a hold nothing references any more. A failed
// release is handed to the task processor.
func (s *Service) releaseOrSchedule(ctx context.Context, ref payments.Reference, holdID string) {
	if _, err := s.broker.Release(ctx, ref, holdID); err == nil {
		return
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.scheduleRelease(ctx, tx, scheduledtasks.ReleaseHoldPayload{
			ReferenceType: ref.Type,
			ReferenceID:   ref.ID,
			HoldID:        holdID,
		})
	})
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "hold_id", holdID), "failed to schedule orphaned hold release", err)
	}
}

func (s *Service) scheduleRelease(ctx context.Context, tx *gorm.DB, payload scheduledtasks.ReleaseHoldPayload) error {
	return s.scheduler.Schedule(ctx, tx, scheduledtasks.ScheduleInput{
		Kind:      enums.TaskReleaseHold,
		DedupeKey: scheduledtasks.ReleaseHoldKey(payload.ReferenceType, payload.ReferenceID, payload.HoldID),
		DueAt:     s.now().UTC(),
		Payload:   payload,
	})
}

func (s *Service) loadListing(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	listing, err := s.repo.FindListing(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
	}
	return listing, nil
}

func (s *Service) loadBid(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	bid, err := s.repo.FindBid(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bid not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bid")
	}
	return bid, nil
}

// EffectiveStatus treats an ascending auction past its end time as ended
// even before the sweeper has written that.
func EffectiveStatus(listing models.Listing, now time.Time) enums.ListingStatus {
	if listing.Status == enums.ListingStatusActive &&
		listing.Type == enums.ListingTypeAscendingBid &&
		listing.AuctionEndTime != nil &&
		!now.Before(*listing.AuctionEndTime) {
		return enums.ListingStatusEnded
	}
	return listing.Status
}

func matchCurrency(requested, listingCurrency string) (string, error) {
	cur := strings.ToUpper(strings.TrimSpace(requested))
	if cur == "" {
		return listingCurrency, nil
	}
	if cur != listingCurrency {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "amount must be in %s", listingCurrency)
	}
	return cur, nil
}

func withBidDetails(err error, bidID uuid.UUID) error {
	if typed := pkgerrors.As(err); typed != nil {
		return pkgerrors.Wrap(typed.Code(), err, typed.Message()).
			WithDetails(map[string]any{"bidId": bidID.String()})
	}
	return pkgerrors.Wrap(pkgerrors.CodePayment, err, fmt.Sprintf("payment hold failed for bid %s", bidID))
}

func outcomeFor(err error) string {
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeValidation:
		return "rejected"
	case pkgerrors.CodeNotFound:
		return "not_found"
	}
	return "error"
}

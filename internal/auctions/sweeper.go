// Package auctions closes auctions whose bidding window is over and hands
// winners to escrow.
package auctions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/auctionhouse-backend/internal/bids"
	"github.com/angelmondragon/auctionhouse-backend/internal/escrow"
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

var (
	errAlreadyClosed = errors.New("listing already closed")
	errLeadPending   = errors.New("leading bid awaiting payment")
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Result counts one sweep. Listings another sweeper closed first are in
// no count. Deferred listings have a leading bid still inside its payment
// window and are looked at again on the next sweep.
type Result struct {
	Processed int
	Deferred  int
	Failed    int
}

type SweeperParams struct {
	Repo      Repository
	Bids      bids.Repository
	Tx        txRunner
	Escrow    escrow.Opener
	Scheduler scheduledtasks.Scheduler
	Outbox    outbox.Emitter
	Config    config.AuctionsConfig
	Logger    *logger.Logger
	Metrics   *metrics.AuctionMetrics
}

type Sweeper struct {
	repo      Repository
	bids      bids.Repository
	tx        txRunner
	escrow    escrow.Opener
	scheduler scheduledtasks.Scheduler
	outbox    outbox.Emitter
	batch     int
	leadTTL   time.Duration
	logg      *logger.Logger
	metrics   *metrics.AuctionMetrics
}

func NewSweeper(params SweeperParams) (*Sweeper, error) {
	if params.Repo == nil {
		return nil, errors.New("auction repository required")
	}
	if params.Bids == nil {
		return nil, errors.New("bid repository required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Escrow == nil {
		return nil, errors.New("escrow opener required")
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
	batch := params.Config.SweepBatchSize
	if batch <= 0 {
		batch = 100
	}
	leadTTL := params.Config.PendingLeadTTL
	if leadTTL <= 0 {
		leadTTL = 15 * time.Minute
	}
	return &Sweeper{
		repo:      params.Repo,
		bids:      params.Bids,
		tx:        params.Tx,
		escrow:    params.Escrow,
		scheduler: params.Scheduler,
		outbox:    params.Outbox,
		batch:     batch,
		leadTTL:   leadTTL,
		logg:      params.Logger,
		metrics:   params.Metrics,
	}, nil
}

// ProcessEndedAuctions closes every auction that has ended as of now. Each
// listing closes in its own transaction, so one failure does not hold back
// the rest. Running it again over the same listings changes nothing.
func (s *Sweeper) ProcessEndedAuctions(ctx context.Context, now time.Time) (Result, error) {
	var result Result
	now = now.UTC()
	rows, err := s.repo.ListEnded(ctx, now, s.batch)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ended auctions")
	}

	var errs error
	for _, listing := range rows {
		lctx := s.logg.WithField(ctx, "listing_id", listing.ID.String())
		outcome, err := s.close(lctx, listing, now)
		switch {
		case errors.Is(err, errAlreadyClosed):
			s.logg.Debug(lctx, "auction closed elsewhere")
		case errors.Is(err, errLeadPending):
			result.Deferred++
			s.logg.Debug(lctx, "auction close waits for the leading bid's payment")
		case err != nil:
			result.Failed++
			s.metrics.IncAuctionClosed("failed")
			s.logg.Error(lctx, "failed to close auction", err)
			errs = multierr.Append(errs, err)
		default:
			result.Processed++
			label := string(outcome)
			if outcome == enums.ListingStatusActive {
				label = "reopened"
			}
			s.metrics.IncAuctionClosed(label)
		}
	}
	if len(rows) > 0 {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"processed": result.Processed,
			"deferred":  result.Deferred,
			"failed":    result.Failed,
		}), "auction sweep finished")
	}
	return result, errs
}

// close moves one listing to sold or ended, settles the losing bids and
// opens escrow for the winner. A leading bid without its hold keeps the
// listing open until the payment window runs out; after that the bid is
// voided. A Dutch listing then goes back on sale and reports active, an
// ascending one ends without a winner.
func (s *Sweeper) close(ctx context.Context, listing models.Listing, now time.Time) (enums.ListingStatus, error) {
	var outcome enums.ListingStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.bids.WithTx(tx)
		if listing.HasWinner() && listing.HighestBidID != nil {
			lead, err := repo.FindBid(ctx, *listing.HighestBidID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load leading bid")
			}
			if lead.Status == enums.BidStatusPending {
				if now.Before(lead.CreatedAt.Add(s.leadTTL)) {
					return errLeadPending
				}
				ok, err := bids.VoidPendingLead(ctx, repo, &listing, now)
				if errors.Is(err, bids.ErrLeadNotPending) {
					return errLeadPending
				}
				if err != nil {
					return err
				}
				if !ok {
					return errAlreadyClosed
				}
				s.logg.Info(s.logg.WithField(ctx, "bid_id", lead.ID.String()), "unfunded leading bid voided")
				if listing.Type == enums.ListingTypeDutchAuction {
					outcome = enums.ListingStatusActive
					return nil
				}
			}
		}

		reserveMet := listing.HasWinner() &&
			(listing.ReservePrice == nil || listing.HighestBid.GreaterThanOrEqual(*listing.ReservePrice))
		outcome = enums.ListingStatusEnded
		if reserveMet {
			outcome = enums.ListingStatusSold
		}

		ok, err := repo.SwapListing(ctx, listing.ID, listing.Version, bids.ListingSwap{
			HighestBid:      listing.HighestBid,
			HighestBidderID: listing.HighestBidderID,
			HighestBidID:    listing.HighestBidID,
			CurrentPrice:    listing.CurrentPrice,
			Status:          outcome,
			EndedAt:         &now,
			At:              now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close listing")
		}
		if !ok {
			return errAlreadyClosed
		}

		var winningBidID *uuid.UUID
		if reserveMet {
			winningBidID = listing.HighestBidID
		}
		if err := s.releaseLosers(ctx, tx, repo, listing.ID, winningBidID, now); err != nil {
			return err
		}

		bidderIDs, err := repo.ListBidderIDs(ctx, listing.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bidders")
		}
		event := payloads.AuctionEndedEvent{
			ListingID:    listing.ID,
			ListingTitle: listing.Title,
			SellerID:     listing.SellerID,
			Outcome:      outcome,
			Currency:     listing.Currency,
			BidderIDs:    bidderIDs,
			ReserveMet:   reserveMet,
		}

		if reserveMet {
			if listing.HighestBidID == nil {
				err := pkgerrors.New(pkgerrors.CodeConsistency, "winning listing has no bid reference")
				s.logg.Error(ctx, "cannot open escrow", err)
				return err
			}
			esc, _, err := s.escrow.OpenTx(ctx, tx, escrow.OpenInput{
				ListingID:    listing.ID,
				ListingTitle: listing.Title,
				BuyerID:      *listing.HighestBidderID,
				SellerID:     listing.SellerID,
				BidID:        listing.HighestBidID,
				Amount:       *listing.HighestBid,
				Currency:     listing.Currency,
			})
			if err != nil {
				return err
			}
			event.WinnerID = listing.HighestBidderID
			event.WinningBid = listing.HighestBid
			event.EscrowID = &esc.ID
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAuctionEnded,
			AggregateType: enums.AggregateListing,
			AggregateID:   listing.ID,
			OccurredAt:    now,
			Data:          event,
		})
	})
	if err != nil {
		return "", err
	}
	if outcome == enums.ListingStatusActive {
		s.logg.Info(ctx, "auction reopened after voided lead")
		return outcome, nil
	}
	s.logg.Info(s.logg.WithField(ctx, "outcome", string(outcome)), "auction closed")
	return outcome, nil
}

// releaseLosers cancels every live bid except the winner's and schedules
// release of their holds.
func (s *Sweeper) releaseLosers(ctx context.Context, tx *gorm.DB, repo bids.Repository, listingID uuid.UUID, winningBidID *uuid.UUID, now time.Time) error {
	live, err := repo.ListLiveBids(ctx, listingID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list live bids")
	}
	for _, bid := range live {
		if winningBidID != nil && bid.ID == *winningBidID {
			continue
		}
		if _, err := repo.CancelBid(ctx, bid.ID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel losing bid")
		}
		payload := scheduledtasks.ReleaseHoldPayload{
			ReferenceType: enums.PaymentReferenceBid,
			ReferenceID:   bid.ID,
		}
		if err := s.scheduler.Schedule(ctx, tx, scheduledtasks.ScheduleInput{
			Kind:      enums.TaskReleaseHold,
			DedupeKey: scheduledtasks.ReleaseHoldKey(payload.ReferenceType, payload.ReferenceID, ""),
			DueAt:     now,
			Payload:   payload,
		}); err != nil {
			return err
		}
	}
	return nil
}

package bids

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/auctionhouse-backend/internal/escrow"
	"github.com/angelmondragon/auctionhouse-backend/internal/payments"
	"github.com/angelmondragon/auctionhouse-backend/internal/pricing"
	"github.com/angelmondragon/auctionhouse-backend/internal/scheduledtasks"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/auctionhouse-backend/pkg/errors"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox/payloads"
)

const openOfferConstraint = "offers_open_per_bidder"

const maxOfferMessage = 2000

type SubmitOfferInput struct {
	ListingID uuid.UUID
	BidderID  uuid.UUID
	Amount    decimal.Decimal
	Currency  string
	Message   string
	SourceID  string
}

type OfferResult struct {
	Offer *models.Offer
	Hold  *payments.Hold
}

type AcceptOfferResult struct {
	Offer  *models.Offer
	Escrow *models.EscrowTransaction
}

// SubmitOffer creates or revises the bidder's single open offer on a
// listing. Revising the amount releases the old hold through a task and
// places a new one; a message-only edit keeps the hold.
func (s *Service) SubmitOffer(ctx context.Context, in SubmitOfferInput) (*OfferResult, error) {
	listing, err := s.loadListing(ctx, in.ListingID)
	if err != nil {
		return nil, err
	}
	if listing.SellerID == in.BidderID {
		return nil, reject(ReasonOwnListing, "sellers cannot make offers on their own listing").AsError()
	}
	if !listing.Type.AcceptsOffers() {
		return nil, reject(ReasonWrongListingType, "listing does not accept offers").AsError()
	}
	currency, err := matchCurrency(in.Currency, listing.Currency)
	if err != nil {
		return nil, err
	}
	message := strings.TrimSpace(in.Message)
	if len(message) > maxOfferMessage {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offer message is too long")
	}

	now := s.now().UTC()
	if rej := ValidateOffer(Proposal{
		Amount:        in.Amount,
		Currency:      currency,
		HighestBid:    listing.HighestBid,
		CurrentPrice:  pricing.CurrentPrice(*listing, now),
		ListingType:   listing.Type,
		ListingStatus: EffectiveStatus(*listing, now),
		Ceiling:       s.cfg.MaxAmount,
	}); rej != nil {
		return nil, rej.AsError()
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"listing_id": listing.ID.String(),
		"bidder_id":  in.BidderID.String(),
	})

	var (
		offer    *models.Offer
		keepHold bool
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindOpenOffer(ctx, listing.ID, in.BidderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup open offer")
		}

		if existing == nil {
			offer = &models.Offer{
				ID:            uuid.New(),
				ListingID:     listing.ID,
				BidderID:      in.BidderID,
				Amount:        in.Amount,
				Currency:      currency,
				Message:       message,
				Status:        enums.OfferStatusPending,
				PaymentStatus: enums.PaymentStatusNone,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := repo.CreateOffer(ctx, offer); err != nil {
				if db.IsUniqueViolation(err, openOfferConstraint) {
					return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "an offer for this listing is already being submitted")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create offer")
			}
		} else {
			keepHold = existing.Status == enums.OfferStatusActive && existing.Amount.Equal(in.Amount)
			ok, err := repo.ReviseOffer(ctx, existing.ID, in.Amount, message, keepHold, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revise offer")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeConflict, "offer changed concurrently, please retry")
			}
			if !keepHold && existing.PaymentStatus == enums.PaymentStatusAuthorized && existing.PaymentReferenceID != nil {
				if err := s.scheduleRelease(ctx, tx, scheduledtasks.ReleaseHoldPayload{
					ReferenceType: enums.PaymentReferenceOffer,
					ReferenceID:   existing.ID,
					HoldID:        *existing.PaymentReferenceID,
				}); err != nil {
					return err
				}
			}
			revised := *existing
			revised.Amount = in.Amount
			revised.Message = message
			revised.UpdatedAt = now
			if !keepHold {
				revised.Status = enums.OfferStatusPending
				revised.PaymentStatus = enums.PaymentStatusNone
				revised.PaymentReferenceID = nil
			}
			offer = &revised
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOfferSubmitted,
			AggregateType: enums.AggregateOffer,
			AggregateID:   offer.ID,
			Actor:         &outbox.ActorRef{UserID: in.BidderID, Role: "bidder"},
			OccurredAt:    now,
			Data: payloads.OfferSubmittedEvent{
				ListingID:    listing.ID,
				ListingTitle: listing.Title,
				SellerID:     listing.SellerID,
				OfferID:      offer.ID,
				BidderID:     offer.BidderID,
				Amount:       offer.Amount,
				Currency:     offer.Currency,
				Message:      offer.Message,
				Updated:      existing != nil,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithField(ctx, "offer_id", offer.ID.String())
	if keepHold {
		s.logg.Info(ctx, "offer message updated")
		return &OfferResult{Offer: offer}, nil
	}

	ref := payments.Reference{Type: enums.PaymentReferenceOffer, ID: offer.ID}
	hold, err := s.broker.Authorize(ctx, payments.AuthorizeInput{
		Amount:    offer.Amount,
		Currency:  offer.Currency,
		Reference: ref,
		SourceID:  in.SourceID,
		Revision:  in.SourceID + "-" + strconv.FormatInt(offer.UpdatedAt.UnixNano(), 10),
	})
	if err != nil {
		s.logg.Warn(ctx, "offer recorded but payment hold failed")
		return nil, withOfferDetails(err, offer.ID)
	}

	ok, err := s.repo.ActivateOffer(ctx, offer.ID, offer.Amount, hold.HoldID, s.now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "activate offer")
	}
	if !ok {
		s.releaseOrSchedule(ctx, ref, hold.HoldID)
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "offer changed before its payment hold completed")
	}

	offer.Status = enums.OfferStatusActive
	offer.PaymentStatus = enums.PaymentStatusAuthorized
	offer.PaymentReferenceID = &hold.HoldID
	s.logg.Info(s.logg.WithField(ctx, "hold_id", hold.HoldID), "offer activated")
	return &OfferResult{Offer: offer, Hold: hold}, nil
}

// CancelOffer withdraws the caller's open offer, releasing its hold first.
func (s *Service) CancelOffer(ctx context.Context, offerID, userID uuid.UUID) (*models.Offer, error) {
	offer, err := s.loadOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.BidderID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "offer belongs to another user")
	}
	if offer.Status == enums.OfferStatusCancelled {
		return offer, nil
	}
	if !offer.Status.IsOpen() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "offer is %s and cannot be cancelled", offer.Status)
	}

	ctx = s.logg.WithField(ctx, "offer_id", offer.ID.String())
	now := s.now().UTC()
	if offer.PaymentStatus == enums.PaymentStatusAuthorized && offer.PaymentReferenceID != nil {
		ref := payments.Reference{Type: enums.PaymentReferenceOffer, ID: offer.ID}
		if _, err := s.broker.Release(ctx, ref, *offer.PaymentReferenceID); err != nil {
			return nil, err
		}
		if err := s.repo.MarkOfferHoldReleased(ctx, offer.ID, now); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark offer hold released")
		}
		offer.PaymentStatus = enums.PaymentStatusCancelled
	}
	ok, err := s.repo.CancelOffer(ctx, offer.ID, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel offer")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "offer changed concurrently, please retry")
	}
	offer.Status = enums.OfferStatusCancelled
	offer.UpdatedAt = now
	s.logg.Info(ctx, "offer cancelled")
	return offer, nil
}

// AcceptOffer sells the listing to an active offer. The listing swap,
// cancellation of competing offers and bids, and the escrow all commit in
// one transaction.
func (s *Service) AcceptOffer(ctx context.Context, offerID, sellerID uuid.UUID) (*AcceptOfferResult, error) {
	offer, err := s.loadOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	listing, err := s.loadListing(ctx, offer.ListingID)
	if err != nil {
		return nil, err
	}
	if listing.SellerID != sellerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the seller can accept offers")
	}
	if offer.Status != enums.OfferStatusActive {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "offer is %s and cannot be accepted", offer.Status)
	}
	now := s.now().UTC()
	if EffectiveStatus(*listing, now) != enums.ListingStatusActive {
		return nil, reject(ReasonListingNotActive, "listing is no longer for sale").AsError()
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"listing_id": listing.ID.String(),
		"offer_id":   offer.ID.String(),
	})

	var esc *models.EscrowTransaction
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		amount := offer.Amount
		ok, err := repo.SwapListing(ctx, listing.ID, listing.Version, ListingSwap{
			HighestBid:      &amount,
			HighestBidderID: &offer.BidderID,
			CurrentPrice:    amount,
			Status:          enums.ListingStatusSold,
			EndedAt:         &now,
			At:              now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update listing")
		}
		if !ok {
			s.metrics.IncConflict()
			return pkgerrors.New(pkgerrors.CodeConflict, "listing changed while accepting, please retry")
		}
		ok, err = repo.AcceptOffer(ctx, offer.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "accept offer")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "offer changed concurrently, please retry")
		}

		if err := s.closeCompetitors(ctx, tx, listing.ID, offer.ID); err != nil {
			return err
		}

		esc, _, err = s.escrow.OpenTx(ctx, tx, escrow.OpenInput{
			ListingID:    listing.ID,
			ListingTitle: listing.Title,
			BuyerID:      offer.BidderID,
			SellerID:     listing.SellerID,
			OfferID:      &offer.ID,
			Amount:       offer.Amount,
			Currency:     offer.Currency,
			Actor:        &outbox.ActorRef{UserID: sellerID, Role: string(enums.EscrowRoleSeller)},
		})
		if err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOfferAccepted,
			AggregateType: enums.AggregateOffer,
			AggregateID:   offer.ID,
			Actor:         &outbox.ActorRef{UserID: sellerID, Role: string(enums.EscrowRoleSeller)},
			OccurredAt:    now,
			Data: payloads.OfferAcceptedEvent{
				ListingID:    listing.ID,
				ListingTitle: listing.Title,
				SellerID:     listing.SellerID,
				OfferID:      offer.ID,
				BuyerID:      offer.BidderID,
				Amount:       offer.Amount,
				Currency:     offer.Currency,
				EscrowID:     esc.ID,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	offer.Status = enums.OfferStatusAccepted
	offer.UpdatedAt = now
	s.logg.Info(s.logg.WithField(ctx, "escrow_id", esc.ID.String()), "offer accepted")
	return &AcceptOfferResult{Offer: offer, Escrow: esc}, nil
}

// closeCompetitors cancels every other open offer and live bid on the
// listing and schedules release of their holds.
func (s *Service) closeCompetitors(ctx context.Context, tx *gorm.DB, listingID, winningOfferID uuid.UUID) error {
	repo := s.repo.WithTx(tx)
	now := s.now().UTC()

	offers, err := repo.ListOpenOffers(ctx, listingID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list open offers")
	}
	for _, other := range offers {
		if other.ID == winningOfferID {
			continue
		}
		if _, err := repo.CancelOffer(ctx, other.ID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel competing offer")
		}
		if other.PaymentStatus == enums.PaymentStatusAuthorized && other.PaymentReferenceID != nil {
			if err := s.scheduleRelease(ctx, tx, scheduledtasks.ReleaseHoldPayload{
				ReferenceType: enums.PaymentReferenceOffer,
				ReferenceID:   other.ID,
				HoldID:        *other.PaymentReferenceID,
			}); err != nil {
				return err
			}
		}
	}

	bids, err := repo.ListLiveBids(ctx, listingID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list live bids")
	}
	for _, bid := range bids {
		if _, err := repo.CancelBid(ctx, bid.ID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel competing bid")
		}
		if err := s.scheduleRelease(ctx, tx, scheduledtasks.ReleaseHoldPayload{
			ReferenceType: enums.PaymentReferenceBid,
			ReferenceID:   bid.ID,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) loadOffer(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	offer, err := s.repo.FindOffer(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "offer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load offer")
	}
	return offer, nil
}

func withOfferDetails(err error, offerID uuid.UUID) error {
	if typed := pkgerrors.As(err); typed != nil {
		return pkgerrors.Wrap(typed.Code(), err, typed.Message()).
			WithDetails(map[string]any{"offerId": offerID.String()})
	}
	return pkgerrors.Wrap(pkgerrors.CodePayment, err, "offer payment hold failed")
}

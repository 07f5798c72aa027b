package bids

import (
	"context"

	"github.com/angelmondragon/auctionhouse-backend/internal/payments"
	"github.com/angelmondragon/auctionhouse-backend/internal/scheduledtasks"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/auctionhouse-backend/pkg/errors"
)

type taskRegistry interface {
	Register(kind enums.ScheduledTaskKind, handler scheduledtasks.Handler)
}

func (s *Service) RegisterHandlers(tasks taskRegistry) {
	tasks.Register(enums.TaskReleaseHold, s.HandleReleaseHold)
}

// HandleReleaseHold frees a hold that no longer secures anything. Without a
// hold id in the payload the hold is read from the bid or offer row when the
// task runs, so holds placed after scheduling are covered too.
func (s *Service) HandleReleaseHold(ctx context.Context, task models.ScheduledTask) error {
	payload, err := scheduledtasks.DecodePayload[scheduledtasks.ReleaseHoldPayload](task)
	if err != nil {
		return err
	}
	ref := payments.Reference{Type: payload.ReferenceType, ID: payload.ReferenceID}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"reference_type": ref.Type,
		"reference_id":   ref.ID.String(),
	})
	now := s.now().UTC()

	switch payload.ReferenceType {
	case enums.PaymentReferenceBid:
		bid, err := s.loadBid(ctx, payload.ReferenceID)
		if err != nil {
			return err
		}
		holdID := payload.HoldID
		current := bid.PaymentStatus == enums.PaymentStatusAuthorized && bid.PaymentReferenceID != nil
		if holdID == "" && current {
			holdID = *bid.PaymentReferenceID
		}
		if holdID != "" {
			if _, err := s.broker.Release(ctx, ref, holdID); err != nil {
				return err
			}
			if current && *bid.PaymentReferenceID == holdID {
				if err := s.repo.MarkBidHoldReleased(ctx, bid.ID, now); err != nil {
					return err
				}
			}
		}
		if payload.CancelBid {
			if _, err := s.repo.CancelBid(ctx, bid.ID, now); err != nil {
				return err
			}
		}

	case enums.PaymentReferenceOffer:
		offer, err := s.loadOffer(ctx, payload.ReferenceID)
		if err != nil {
			return err
		}
		holdID := payload.HoldID
		current := offer.PaymentStatus == enums.PaymentStatusAuthorized && offer.PaymentReferenceID != nil
		if holdID == "" && current {
			holdID = *offer.PaymentReferenceID
		}
		if holdID == "" {
			return nil
		}
		if _, err := s.broker.Release(ctx, ref, holdID); err != nil {
			return err
		}
		if current && *offer.PaymentReferenceID == holdID {
			return s.repo.MarkOfferHoldReleased(ctx, offer.ID, now)
		}

	case enums.PaymentReferenceEscrow:
		if payload.HoldID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "escrow hold release needs a hold id")
		}
		if _, err := s.broker.Release(ctx, ref, payload.HoldID); err != nil {
			return err
		}

	default:
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unknown reference type %q", payload.ReferenceType)
	}

	s.logg.Debug(ctx, "hold release task done")
	return nil
}

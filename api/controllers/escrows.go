package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/auctionhouse-backend/api/controllers/dto"
	"github.com/angelmondragon/auctionhouse-backend/api/responses"
	"github.com/angelmondragon/auctionhouse-backend/api/validators"
	"github.com/angelmondragon/auctionhouse-backend/internal/escrow"
	"github.com/angelmondragon/auctionhouse-backend/internal/payments"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/auctionhouse-backend/pkg/errors"
	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
)

func GetEscrow(svc EscrowService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		escrowID, err := validators.ParseUUIDParam(r, "escrowId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		esc, err := svc.Get(r.Context(), escrowID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.FromEscrow(esc, userID))
	}
}

// TransitionEscrow drives one edge of the escrow workflow as the caller.
func TransitionEscrow(svc EscrowService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		escrowID, err := validators.ParseUUIDParam(r, "escrowId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body transitionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		action, err := enums.ParseEscrowAction(body.Action)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "action is invalid"))
			return
		}
		esc, err := svc.Transition(r.Context(), escrow.TransitionInput{
			EscrowID:        escrowID,
			Action:          action,
			ActorID:         &userID,
			DeliveryDetails: strings.TrimSpace(body.DeliveryDetails),
			Reason:          strings.TrimSpace(body.Reason),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.FromEscrow(esc, userID))
	}
}

type depositResponse struct {
	Escrow dto.Escrow     `json:"escrow"`
	Hold   *payments.Hold `json:"hold"`
}

// AuthorizeEscrowDeposit places or re-places the buyer's deposit hold.
func AuthorizeEscrowDeposit(svc EscrowService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		escrowID, err := validators.ParseUUIDParam(r, "escrowId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body paymentSourceRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		hold, esc, err := svc.AuthorizeDeposit(r.Context(), escrowID, &userID, body.PaymentSourceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, depositResponse{Escrow: dto.FromEscrow(esc, userID), Hold: hold})
	}
}

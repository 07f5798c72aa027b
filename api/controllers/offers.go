package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/auctionhouse-backend/api/controllers/dto"
	"github.com/angelmondragon/auctionhouse-backend/api/responses"
	"github.com/angelmondragon/auctionhouse-backend/api/validators"
	"github.com/angelmondragon/auctionhouse-backend/internal/bids"
	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
)

// SubmitOffer creates or revises the caller's open offer on a listing.
func SubmitOffer(svc BidService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bidderID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listingID, err := validators.ParseUUIDParam(r, "listingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body submitOfferRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.SubmitOffer(r.Context(), bids.SubmitOfferInput{
			ListingID: listingID,
			BidderID:  bidderID,
			Amount:    body.Amount,
			Currency:  body.Currency,
			Message:   strings.TrimSpace(body.Message),
			SourceID:  body.PaymentSourceID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.OfferSubmission{Offer: dto.FromOffer(result.Offer), Hold: result.Hold})
	}
}

func CancelOffer(svc BidService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offerID, err := validators.ParseUUIDParam(r, "offerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offer, err := svc.CancelOffer(r.Context(), offerID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.FromOffer(offer))
	}
}

// AcceptOffer lets the seller take an offer, which opens the escrow.
func AcceptOffer(svc BidService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sellerID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offerID, err := validators.ParseUUIDParam(r, "offerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.AcceptOffer(r.Context(), offerID, sellerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.OfferAcceptance{
			Offer:  dto.FromOffer(result.Offer),
			Escrow: dto.FromEscrow(result.Escrow, sellerID),
		})
	}
}

package controllers

import (
	"net/http"

	"github.com/angelmondragon/auctionhouse-backend/api/controllers/dto"
	"github.com/angelmondragon/auctionhouse-backend/api/responses"
	"github.com/angelmondragon/auctionhouse-backend/api/validators"
	"github.com/angelmondragon/auctionhouse-backend/internal/bids"
	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
)

// PlaceBid records a bid through the ledger and places its hold. A bid whose
// hold failed is still returned as pending; the caller retries through
// AuthorizeBid.
func PlaceBid(svc BidService, logg *logger.Logger) http.HandlerFunc {
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
		var body placeBidRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.PlaceBid(r.Context(), bids.PlaceBidInput{
			ListingID: listingID,
			BidderID:  bidderID,
			Amount:    body.Amount,
			Currency:  body.Currency,
			SourceID:  body.PaymentSourceID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, bidPlacement(result))
	}
}

func AuthorizeBid(svc BidService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bidID, err := validators.ParseUUIDParam(r, "bidId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body paymentSourceRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.AuthorizeBid(r.Context(), bidID, userID, body.PaymentSourceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, bidPlacement(result))
	}
}

func CancelBid(svc BidService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bidID, err := validators.ParseUUIDParam(r, "bidId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bid, err := svc.CancelBid(r.Context(), bidID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.FromBid(bid))
	}
}

func bidPlacement(result *bids.BidResult) dto.BidPlacement {
	return dto.BidPlacement{
		Bid:     dto.FromBid(result.Bid),
		Hold:    result.Hold,
		Listing: dto.FromListingState(result.Listing),
	}
}

package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/auctionhouse-backend/api/middleware"
	"github.com/angelmondragon/auctionhouse-backend/api/validators"
	pkgerrors "github.com/angelmondragon/auctionhouse-backend/pkg/errors"
)

type createListingRequest struct {
	Title                    string           `json:"title" validate:"required,max=200"`
	Description              string           `json:"description" validate:"max=5000"`
	ListingType              string           `json:"listingType" validate:"required,oneof=fixed ascending-bid dutch-auction"`
	Currency                 string           `json:"currency" validate:"omitempty,len=3,alpha"`
	StartingPrice            decimal.Decimal  `json:"startingPrice" validate:"money"`
	ReservePrice             *decimal.Decimal `json:"reservePrice" validate:"omitempty,money"`
	PriceDecrement           decimal.Decimal  `json:"priceDecrement" validate:"money"`
	DecrementIntervalSeconds int64            `json:"decrementIntervalSeconds" validate:"min=0"`
	AuctionEndTime           *time.Time       `json:"auctionEndTime"`
}

type placeBidRequest struct {
	Amount          decimal.Decimal `json:"amount" validate:"money"`
	Currency        string          `json:"currency" validate:"omitempty,len=3,alpha"`
	PaymentSourceID string          `json:"paymentSourceId" validate:"required,max=255"`
}

type paymentSourceRequest struct {
	PaymentSourceID string `json:"paymentSourceId" validate:"required,max=255"`
}

type submitOfferRequest struct {
	Amount          decimal.Decimal `json:"amount" validate:"money"`
	Currency        string          `json:"currency" validate:"omitempty,len=3,alpha"`
	Message         string          `json:"message" validate:"max=2000"`
	PaymentSourceID string          `json:"paymentSourceId" validate:"required,max=255"`
}

type watchRequest struct {
	PriceThreshold *decimal.Decimal `json:"priceThreshold" validate:"omitempty,money"`
}

type transitionRequest struct {
	Action          string `json:"action" validate:"required,oneof=agree secure_payment record_delivery confirm_receipt release_funds dispute cancel"`
	DeliveryDetails string `json:"deliveryDetails" validate:"max=2000"`
	Reason          string `json:"reason" validate:"max=2000"`
}

func callerID(r *http.Request) (uuid.UUID, error) {
	id, ok := middleware.UserUUIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return id, nil
}

// decodeOptionalBody accepts an empty body for endpoints whose fields are all optional.
func decodeOptionalBody(r *http.Request, dest any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return validators.DecodeJSONBody(r, dest)
}

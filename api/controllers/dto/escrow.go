package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/auctionhouse-backend/internal/escrow"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
)

type Escrow struct {
	ID              uuid.UUID          `json:"id"`
	ListingID       uuid.UUID          `json:"listingId"`
	BuyerID         uuid.UUID          `json:"buyerId"`
	SellerID        uuid.UUID          `json:"sellerId"`
	BidID           *uuid.UUID         `json:"bidId,omitempty"`
	OfferID         *uuid.UUID         `json:"offerId,omitempty"`
	Amount          decimal.Decimal    `json:"amount"`
	PlatformFee     decimal.Decimal    `json:"platformFee"`
	EscrowFee       decimal.Decimal    `json:"escrowFee"`
	Total           decimal.Decimal    `json:"total"`
	Currency        string             `json:"currency"`
	Status          enums.EscrowStatus `json:"status"`
	AwaitingRole    enums.EscrowRole   `json:"awaitingRole,omitempty"`
	ConversationID  uuid.UUID          `json:"conversationId"`
	ClientToken     *string            `json:"clientToken,omitempty"`
	DeliveryDetails *string            `json:"deliveryDetails,omitempty"`
	DisputeReason   *string            `json:"disputeReason,omitempty"`
	StateEnteredAt  time.Time          `json:"stateEnteredAt"`
	DeadlineAt      *time.Time         `json:"deadlineAt,omitempty"`
	CompletedAt     *time.Time         `json:"completedAt,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
}

// FromEscrow maps an escrow for one of its parties. The deposit client
// token is only returned to the buyer.
func FromEscrow(e *models.EscrowTransaction, viewerID uuid.UUID) Escrow {
	out := Escrow{
		ID:              e.ID,
		ListingID:       e.ListingID,
		BuyerID:         e.BuyerID,
		SellerID:        e.SellerID,
		BidID:           e.BidID,
		OfferID:         e.OfferID,
		Amount:          e.Amount,
		PlatformFee:     e.PlatformFee,
		EscrowFee:       e.EscrowFee,
		Total:           e.Total(),
		Currency:        e.Currency,
		Status:          e.Status,
		ConversationID:  e.ConversationID,
		DeliveryDetails: e.DeliveryDetails,
		DisputeReason:   e.DisputeReason,
		StateEnteredAt:  e.StateEnteredAt,
		DeadlineAt:      e.DeadlineAt,
		CompletedAt:     e.CompletedAt,
		CreatedAt:       e.CreatedAt,
	}
	if role, ok := escrow.AwaitedRole(e.Status); ok {
		out.AwaitingRole = role
	}
	if viewerID == e.BuyerID {
		out.ClientToken = e.PaymentClientToken
	}
	return out
}

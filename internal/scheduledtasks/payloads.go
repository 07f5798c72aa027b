package scheduledtasks

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
)

// ReleaseHoldPayload frees a hold that no longer secures anything. When
// CancelBid is set the bid is also marked cancelled.
type ReleaseHoldPayload struct {
	ReferenceType enums.PaymentReferenceType `json:"referenceType"`
	ReferenceID   uuid.UUID                  `json:"referenceId"`
	HoldID        string                     `json:"holdId"`
	CancelBid     bool                       `json:"cancelBid,omitempty"`
}

// EscrowPayload targets one escrow in the state the task was scheduled for.
// Handlers no-op once the escrow has left that state.
type EscrowPayload struct {
	EscrowID uuid.UUID          `json:"escrowId"`
	Status   enums.EscrowStatus `json:"status,omitempty"`
}

type ListingPayload struct {
	ListingID uuid.UUID `json:"listingId"`
}

func ReleaseHoldKey(refType enums.PaymentReferenceType, refID uuid.UUID, holdID string) string {
	return fmt.Sprintf("%s:%s:%s:%s", enums.TaskReleaseHold, refType, refID, holdID)
}

func EscrowStateKey(kind enums.ScheduledTaskKind, escrowID uuid.UUID, status enums.EscrowStatus) string {
	return fmt.Sprintf("%s:%s:%s", kind, escrowID, status)
}

func AuthorizeDepositKey(escrowID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", enums.TaskAuthorizeEscrowDeposit, escrowID)
}

func EndingSoonKey(listingID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", enums.TaskAuctionEndingSoon, listingID)
}

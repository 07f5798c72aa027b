package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
)

// Reference ties a hold to the bid, offer or escrow it secures.
type Reference struct {
	Type enums.PaymentReferenceType
	ID   uuid.UUID
}

func (r Reference) String() string {
	return fmt.Sprintf("%s-%s", r.Type, r.ID)
}

// Hold is the processor-neutral view of an authorization.
type Hold struct {
	HoldID      string           `json:"holdId"`
	ClientToken string           `json:"clientToken,omitempty"`
	Status      enums.HoldStatus `json:"status"`
	AmountMinor int64            `json:"amountMinor"`
	Currency    string           `json:"currency"`
}

// AuthorizationRequest is what a processor needs to place a hold. Amounts are
// already in minor units.
type AuthorizationRequest struct {
	AmountMinor    int64
	Currency       string
	SourceID       string
	IdempotencyKey string
	Reference      Reference
}

// ClientConfirmer is implemented by processors that can issue a hold before
// the payer has supplied a payment method. The payer completes it with the
// hold's client token.
type ClientConfirmer interface {
	ConfirmsClientSide() bool
}

// Processor is the two-phase hold protocol of a payment provider.
// Capture and Cancel on a hold already in the target state may fail; the
// broker resolves that by retrieving the hold.
type Processor interface {
	Name() string
	Authorize(ctx context.Context, req AuthorizationRequest) (Hold, error)
	Capture(ctx context.Context, holdID, idempotencyKey string) (Hold, error)
	Cancel(ctx context.Context, holdID, idempotencyKey string) (Hold, error)
	Retrieve(ctx context.Context, holdID string) (Hold, error)
}

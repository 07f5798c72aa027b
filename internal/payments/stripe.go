package payments

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	pkgstripe "github.com/angelmondragon/auctionhouse-backend/pkg/stripe"
)

// StripeAPI is the subset of the Stripe client the processor needs.
type StripeAPI interface {
	CreateHold(ctx context.Context, params pkgstripe.HoldParams) (*stripe.PaymentIntent, error)
	CaptureHold(ctx context.Context, id, idempotencyKey string) (*stripe.PaymentIntent, error)
	CancelHold(ctx context.Context, id, idempotencyKey string) (*stripe.PaymentIntent, error)
	GetHold(ctx context.Context, id string) (*stripe.PaymentIntent, error)
}

// StripeProcessor places holds as manual-capture PaymentIntents.
type StripeProcessor struct {
	api StripeAPI
}

func NewStripeProcessor(api StripeAPI) (*StripeProcessor, error) {
	if api == nil {
		return nil, errors.New("stripe api required")
	}
	return &StripeProcessor{api: api}, nil
}

func (p *StripeProcessor) Name() string { return "stripe" }

// ConfirmsClientSide is true: an intent created without a payment method is
// confirmed by the payer with its client secret.
func (p *StripeProcessor) ConfirmsClientSide() bool { return true }

func (p *StripeProcessor) Authorize(ctx context.Context, req AuthorizationRequest) (Hold, error) {
	pi, err := p.api.CreateHold(ctx, pkgstripe.HoldParams{
		AmountMinor:    req.AmountMinor,
		Currency:       req.Currency,
		PaymentMethod:  req.SourceID,
		IdempotencyKey: req.IdempotencyKey,
		Metadata: map[string]string{
			"reference_type": string(req.Reference.Type),
			"reference_id":   req.Reference.ID.String(),
		},
	})
	if err != nil {
		return Hold{}, err
	}
	return holdFromIntent(pi), nil
}

func (p *StripeProcessor) Capture(ctx context.Context, holdID, idempotencyKey string) (Hold, error) {
	pi, err := p.api.CaptureHold(ctx, holdID, idempotencyKey)
	if err != nil {
		return Hold{}, err
	}
	return holdFromIntent(pi), nil
}

func (p *StripeProcessor) Cancel(ctx context.Context, holdID, idempotencyKey string) (Hold, error) {
	pi, err := p.api.CancelHold(ctx, holdID, idempotencyKey)
	if err != nil {
		return Hold{}, err
	}
	return holdFromIntent(pi), nil
}

func (p *StripeProcessor) Retrieve(ctx context.Context, holdID string) (Hold, error) {
	pi, err := p.api.GetHold(ctx, holdID)
	if err != nil {
		return Hold{}, err
	}
	return holdFromIntent(pi), nil
}

func holdFromIntent(pi *stripe.PaymentIntent) Hold {
	if pi == nil {
		return Hold{Status: enums.HoldStatusFailed}
	}
	return Hold{
		HoldID:      pi.ID,
		ClientToken: pi.ClientSecret,
		Status:      stripeHoldStatus(pi),
		AmountMinor: pi.Amount,
		Currency:    string(pi.Currency),
	}
}

// stripeHoldStatus treats requires_payment_method as failed only after a
// payment attempt was declined. A fresh intent is awaiting the payer.
func stripeHoldStatus(pi *stripe.PaymentIntent) enums.HoldStatus {
	switch pi.Status {
	case stripe.PaymentIntentStatusRequiresCapture:
		return enums.HoldStatusAuthorized
	case stripe.PaymentIntentStatusSucceeded:
		return enums.HoldStatusCaptured
	case stripe.PaymentIntentStatusCanceled:
		return enums.HoldStatusReleased
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if pi.LastPaymentError != nil {
			return enums.HoldStatusFailed
		}
		return enums.HoldStatusPending
	default:
		return enums.HoldStatusPending
	}
}

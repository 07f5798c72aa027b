package payments

import (
	"context"
	"errors"

	sq "github.com/square/square-go-sdk"

	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	pkgsquare "github.com/angelmondragon/auctionhouse-backend/pkg/square"
)

// SquareAPI is the subset of the Square client the processor needs.
type SquareAPI interface {
	AuthorizePayment(ctx context.Context, params pkgsquare.PaymentCreateParams) (*sq.Payment, error)
	CompletePayment(ctx context.Context, paymentID string) (*sq.Payment, error)
	CancelPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
}

// SquareProcessor places holds as delayed-capture Square payments.
type SquareProcessor struct {
	api SquareAPI
}

func NewSquareProcessor(api SquareAPI) (*SquareProcessor, error) {
	if api == nil {
		return nil, errors.New("square api required")
	}
	return &SquareProcessor{api: api}, nil
}

func (p *SquareProcessor) Name() string { return "square" }

func (p *SquareProcessor) Authorize(ctx context.Context, req AuthorizationRequest) (Hold, error) {
	payment, err := p.api.AuthorizePayment(ctx, pkgsquare.PaymentCreateParams{
		AmountMinor:    req.AmountMinor,
		Currency:       req.Currency,
		SourceID:       req.SourceID,
		IdempotencyKey: req.IdempotencyKey,
		ReferenceID:    req.Reference.String(),
	})
	if err != nil {
		return Hold{}, err
	}
	return holdFromPayment(payment), nil
}

func (p *SquareProcessor) Capture(ctx context.Context, holdID, _ string) (Hold, error) {
	payment, err := p.api.CompletePayment(ctx, holdID)
	if err != nil {
		return Hold{}, err
	}
	return holdFromPayment(payment), nil
}

func (p *SquareProcessor) Cancel(ctx context.Context, holdID, _ string) (Hold, error) {
	payment, err := p.api.CancelPayment(ctx, holdID)
	if err != nil {
		return Hold{}, err
	}
	return holdFromPayment(payment), nil
}

func (p *SquareProcessor) Retrieve(ctx context.Context, holdID string) (Hold, error) {
	payment, err := p.api.GetPayment(ctx, holdID)
	if err != nil {
		return Hold{}, err
	}
	return holdFromPayment(payment), nil
}

func holdFromPayment(payment *sq.Payment) Hold {
	if payment == nil {
		return Hold{Status: enums.HoldStatusFailed}
	}
	hold := Hold{Status: squareHoldStatus(deref(payment.GetStatus()))}
	if id := payment.GetID(); id != nil {
		hold.HoldID = *id
	}
	if money := payment.GetAmountMoney(); money != nil {
		if money.Amount != nil {
			hold.AmountMinor = *money.Amount
		}
		if money.Currency != nil {
			hold.Currency = string(*money.Currency)
		}
	}
	return hold
}

func squareHoldStatus(status string) enums.HoldStatus {
	switch status {
	case "APPROVED":
		return enums.HoldStatusAuthorized
	case "COMPLETED":
		return enums.HoldStatusCaptured
	case "CANCELED":
		return enums.HoldStatusReleased
	case "FAILED":
		return enums.HoldStatusFailed
	default:
		return enums.HoldStatusPending
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

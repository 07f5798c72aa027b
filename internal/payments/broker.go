package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/auctionhouse-backend/internal/ledger"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/auctionhouse-backend/pkg/errors"
	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
	"github.com/angelmondragon/auctionhouse-backend/pkg/metrics"
)

// HoldBroker is what bidding and escrow depend on.
type HoldBroker interface {
	Authorize(ctx context.Context, in AuthorizeInput) (*Hold, error)
	Capture(ctx context.Context, ref Reference, holdID string) (*Hold, error)
	Release(ctx context.Context, ref Reference, holdID string) (*Hold, error)
	Status(ctx context.Context, holdID string) (*Hold, error)
	ClientConfirmation() bool
}

// AuthorizeInput is a decimal amount in major units. Revision separates
// deliberate re-authorizations (new card, revised offer) from retries of the
// same request. With AllowPending a hold still awaiting the payer's
// confirmation is returned instead of cancelled.
type AuthorizeInput struct {
	Amount       decimal.Decimal
	Currency     string
	Reference    Reference
	SourceID     string
	Revision     string
	AllowPending bool
}

type BrokerParams struct {
	Processor Processor
	Ledger    ledger.Service
	Logger    *logger.Logger
	Metrics   *metrics.AuctionMetrics
}

// Broker converts amounts to minor units at the processor boundary, makes
// settle calls idempotent and records every outcome in the payment ledger.
// It holds no business state.
type Broker struct {
	processor Processor
	ledger    ledger.Service
	logg      *logger.Logger
	metrics   *metrics.AuctionMetrics
}

func NewBroker(params BrokerParams) (*Broker, error) {
	if params.Processor == nil {
		return nil, errors.New("payment processor required")
	}
	if params.Ledger == nil {
		return nil, errors.New("ledger service required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	return &Broker{
		processor: params.Processor,
		ledger:    params.Ledger,
		logg:      params.Logger,
		metrics:   params.Metrics,
	}, nil
}

// AuthorizeKey is the processor idempotency key for a hold request. A retry
// with the same reference, amount and revision reuses the original hold.
func AuthorizeKey(ref Reference, amountMinor int64, revision string) string {
	key := fmt.Sprintf("%s-%d", ref.String(), amountMinor)
	if revision = strings.TrimSpace(revision); revision != "" {
		key += "-" + revision
	}
	return key
}

func (b *Broker) Authorize(ctx context.Context, in AuthorizeInput) (*Hold, error) {
	if !in.Reference.Type.IsValid() || in.Reference.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	if !in.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	currency, err := NormalizeCurrency(in.Currency)
	if err != nil {
		return nil, err
	}
	minor, err := ToMinorUnits(in.Amount, currency)
	if err != nil {
		return nil, err
	}

	ctx = b.logg.WithFields(ctx, map[string]any{
		"provider":       b.processor.Name(),
		"reference_type": in.Reference.Type,
		"reference_id":   in.Reference.ID.String(),
		"amount_minor":   minor,
	})

	hold, err := b.processor.Authorize(ctx, AuthorizationRequest{
		AmountMinor:    minor,
		Currency:       currency,
		SourceID:       strings.TrimSpace(in.SourceID),
		IdempotencyKey: AuthorizeKey(in.Reference, minor, in.Revision),
		Reference:      in.Reference,
	})
	if err != nil {
		b.record(ctx, in.Reference, "", enums.PaymentLedgerFailed, minor, currency, err)
		b.metrics.IncPayment(b.processor.Name(), "authorize", "error")
		b.logg.Warn(ctx, "payment authorization failed")
		return nil, asPaymentError(err, "payment authorization failed")
	}

	if in.AllowPending && hold.Status == enums.HoldStatusPending && hold.HoldID != "" {
		if hold.AmountMinor == 0 {
			hold.AmountMinor = minor
		}
		if hold.Currency == "" {
			hold.Currency = currency
		}
		b.record(ctx, in.Reference, hold.HoldID, enums.PaymentLedgerPending, minor, currency, nil)
		b.metrics.IncPayment(b.processor.Name(), "authorize", "pending")
		b.logg.Info(b.logg.WithField(ctx, "hold_id", hold.HoldID), "payment hold awaiting payer confirmation")
		return &hold, nil
	}

	if !hold.Status.IsConfirmed() {
		b.record(ctx, in.Reference, hold.HoldID, enums.PaymentLedgerFailed, minor, currency, fmt.Errorf("hold status %s", hold.Status))
		b.metrics.IncPayment(b.processor.Name(), "authorize", "unconfirmed")
		if hold.HoldID != "" && hold.Status == enums.HoldStatusPending {
			if _, cancelErr := b.processor.Cancel(ctx, hold.HoldID, "cancel-"+hold.HoldID); cancelErr != nil {
				b.logg.Warn(ctx, "failed to cancel unconfirmed hold")
			}
		}
		return nil, pkgerrors.Newf(pkgerrors.CodePayment, "payment authorization not confirmed (%s)", hold.Status)
	}

	if hold.AmountMinor == 0 {
		hold.AmountMinor = minor
	}
	if hold.Currency == "" {
		hold.Currency = currency
	}
	b.record(ctx, in.Reference, hold.HoldID, enums.PaymentLedgerAuthorized, minor, currency, nil)
	b.metrics.IncPayment(b.processor.Name(), "authorize", "success")
	b.logg.Info(b.logg.WithField(ctx, "hold_id", hold.HoldID), "payment hold authorized")
	return &hold, nil
}

// Capture moves the held funds. A hold that is already captured is reported
// as success.
func (b *Broker) Capture(ctx context.Context, ref Reference, holdID string) (*Hold, error) {
	return b.settle(ctx, "capture", ref, holdID, enums.HoldStatusCaptured, enums.PaymentLedgerCaptured, b.processor.Capture)
}

// Release frees the hold without transfer. A hold that is already released is
// reported as success.
func (b *Broker) Release(ctx context.Context, ref Reference, holdID string) (*Hold, error) {
	return b.settle(ctx, "release", ref, holdID, enums.HoldStatusReleased, enums.PaymentLedgerReleased, b.processor.Cancel)
}

// ClientConfirmation reports whether holds can be placed without a payment
// source and confirmed later by the payer.
func (b *Broker) ClientConfirmation() bool {
	c, ok := b.processor.(ClientConfirmer)
	return ok && c.ConfirmsClientSide()
}

func (b *Broker) Status(ctx context.Context, holdID string) (*Hold, error) {
	if strings.TrimSpace(holdID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "hold id is required")
	}
	hold, err := b.processor.Retrieve(ctx, holdID)
	if err != nil {
		return nil, asPaymentError(err, "payment status lookup failed")
	}
	return &hold, nil
}

type settleFunc func(ctx context.Context, holdID, idempotencyKey string) (Hold, error)

func (b *Broker) settle(
	ctx context.Context,
	op string,
	ref Reference,
	holdID string,
	target enums.HoldStatus,
	ledgerType enums.PaymentLedgerEventType,
	call settleFunc,
) (*Hold, error) {
	if strings.TrimSpace(holdID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "hold id is required")
	}
	ctx = b.logg.WithFields(ctx, map[string]any{
		"provider":       b.processor.Name(),
		"operation":      op,
		"hold_id":        holdID,
		"reference_type": ref.Type,
		"reference_id":   ref.ID.String(),
	})

	hold, err := call(ctx, holdID, op+"-"+holdID)
	if err == nil && hold.Status == target {
		b.record(ctx, ref, holdID, ledgerType, hold.AmountMinor, hold.Currency, nil)
		b.metrics.IncPayment(b.processor.Name(), op, "success")
		b.logg.Info(ctx, "payment hold settled")
		return &hold, nil
	}

	current, lookupErr := b.processor.Retrieve(ctx, holdID)
	if lookupErr == nil && current.Status == target {
		// A prior attempt may have settled without its ledger row landing.
		if seen, err := b.ledger.HasEvent(ctx, ref.Type, ref.ID, ledgerType); err == nil && !seen {
			b.record(ctx, ref, holdID, ledgerType, current.AmountMinor, current.Currency, nil)
		}
		b.metrics.IncPayment(b.processor.Name(), op, "already_settled")
		b.logg.Info(ctx, "payment hold already in target state")
		return &current, nil
	}

	cause := err
	if cause == nil {
		cause = fmt.Errorf("hold status %s after %s", hold.Status, op)
	}
	b.record(ctx, ref, holdID, enums.PaymentLedgerFailed, hold.AmountMinor, hold.Currency, cause)
	b.metrics.IncPayment(b.processor.Name(), op, "error")
	b.logg.Error(ctx, "payment hold settle failed", cause)
	return nil, asPaymentError(cause, fmt.Sprintf("payment %s failed", op))
}

func (b *Broker) record(ctx context.Context, ref Reference, holdID string, kind enums.PaymentLedgerEventType, minor int64, currency string, cause error) {
	var meta json.RawMessage
	if cause != nil {
		meta, _ = json.Marshal(map[string]string{"error": cause.Error()})
	}
	if currency == "" {
		currency = "XXX"
	}
	if _, err := b.ledger.RecordEvent(ctx, ledger.RecordEventInput{
		ReferenceType: ref.Type,
		ReferenceID:   ref.ID,
		HoldID:        holdID,
		Provider:      b.processor.Name(),
		Type:          kind,
		AmountMinor:   minor,
		Currency:      currency,
		Metadata:      meta,
	}); err != nil {
		b.logg.Error(ctx, "failed to record payment ledger event", err)
	}
}

// asPaymentError keeps validation and not-found codes from the processor and
// folds everything else into a retryable payment error.
func asPaymentError(err error, msg string) error {
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeValidation, pkgerrors.CodeNotFound:
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodePayment, err, msg)
}

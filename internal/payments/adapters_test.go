package payments

import (
	"context"
	"testing"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	"github.com/stripe/stripe-go/v84"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	pkgsquare "github.com/angelmondragon/auctionhouse-backend/pkg/square"
	pkgstripe "github.com/angelmondragon/auctionhouse-backend/pkg/stripe"
)

type fakeStripeAPI struct {
	created pkgstripe.HoldParams
	intent  *stripe.PaymentIntent
}

func (f *fakeStripeAPI) CreateHold(_ context.Context, params pkgstripe.HoldParams) (*stripe.PaymentIntent, error) {
	f.created = params
	return f.intent, nil
}

func (f *fakeStripeAPI) CaptureHold(context.Context, string, string) (*stripe.PaymentIntent, error) {
	f.intent.Status = stripe.PaymentIntentStatusSucceeded
	return f.intent, nil
}

func (f *fakeStripeAPI) CancelHold(context.Context, string, string) (*stripe.PaymentIntent, error) {
	f.intent.Status = stripe.PaymentIntentStatusCanceled
	return f.intent, nil
}

func (f *fakeStripeAPI) GetHold(context.Context, string) (*stripe.PaymentIntent, error) {
	return f.intent, nil
}

func TestStripeProcessorMapsIntentStatus(t *testing.T) {
	api := &fakeStripeAPI{intent: &stripe.PaymentIntent{
		ID:           "pi_1",
		ClientSecret: "pi_1_secret",
		Status:       stripe.PaymentIntentStatusRequiresCapture,
		Amount:       12550,
		Currency:     "usd",
	}}
	proc, err := NewStripeProcessor(api)
	require.NoError(t, err)

	ref := Reference{Type: enums.PaymentReferenceBid, ID: uuid.New()}
	hold, err := proc.Authorize(context.Background(), AuthorizationRequest{AmountMinor: 12550, Currency: "USD", SourceID: "pm_card_visa", IdempotencyKey: "k", Reference: ref})
	require.NoError(t, err)
	assert.Equal(t, enums.HoldStatusAuthorized, hold.Status)
	assert.Equal(t, "pi_1_secret", hold.ClientToken)
	assert.Equal(t, ref.ID.String(), api.created.Metadata["reference_id"])
	assert.Equal(t, "pm_card_visa", api.created.PaymentMethod)

	captured, err := proc.Capture(context.Background(), "pi_1", "capture-pi_1")
	require.NoError(t, err)
	assert.Equal(t, enums.HoldStatusCaptured, captured.Status)

	assert.Equal(t, enums.HoldStatusPending, stripeHoldStatus(&stripe.PaymentIntent{Status: stripe.PaymentIntentStatusRequiresAction}))
	assert.Equal(t, enums.HoldStatusReleased, stripeHoldStatus(&stripe.PaymentIntent{Status: stripe.PaymentIntentStatusCanceled}))
	assert.True(t, proc.ConfirmsClientSide())
}

func TestStripeIntentWithoutPaymentMethodAwaitsPayer(t *testing.T) {
	fresh := &stripe.PaymentIntent{Status: stripe.PaymentIntentStatusRequiresPaymentMethod}
	assert.Equal(t, enums.HoldStatusPending, stripeHoldStatus(fresh))

	declined := &stripe.PaymentIntent{
		Status:           stripe.PaymentIntentStatusRequiresPaymentMethod,
		LastPaymentError: &stripe.Error{Code: stripe.ErrorCodeCardDeclined},
	}
	assert.Equal(t, enums.HoldStatusFailed, stripeHoldStatus(declined))

	api := &fakeStripeAPI{intent: &stripe.PaymentIntent{
		ID:           "pi_2",
		ClientSecret: "pi_2_secret",
		Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
		Amount:       500,
		Currency:     "usd",
	}}
	proc, err := NewStripeProcessor(api)
	require.NoError(t, err)
	hold, err := proc.Authorize(context.Background(), AuthorizationRequest{AmountMinor: 500, Currency: "USD", IdempotencyKey: "k2", Reference: Reference{Type: enums.PaymentReferenceEscrow, ID: uuid.New()}})
	require.NoError(t, err)
	assert.Equal(t, enums.HoldStatusPending, hold.Status)
	assert.Equal(t, "pi_2_secret", hold.ClientToken)
	assert.Empty(t, api.created.PaymentMethod)
}

type fakeSquareAPI struct {
	params pkgsquare.PaymentCreateParams
	status string
}

func (f *fakeSquareAPI) payment() *sq.Payment {
	id := "sq_1"
	amount := f.params.AmountMinor
	currency := sq.Currency("USD")
	status := f.status
	return &sq.Payment{ID: &id, Status: &status, AmountMoney: &sq.Money{Amount: &amount, Currency: &currency}}
}

func (f *fakeSquareAPI) AuthorizePayment(_ context.Context, params pkgsquare.PaymentCreateParams) (*sq.Payment, error) {
	f.params = params
	f.status = "APPROVED"
	return f.payment(), nil
}

func (f *fakeSquareAPI) CompletePayment(context.Context, string) (*sq.Payment, error) {
	f.status = "COMPLETED"
	return f.payment(), nil
}

func (f *fakeSquareAPI) CancelPayment(context.Context, string) (*sq.Payment, error) {
	f.status = "CANCELED"
	return f.payment(), nil
}

func (f *fakeSquareAPI) GetPayment(context.Context, string) (*sq.Payment, error) {
	return f.payment(), nil
}

func TestSquareProcessorMapsPaymentStatus(t *testing.T) {
	api := &fakeSquareAPI{}
	proc, err := NewSquareProcessor(api)
	require.NoError(t, err)

	ref := Reference{Type: enums.PaymentReferenceEscrow, ID: uuid.New()}
	hold, err := proc.Authorize(context.Background(), AuthorizationRequest{AmountMinor: 4200, Currency: "USD", SourceID: "cnon:ok", IdempotencyKey: "k", Reference: ref})
	require.NoError(t, err)
	assert.Equal(t, enums.HoldStatusAuthorized, hold.Status)
	assert.Equal(t, int64(4200), hold.AmountMinor)
	assert.Equal(t, ref.String(), api.params.ReferenceID)

	released, err := proc.Cancel(context.Background(), "sq_1", "")
	require.NoError(t, err)
	assert.Equal(t, enums.HoldStatusReleased, released.Status)

	assert.Equal(t, enums.HoldStatusFailed, squareHoldStatus("FAILED"))
	assert.Equal(t, enums.HoldStatusPending, squareHoldStatus("PENDING"))
}

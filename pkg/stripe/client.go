package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"

	"github.com/angelmondragon/auctionhouse-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/auctionhouse-backend/pkg/errors"
	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// HoldParams describes a manual-capture PaymentIntent.
type HoldParams struct {
	AmountMinor    int64
	Currency       string
	PaymentMethod  string
	IdempotencyKey string
	Metadata       map[string]string
}

// Client wraps the PaymentIntent calls used for authorization holds.
type Client struct {
	environment string
	logg        *logger.Logger
}

// NewClient initializes Stripe once with the configured key and env.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	stripe.Key = apiKey

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("stripe client initialized (%s)", env))
	}
	return &Client{environment: env, logg: logg}, nil
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// CreateHold creates and confirms a PaymentIntent with manual capture.
func (c *Client) CreateHold(ctx context.Context, in HoldParams) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(in.AmountMinor),
		Currency:      stripe.String(strings.ToLower(in.Currency)),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	if pm := strings.TrimSpace(in.PaymentMethod); pm != "" {
		params.PaymentMethod = stripe.String(pm)
		params.Confirm = stripe.Bool(true)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}
	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, mapStripeError(err, "create hold")
	}
	c.debug(ctx, "stripe hold created", pi)
	return pi, nil
}

func (c *Client) CaptureHold(ctx context.Context, id, idempotencyKey string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}
	pi, err := paymentintent.Capture(id, params)
	if err != nil {
		return nil, mapStripeError(err, "capture hold")
	}
	c.debug(ctx, "stripe hold captured", pi)
	return pi, nil
}

func (c *Client) CancelHold(ctx context.Context, id, idempotencyKey string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}
	pi, err := paymentintent.Cancel(id, params)
	if err != nil {
		return nil, mapStripeError(err, "cancel hold")
	}
	c.debug(ctx, "stripe hold cancelled", pi)
	return pi, nil
}

func (c *Client) GetHold(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := paymentintent.Get(id, params)
	if err != nil {
		return nil, mapStripeError(err, "get hold")
	}
	return pi, nil
}

func (c *Client) debug(ctx context.Context, msg string, pi *stripe.PaymentIntent) {
	if c == nil || c.logg == nil || pi == nil {
		return
	}
	c.logg.Debug(c.logg.WithFields(ctx, map[string]any{
		"payment_intent_id": pi.ID,
		"status":            string(pi.Status),
	}), msg)
}

func mapStripeError(err error, op string) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("stripe %s failed", op))
	}
	code := pkgerrors.CodeDependency
	switch {
	case stripeErr.Type == stripe.ErrorTypeCard:
		code = pkgerrors.CodePayment
	case stripeErr.Type == stripe.ErrorTypeIdempotency:
		code = pkgerrors.CodeIdempotency
	case stripeErr.HTTPStatusCode == http.StatusUnauthorized:
		code = pkgerrors.CodeUnauthorized
	case stripeErr.HTTPStatusCode == http.StatusNotFound:
		code = pkgerrors.CodeNotFound
	case stripeErr.HTTPStatusCode == http.StatusTooManyRequests:
		code = pkgerrors.CodeRateLimit
	case stripeErr.HTTPStatusCode == http.StatusPaymentRequired:
		code = pkgerrors.CodePayment
	case stripeErr.HTTPStatusCode >= 400 && stripeErr.HTTPStatusCode < 500:
		code = pkgerrors.CodeValidation
	}
	return pkgerrors.Wrap(code, err, fmt.Sprintf("stripe %s failed", op))
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "sk_test") || strings.HasPrefix(key, "rk_test") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a test secret key (sk_test/rk_test)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a live secret key (sk_live/rk_live)", liveEnv)
	default:
		return errInvalidStripeEnv
	}
}

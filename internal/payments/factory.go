package payments

import (
	"context"
	"fmt"

	"github.com/angelmondragon/auctionhouse-backend/pkg/config"
	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
	pkgsquare "github.com/angelmondragon/auctionhouse-backend/pkg/square"
	pkgstripe "github.com/angelmondragon/auctionhouse-backend/pkg/stripe"
)

// NewProcessor builds the processor selected by AUCTIONHOUSE_PAYMENTS_PROVIDER.
func NewProcessor(ctx context.Context, cfg *config.Config, logg *logger.Logger) (Processor, error) {
	switch cfg.Payments.ProviderName() {
	case config.PaymentProviderStripe:
		client, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			return nil, err
		}
		return NewStripeProcessor(client)
	case config.PaymentProviderSquare:
		client, err := pkgsquare.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return nil, err
		}
		return NewSquareProcessor(client)
	case config.PaymentProviderSandbox, "":
		if cfg.App.IsProd() {
			return nil, fmt.Errorf("sandbox payment provider is not allowed in %s", cfg.App.Env)
		}
		return NewSandboxProcessor(), nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.Payments.Provider)
	}
}

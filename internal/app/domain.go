// Package app assembles the auction domain services shared by the API and
// the cron worker.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/auctionhouse-backend/internal/auctions"
	"github.com/angelmondragon/auctionhouse-backend/internal/bids"
	"github.com/angelmondragon/auctionhouse-backend/internal/escrow"
	"github.com/angelmondragon/auctionhouse-backend/internal/ledger"
	"github.com/angelmondragon/auctionhouse-backend/internal/listings"
	"github.com/angelmondragon/auctionhouse-backend/internal/notifications"
	"github.com/angelmondragon/auctionhouse-backend/internal/payments"
	"github.com/angelmondragon/auctionhouse-backend/internal/scheduledtasks"
	"github.com/angelmondragon/auctionhouse-backend/pkg/config"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db"
	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
	"github.com/angelmondragon/auctionhouse-backend/pkg/metrics"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox"
)

type DomainParams struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      *db.Client
	Metrics *metrics.AuctionMetrics
	// Processor overrides the configured payment provider.
	Processor payments.Processor
}

// Domain holds every service wired to one database.
type Domain struct {
	Outbox            *outbox.Service
	OutboxRepo        *outbox.Repository
	Tasks             *scheduledtasks.Service
	Broker            *payments.Broker
	Listings          *listings.Service
	Bids              *bids.Service
	Escrow            *escrow.Service
	Sweeper           *auctions.Sweeper
	Notifications     notifications.Service
	NotificationsRepo notifications.Repository
}

func NewDomain(ctx context.Context, params DomainParams) (*Domain, error) {
	if params.Config == nil {
		return nil, errors.New("config required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.DB == nil {
		return nil, errors.New("database client required")
	}
	cfg := params.Config
	logg := params.Logger
	conn := params.DB.DB()

	processor := params.Processor
	if processor == nil {
		var err error
		processor, err = payments.NewProcessor(ctx, cfg, logg)
		if err != nil {
			return nil, fmt.Errorf("payment processor: %w", err)
		}
	}

	ledgerService, err := ledger.NewService(ledger.NewRepository(conn))
	if err != nil {
		return nil, err
	}
	broker, err := payments.NewBroker(payments.BrokerParams{
		Processor: processor,
		Ledger:    ledgerService,
		Logger:    logg,
		Metrics:   params.Metrics,
	})
	if err != nil {
		return nil, err
	}

	outboxRepo := outbox.NewRepository(conn)
	outboxService := outbox.NewService(outboxRepo, logg)

	tasks, err := scheduledtasks.NewService(scheduledtasks.ServiceParams{
		Repo:   scheduledtasks.NewRepository(conn),
		Config: cfg.Tasks,
		Logger: logg,
	})
	if err != nil {
		return nil, err
	}

	escrowService, err := escrow.NewService(escrow.ServiceParams{
		Repo:      escrow.NewRepository(conn),
		Tx:        params.DB,
		Broker:    broker,
		Scheduler: tasks,
		Outbox:    outboxService,
		Config:    cfg.Escrow,
		Logger:    logg,
		Metrics:   params.Metrics,
	})
	if err != nil {
		return nil, err
	}

	listingService, err := listings.NewService(listings.ServiceParams{
		Repo:            listings.NewRepository(conn),
		Tx:              params.DB,
		Scheduler:       tasks,
		Outbox:          outboxService,
		Config:          cfg.Auctions,
		DefaultCurrency: cfg.Payments.Currency,
		MaxAmount:       cfg.Bidding.MaxAmount,
		Logger:          logg,
	})
	if err != nil {
		return nil, err
	}

	bidRepo := bids.NewRepository(conn)
	bidService, err := bids.NewService(bids.ServiceParams{
		Repo:      bidRepo,
		Tx:        params.DB,
		Broker:    broker,
		Scheduler: tasks,
		Outbox:    outboxService,
		Escrow:    escrowService,
		Config:    cfg.Bidding,
		Logger:    logg,
		Metrics:   params.Metrics,
	})
	if err != nil {
		return nil, err
	}

	sweeper, err := auctions.NewSweeper(auctions.SweeperParams{
		Repo:      auctions.NewRepository(conn),
		Bids:      bidRepo,
		Tx:        params.DB,
		Escrow:    escrowService,
		Scheduler: tasks,
		Outbox:    outboxService,
		Config:    cfg.Auctions,
		Logger:    logg,
		Metrics:   params.Metrics,
	})
	if err != nil {
		return nil, err
	}

	notificationsRepo := notifications.NewRepository(conn)
	notificationService, err := notifications.NewService(notificationsRepo)
	if err != nil {
		return nil, err
	}

	bidService.RegisterHandlers(tasks)
	escrowService.RegisterHandlers(tasks)
	listingService.RegisterHandlers(tasks)

	return &Domain{
		Outbox:            outboxService,
		OutboxRepo:        outboxRepo,
		Tasks:             tasks,
		Broker:            broker,
		Listings:          listingService,
		Bids:              bidService,
		Escrow:            escrowService,
		Sweeper:           sweeper,
		Notifications:     notificationService,
		NotificationsRepo: notificationsRepo,
	}, nil
}

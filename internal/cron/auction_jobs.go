package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/auctionhouse-backend/internal/auctions"
	"github.com/angelmondragon/auctionhouse-backend/internal/listings"
	"github.com/angelmondragon/auctionhouse-backend/internal/scheduledtasks"
	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
	"github.com/angelmondragon/auctionhouse-backend/pkg/metrics"
)

type endedAuctionProcessor interface {
	ProcessEndedAuctions(ctx context.Context, now time.Time) (auctions.Result, error)
}

type dueTaskRunner interface {
	RunDue(ctx context.Context, now time.Time) (scheduledtasks.Result, error)
}

type priceDropEmitter interface {
	EmitPriceDrops(ctx context.Context, now time.Time) (listings.PriceWatchResult, error)
}

type AuctionSweepJobParams struct {
	Logger  *logger.Logger
	Sweeper endedAuctionProcessor
	Metrics *metrics.CronJobMetrics
}

// NewAuctionSweepJob closes auctions whose end time has passed and Dutch
// auctions that have a winning bid.
func NewAuctionSweepJob(params AuctionSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("auction sweeper required")
	}
	return &auctionSweepJob{
		logg:    params.Logger,
		sweeper: params.Sweeper,
		metrics: params.Metrics,
		now:     time.Now,
	}, nil
}

type auctionSweepJob struct {
	logg    *logger.Logger
	sweeper endedAuctionProcessor
	metrics *metrics.CronJobMetrics
	now     func() time.Time
}

func (j *auctionSweepJob) Name() string { return "auction-sweeper" }

func (j *auctionSweepJob) Run(ctx context.Context) error {
	result, err := j.sweeper.ProcessEndedAuctions(ctx, j.now().UTC())
	j.metrics.AddItems(j.Name(), "processed", result.Processed)
	j.metrics.AddItems(j.Name(), "deferred", result.Deferred)
	j.metrics.AddItems(j.Name(), "failed", result.Failed)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"processed": result.Processed,
		"deferred":  result.Deferred,
		"failed":    result.Failed,
	})
	if err != nil {
		return fmt.Errorf("process ended auctions: %w", err)
	}
	j.logg.Info(logCtx, "auction sweep complete")
	return nil
}

type ScheduledTasksJobParams struct {
	Logger  *logger.Logger
	Runner  dueTaskRunner
	Metrics *metrics.CronJobMetrics
}

// NewScheduledTasksJob runs due hold releases, deposit authorizations,
// escrow deadlines and ending-soon reminders.
func NewScheduledTasksJob(params ScheduledTasksJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Runner == nil {
		return nil, fmt.Errorf("task runner required")
	}
	return &scheduledTasksJob{
		logg:    params.Logger,
		runner:  params.Runner,
		metrics: params.Metrics,
		now:     time.Now,
	}, nil
}

type scheduledTasksJob struct {
	logg    *logger.Logger
	runner  dueTaskRunner
	metrics *metrics.CronJobMetrics
	now     func() time.Time
}

func (j *scheduledTasksJob) Name() string { return "scheduled-tasks" }

func (j *scheduledTasksJob) Run(ctx context.Context) error {
	result, err := j.runner.RunDue(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("run due tasks: %w", err)
	}
	j.metrics.AddItems(j.Name(), "done", result.Done)
	j.metrics.AddItems(j.Name(), "retried", result.Retried)
	j.metrics.AddItems(j.Name(), "failed", result.Failed)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"done":    result.Done,
		"retried": result.Retried,
		"failed":  result.Failed,
	}), "scheduled tasks complete")
	return nil
}

type PriceWatchJobParams struct {
	Logger   *logger.Logger
	Listings priceDropEmitter
	Metrics  *metrics.CronJobMetrics
}

// NewPriceWatchJob reprices decaying Dutch listings and notifies watchers.
func NewPriceWatchJob(params PriceWatchJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Listings == nil {
		return nil, fmt.Errorf("listings service required")
	}
	return &priceWatchJob{
		logg:     params.Logger,
		listings: params.Listings,
		metrics:  params.Metrics,
		now:      time.Now,
	}, nil
}

type priceWatchJob struct {
	logg     *logger.Logger
	listings priceDropEmitter
	metrics  *metrics.CronJobMetrics
	now      func() time.Time
}

func (j *priceWatchJob) Name() string { return "price-watch" }

func (j *priceWatchJob) Run(ctx context.Context) error {
	result, err := j.listings.EmitPriceDrops(ctx, j.now().UTC())
	j.metrics.AddItems(j.Name(), "repriced", result.Repriced)
	j.metrics.AddItems(j.Name(), "notified", result.Notified)
	if err != nil {
		return fmt.Errorf("emit price drops: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"repriced": result.Repriced,
		"notified": result.Notified,
	}), "price watch complete")
	return nil
}

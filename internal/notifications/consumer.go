package notifications

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox/registry"
)

type eventDecoder interface {
	Decode(eventType enums.OutboxEventType, body []byte) (*registry.ResolvedEvent, error)
}

// ConsumerParams wires one fan-out consumer to one subscription.
type ConsumerParams struct {
	// Name scopes idempotency claims; each subscription gets its own.
	Name         string
	Repo         Repository
	Subscription *pubsub.Subscriber
	Decoder      eventDecoder
	Idempotency  *idempotency.Manager
	Logger       *logger.Logger
}

// Consumer turns auction and escrow domain events into per-user notifications.
type Consumer struct {
	name         string
	repo         Repository
	subscription *pubsub.Subscriber
	decoder      eventDecoder
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewConsumer builds a notification fan-out consumer.
func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Name == "" {
		return nil, fmt.Errorf("consumer name required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if params.Subscription == nil {
		return nil, fmt.Errorf("subscription required")
	}
	if params.Decoder == nil {
		return nil, fmt.Errorf("event decoder required")
	}
	if params.Idempotency == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		name:         params.Name,
		repo:         params.Repo,
		subscription: params.Subscription,
		decoder:      params.Decoder,
		idempotency:  params.Idempotency,
		logg:         params.Logger,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg.ID, msg.Attributes, msg.Data)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack      bool
	nack     bool
	inserted int64
}

func (c *Consumer) process(ctx context.Context, messageID string, attrs map[string]string, data []byte) processResult {
	eventType := enums.OutboxEventType(attrs["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"consumer":   c.name,
		"message_id": messageID,
		"event_type": string(eventType),
	})

	event, err := c.decoder.Decode(eventType, data)
	if err != nil {
		if registry.IsNonRetryable(err) {
			c.logg.Error(logCtx, "dropping undecodable event", err)
			return processResult{ack: true}
		}
		c.logg.Error(logCtx, "failed to decode event", err)
		return processResult{nack: true}
	}

	eventID, err := uuid.Parse(event.Envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID.String())

	first, err := c.idempotency.Claim(ctx, c.name, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if !first {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	rows, err := Plan(event)
	if err != nil {
		var nonRetryable registry.NonRetryableError
		if errors.As(err, &nonRetryable) {
			c.logg.Error(logCtx, "no notification plan for event", err)
			return processResult{ack: true}
		}
		c.release(logCtx, eventID)
		return processResult{nack: true}
	}

	inserted, err := c.repo.Insert(ctx, rows)
	if err != nil {
		c.logg.Error(logCtx, "failed to store notifications", err)
		c.release(logCtx, eventID)
		return processResult{nack: true}
	}

	c.logg.Info(c.logg.WithFields(logCtx, map[string]any{
		"planned":  len(rows),
		"inserted": inserted,
	}), "notifications fanned out")
	return processResult{ack: true, inserted: inserted}
}

func (c *Consumer) release(ctx context.Context, eventID uuid.UUID) {
	if err := c.idempotency.Release(ctx, c.name, eventID); err != nil {
		c.logg.Error(ctx, "failed to release idempotency claim", err)
	}
}

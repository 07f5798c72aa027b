package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/auctionhouse-backend/pkg/config"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate, topic and payload.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is a decoded outbox row or Pub/Sub message.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks failures that retrying cannot fix.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err carries a NonRetryableError.
func IsNonRetryable(err error) bool {
	var target NonRetryableError
	return errors.As(err, &target)
}

// NewEventRegistry routes auction-side events to the auction topic and
// escrow events to the escrow topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.AuctionTopic == "" {
		return nil, errors.New("auction topic is required")
	}
	if cfg.EscrowTopic == "" {
		return nil, errors.New("escrow topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	auction := []EventDescriptor{
		{EventType: enums.EventBidPlaced, AggregateType: enums.AggregateListing, PayloadFactory: func() any { return &payloads.BidPlacedEvent{} }},
		{EventType: enums.EventOfferSubmitted, AggregateType: enums.AggregateOffer, PayloadFactory: func() any { return &payloads.OfferSubmittedEvent{} }},
		{EventType: enums.EventOfferAccepted, AggregateType: enums.AggregateOffer, PayloadFactory: func() any { return &payloads.OfferAcceptedEvent{} }},
		{EventType: enums.EventListingPriceDropped, AggregateType: enums.AggregateListing, PayloadFactory: func() any { return &payloads.ListingPriceDroppedEvent{} }},
		{EventType: enums.EventAuctionEndingSoon, AggregateType: enums.AggregateListing, PayloadFactory: func() any { return &payloads.AuctionEndingSoonEvent{} }},
		{EventType: enums.EventAuctionEnded, AggregateType: enums.AggregateListing, PayloadFactory: func() any { return &payloads.AuctionEndedEvent{} }},
	}
	for _, desc := range auction {
		desc.Topic = cfg.AuctionTopic
		reg.register(desc)
	}

	escrow := []EventDescriptor{
		{EventType: enums.EventEscrowCreated, AggregateType: enums.AggregateEscrow, PayloadFactory: func() any { return &payloads.EscrowCreatedEvent{} }},
		{EventType: enums.EventEscrowTransitioned, AggregateType: enums.AggregateEscrow, PayloadFactory: func() any { return &payloads.EscrowTransitionedEvent{} }},
		{EventType: enums.EventEscrowReminder, AggregateType: enums.AggregateEscrow, PayloadFactory: func() any { return &payloads.EscrowReminderEvent{} }},
	}
	for _, desc := range escrow {
		desc.Topic = cfg.EscrowTopic
		reg.register(desc)
	}
	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	r.entries[desc.EventType] = desc
}

// Descriptor returns the registered descriptor for eventType.
func (r *EventRegistry) Descriptor(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	desc, ok := r.entries[eventType]
	return desc, ok
}

// Resolve validates an outbox row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(errors.New("missing aggregate_id"))
	}
	return r.Decode(event.EventType, event.Payload)
}

// Decode parses an envelope body for a known event type. Consumers call it
// with the Pub/Sub message data.
func (r *EventRegistry) Decode(eventType enums.OutboxEventType, body []byte) (*ResolvedEvent, error) {
	desc, ok := r.entries[eventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", eventType))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", eventType))
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", eventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}

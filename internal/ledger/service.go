package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
)

// Service records the append-only history of authorization holds.
type Service interface {
	RecordEvent(ctx context.Context, input RecordEventInput) (*models.PaymentLedgerEvent, error)
	HasEvent(ctx context.Context, refType enums.PaymentReferenceType, refID uuid.UUID, eventType enums.PaymentLedgerEventType) (bool, error)
	History(ctx context.Context, refType enums.PaymentReferenceType, refID uuid.UUID) ([]models.PaymentLedgerEvent, error)
}

type service struct {
	repo Repository
}

// RecordEventInput captures the immutable data a ledger event requires.
type RecordEventInput struct {
	ReferenceType enums.PaymentReferenceType   `json:"reference_type"`
	ReferenceID   uuid.UUID                    `json:"reference_id"`
	HoldID        string                       `json:"hold_id"`
	Provider      string                       `json:"provider"`
	Type          enums.PaymentLedgerEventType `json:"type"`
	AmountMinor   int64                        `json:"amount_minor"`
	Currency      string                       `json:"currency"`
	Metadata      json.RawMessage              `json:"metadata"`
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) RecordEvent(ctx context.Context, input RecordEventInput) (*models.PaymentLedgerEvent, error) {
	if !input.ReferenceType.IsValid() {
		return nil, fmt.Errorf("invalid reference type %q", input.ReferenceType)
	}
	if input.ReferenceID == uuid.Nil {
		return nil, fmt.Errorf("reference id is required")
	}
	if strings.TrimSpace(input.Provider) == "" {
		return nil, fmt.Errorf("provider is required")
	}
	if !input.Type.IsValid() {
		return nil, fmt.Errorf("invalid ledger event type %q", input.Type)
	}
	if input.AmountMinor < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}

	event := &models.PaymentLedgerEvent{
		ID:            uuid.New(),
		ReferenceType: input.ReferenceType,
		ReferenceID:   input.ReferenceID,
		Provider:      input.Provider,
		Type:          input.Type,
		AmountMinor:   input.AmountMinor,
		Currency:      strings.ToUpper(input.Currency),
		Metadata:      input.Metadata,
		CreatedAt:     time.Now().UTC(),
	}
	if hold := strings.TrimSpace(input.HoldID); hold != "" {
		event.HoldID = &hold
	}

	if err := s.repo.Create(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *service) HasEvent(ctx context.Context, refType enums.PaymentReferenceType, refID uuid.UUID, eventType enums.PaymentLedgerEventType) (bool, error) {
	if !eventType.IsValid() {
		return false, fmt.Errorf("invalid ledger event type %q", eventType)
	}
	events, err := s.History(ctx, refType, refID)
	if err != nil {
		return false, err
	}
	for _, event := range events {
		if event.Type == eventType {
			return true, nil
		}
	}
	return false, nil
}

func (s *service) History(ctx context.Context, refType enums.PaymentReferenceType, refID uuid.UUID) ([]models.PaymentLedgerEvent, error) {
	if refID == uuid.Nil {
		return nil, fmt.Errorf("reference id is required")
	}
	return s.repo.ListByReference(ctx, refType, refID)
}

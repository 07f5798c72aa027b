package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/auctionhouse-backend/pkg/db/dbtest"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
)

type fakeRepository struct {
	createFn func(ctx context.Context, event *models.PaymentLedgerEvent) error
	listFn   func(ctx context.Context, refType enums.PaymentReferenceType, refID uuid.UUID) ([]models.PaymentLedgerEvent, error)
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) Create(ctx context.Context, event *models.PaymentLedgerEvent) error {
	if f.createFn != nil {
		return f.createFn(ctx, event)
	}
	return nil
}

func (f *fakeRepository) ListByReference(ctx context.Context, refType enums.PaymentReferenceType, refID uuid.UUID) ([]models.PaymentLedgerEvent, error) {
	if f.listFn != nil {
		return f.listFn(ctx, refType, refID)
	}
	return nil, nil
}

func validInput() RecordEventInput {
	return RecordEventInput{
		ReferenceType: enums.PaymentReferenceBid,
		ReferenceID:   uuid.New(),
		HoldID:        "pi_123",
		Provider:      "sandbox",
		Type:          enums.PaymentLedgerAuthorized,
		AmountMinor:   12550,
		Currency:      "usd",
		Metadata:      json.RawMessage(`{"attempt":1}`),
	}
}

func TestService_RecordEvent(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	var created *models.PaymentLedgerEvent
	repo.createFn = func(ctx context.Context, event *models.PaymentLedgerEvent) error {
		created = event
		return nil
	}

	input := validInput()
	got, err := svc.RecordEvent(context.Background(), input)
	if err != nil {
		t.Fatalf("RecordEvent error: %v", err)
	}
	if created == nil || got != created {
		t.Fatal("expected the created event to be returned")
	}
	if created.ID == uuid.Nil || created.ReferenceID != input.ReferenceID || created.AmountMinor != 12550 {
		t.Fatalf("unexpected ledger event data: %+v", created)
	}
	if created.Currency != "USD" {
		t.Fatalf("expected upper-cased currency, got %q", created.Currency)
	}
	if created.HoldID == nil || *created.HoldID != "pi_123" {
		t.Fatalf("hold id not recorded: %+v", created.HoldID)
	}
}

func TestService_RecordEventValidation(t *testing.T) {
	svc, _ := NewService(&fakeRepository{})
	cases := map[string]func(*RecordEventInput){
		"reference type": func(in *RecordEventInput) { in.ReferenceType = "order" },
		"reference id":   func(in *RecordEventInput) { in.ReferenceID = uuid.Nil },
		"provider":       func(in *RecordEventInput) { in.Provider = " " },
		"type":           func(in *RecordEventInput) { in.Type = "refunded" },
		"amount":         func(in *RecordEventInput) { in.AmountMinor = -1 },
	}
	for name, mutate := range cases {
		in := validInput()
		mutate(&in)
		if _, err := svc.RecordEvent(context.Background(), in); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestService_RecordEventRepoError(t *testing.T) {
	boom := errors.New("insert failed")
	svc, _ := NewService(&fakeRepository{createFn: func(context.Context, *models.PaymentLedgerEvent) error { return boom }})
	if _, err := svc.RecordEvent(context.Background(), validInput()); !errors.Is(err, boom) {
		t.Fatalf("expected repo error, got %v", err)
	}
}

func TestService_HasEventAgainstSQLite(t *testing.T) {
	svc, err := NewService(NewRepository(dbtest.Open(t)))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	in := validInput()
	if _, err := svc.RecordEvent(ctx, in); err != nil {
		t.Fatalf("record authorized: %v", err)
	}
	captured := in
	captured.Type = enums.PaymentLedgerCaptured
	if _, err := svc.RecordEvent(ctx, captured); err != nil {
		t.Fatalf("record captured: %v", err)
	}

	ok, err := svc.HasEvent(ctx, in.ReferenceType, in.ReferenceID, enums.PaymentLedgerCaptured)
	if err != nil || !ok {
		t.Fatalf("expected captured event, got %v %v", ok, err)
	}
	ok, err = svc.HasEvent(ctx, in.ReferenceType, in.ReferenceID, enums.PaymentLedgerReleased)
	if err != nil || ok {
		t.Fatalf("did not expect released event, got %v %v", ok, err)
	}

	history, err := svc.History(ctx, in.ReferenceType, in.ReferenceID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].Type != enums.PaymentLedgerAuthorized {
		t.Fatalf("unexpected history %+v", history)
	}
}

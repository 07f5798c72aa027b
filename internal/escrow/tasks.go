package escrow

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/auctionhouse-backend/internal/scheduledtasks"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/auctionhouse-backend/pkg/errors"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox/payloads"
)

type taskRegistry interface {
	Register(kind enums.ScheduledTaskKind, handler scheduledtasks.Handler)
}

// RegisterHandlers binds the escrow task kinds on the task processor.
func (s *Service) RegisterHandlers(tasks taskRegistry) {
	tasks.Register(enums.TaskAuthorizeEscrowDeposit, s.HandleAuthorizeDeposit)
	tasks.Register(enums.TaskEscrowReminder, s.HandleReminder)
	tasks.Register(enums.TaskEscrowDeadline, s.HandleDeadline)
}

// HandleAuthorizeDeposit places the deposit hold for a freshly opened
// escrow. Escrows that moved past the funding states are skipped, and so is
// every escrow when the processor needs a payment source from the buyer.
func (s *Service) HandleAuthorizeDeposit(ctx context.Context, task models.ScheduledTask) error {
	payload, err := scheduledtasks.DecodePayload[scheduledtasks.EscrowPayload](task)
	if err != nil {
		return err
	}
	esc, err := s.load(ctx, payload.EscrowID)
	if err != nil {
		return err
	}
	if esc.Status != enums.EscrowStatusDepositPending && esc.Status != enums.EscrowStatusAgreementReached {
		s.logg.Debug(s.logg.WithField(ctx, "escrow_id", esc.ID.String()), "deposit task skipped")
		return nil
	}
	if !s.broker.ClientConfirmation() {
		s.logg.Debug(s.logg.WithField(ctx, "escrow_id", esc.ID.String()), "deposit awaits a payment source from the buyer")
		return nil
	}
	_, _, err = s.AuthorizeDeposit(ctx, esc.ID, nil, "")
	if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		return nil
	}
	return err
}

// HandleReminder nudges the awaited party if the escrow is still in the
// state the reminder was scheduled for.
func (s *Service) HandleReminder(ctx context.Context, task models.ScheduledTask) error {
	payload, err := scheduledtasks.DecodePayload[scheduledtasks.EscrowPayload](task)
	if err != nil {
		return err
	}
	esc, err := s.load(ctx, payload.EscrowID)
	if err != nil {
		return err
	}
	if esc.Status != payload.Status {
		return nil
	}
	reminder, ok := ReminderFor(*esc, s.now().UTC(), s.cfg.ReminderThreshold)
	if !ok {
		return nil
	}
	return s.emitReminder(ctx, esc, reminder)
}

// HandleDeadline cancels an unfunded escrow whose deadline passed. Funded
// escrows are never cancelled by the clock; the awaited party gets a final
// reminder instead.
func (s *Service) HandleDeadline(ctx context.Context, task models.ScheduledTask) error {
	payload, err := scheduledtasks.DecodePayload[scheduledtasks.EscrowPayload](task)
	if err != nil {
		return err
	}
	esc, err := s.load(ctx, payload.EscrowID)
	if err != nil {
		return err
	}
	if esc.Status != payload.Status {
		return nil
	}

	switch esc.Status {
	case enums.EscrowStatusDepositPending, enums.EscrowStatusAgreementReached:
		_, err := s.Transition(ctx, TransitionInput{
			EscrowID: esc.ID,
			Action:   enums.EscrowActionCancel,
			Reason:   "deadline passed",
		})
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			return nil
		}
		return err
	}

	role, ok := AwaitedRole(esc.Status)
	if !ok || esc.DeadlineAt == nil {
		return nil
	}
	recipient := esc.BuyerID
	if role == enums.EscrowRoleSeller {
		recipient = esc.SellerID
	}
	return s.emitReminder(ctx, esc, Reminder{
		RecipientID:    recipient,
		AwaitedRole:    role,
		HoursRemaining: 0,
		DeadlineAt:     *esc.DeadlineAt,
	})
}

func (s *Service) emitReminder(ctx context.Context, esc *models.EscrowTransaction, r Reminder) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEscrowReminder,
			AggregateType: enums.AggregateEscrow,
			AggregateID:   esc.ID,
			Actor:         &outbox.ActorRef{Role: string(enums.EscrowRoleSystem)},
			OccurredAt:    s.now().UTC(),
			Data: payloads.EscrowReminderEvent{
				EscrowID:       esc.ID,
				ListingID:      esc.ListingID,
				Status:         esc.Status,
				RecipientID:    r.RecipientID,
				AwaitedRole:    r.AwaitedRole,
				HoursRemaining: r.HoursRemaining,
				DeadlineAt:     r.DeadlineAt,
			},
		})
	})
	if err != nil {
		return err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"escrow_id":       esc.ID.String(),
		"awaited_role":    r.AwaitedRole,
		"hours_remaining": r.HoursRemaining,
	}), "escrow reminder emitted")
	return nil
}

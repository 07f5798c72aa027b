// Package escrow runs the post-sale settlement workflow: a fixed edge table
// guarded by role, deadlines per state, and payment side effects ordered
// around the conditional state write.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/auctionhouse-backend/internal/payments"
	"github.com/angelmondragon/auctionhouse-backend/internal/scheduledtasks"
	"github.com/angelmondragon/auctionhouse-backend/pkg/config"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/auctionhouse-backend/pkg/errors"
	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
	"github.com/angelmondragon/auctionhouse-backend/pkg/metrics"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox/payloads"
)

const openConstraint = "escrow_open_per_listing"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Opener is what the bid ledger and the sweeper depend on to start
// settlement inside their own transaction.
type Opener interface {
	OpenTx(ctx context.Context, tx *gorm.DB, in OpenInput) (*models.EscrowTransaction, bool, error)
}

// OpenInput names the winning commitment. Exactly one of BidID and OfferID
// is set.
type OpenInput struct {
	ListingID    uuid.UUID
	ListingTitle string
	BuyerID      uuid.UUID
	SellerID     uuid.UUID
	BidID        *uuid.UUID
	OfferID      *uuid.UUID
	Amount       decimal.Decimal
	Currency     string
	Actor        *outbox.ActorRef
}

// TransitionInput drives one edge. A nil ActorID means the system.
type TransitionInput struct {
	EscrowID        uuid.UUID
	Action          enums.EscrowAction
	ActorID         *uuid.UUID
	DeliveryDetails string
	Reason          string
}

type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Broker    payments.HoldBroker
	Scheduler scheduledtasks.Scheduler
	Outbox    outbox.Emitter
	Config    config.EscrowConfig
	Logger    *logger.Logger
	Metrics   *metrics.AuctionMetrics
	Now       func() time.Time
}

type Service struct {
	repo      Repository
	tx        txRunner
	broker    payments.HoldBroker
	scheduler scheduledtasks.Scheduler
	outbox    outbox.Emitter
	cfg       config.EscrowConfig
	logg      *logger.Logger
	metrics   *metrics.AuctionMetrics
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("escrow repository required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Broker == nil {
		return nil, errors.New("hold broker required")
	}
	if params.Scheduler == nil {
		return nil, errors.New("task scheduler required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:      params.Repo,
		tx:        params.Tx,
		broker:    params.Broker,
		scheduler: params.Scheduler,
		outbox:    params.Outbox,
		cfg:       params.Config,
		logg:      params.Logger,
		metrics:   params.Metrics,
		now:       now,
	}, nil
}

// OpenTx creates the escrow for a sale inside tx. A listing that already has
// an open escrow returns it with created=false.
func (s *Service) OpenTx(ctx context.Context, tx *gorm.DB, in OpenInput) (*models.EscrowTransaction, bool, error) {
	if in.ListingID == uuid.Nil || in.BuyerID == uuid.Nil || in.SellerID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "listing, buyer and seller are required")
	}
	if (in.BidID == nil) == (in.OfferID == nil) {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "escrow needs exactly one winning bid or offer")
	}
	if !in.Amount.IsPositive() {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "escrow amount must be positive")
	}
	if in.BuyerID == in.SellerID {
		return nil, false, pkgerrors.New(pkgerrors.CodeConsistency, "buyer and seller must differ")
	}

	repo := s.repo.WithTx(tx)
	existing, err := repo.FindOpenByListing(ctx, in.ListingID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup open escrow")
	}
	if existing != nil {
		return existing, false, nil
	}

	now := s.now().UTC()
	platformFee, escrowFee := Fees(s.cfg, in.Amount, in.Currency)
	esc := &models.EscrowTransaction{
		ID:             uuid.New(),
		ListingID:      in.ListingID,
		BuyerID:        in.BuyerID,
		SellerID:       in.SellerID,
		BidID:          in.BidID,
		OfferID:        in.OfferID,
		Amount:         in.Amount,
		PlatformFee:    platformFee,
		EscrowFee:      escrowFee,
		Currency:       strings.ToUpper(in.Currency),
		Status:         enums.EscrowStatusDepositPending,
		ConversationID: uuid.New(),
		StateEnteredAt: now,
		DeadlineAt:     Deadline(s.cfg, enums.EscrowStatusDepositPending, now),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := repo.Create(ctx, esc); err != nil {
		if db.IsUniqueViolation(err, openConstraint) {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "listing already has an open escrow")
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create escrow")
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventEscrowCreated,
		AggregateType: enums.AggregateEscrow,
		AggregateID:   esc.ID,
		Actor:         in.Actor,
		OccurredAt:    now,
		Data: payloads.EscrowCreatedEvent{
			EscrowID:     esc.ID,
			ListingID:    esc.ListingID,
			ListingTitle: in.ListingTitle,
			BuyerID:      esc.BuyerID,
			SellerID:     esc.SellerID,
			Amount:       esc.Amount,
			PlatformFee:  esc.PlatformFee,
			EscrowFee:    esc.EscrowFee,
			Currency:     esc.Currency,
			DeadlineAt:   esc.DeadlineAt,
		},
	}); err != nil {
		return nil, false, err
	}

	if err := s.scheduler.Schedule(ctx, tx, scheduledtasks.ScheduleInput{
		Kind:      enums.TaskAuthorizeEscrowDeposit,
		DedupeKey: scheduledtasks.AuthorizeDepositKey(esc.ID),
		DueAt:     now,
		Payload:   scheduledtasks.EscrowPayload{EscrowID: esc.ID, Status: esc.Status},
	}); err != nil {
		return nil, false, err
	}
	if err := s.scheduleStateTasks(ctx, tx, esc); err != nil {
		return nil, false, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"escrow_id":  esc.ID.String(),
		"listing_id": esc.ListingID.String(),
	}), "escrow opened")
	return esc, true, nil
}

// Get returns the escrow to one of its parties.
func (s *Service) Get(ctx context.Context, escrowID, userID uuid.UUID) (*models.EscrowTransaction, error) {
	esc, err := s.load(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if _, ok := RoleOf(*esc, userID); !ok {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a party to this escrow")
	}
	return esc, nil
}

// Transition drives one edge. The state write is conditional on the status
// read here. Capture runs before that write. Cancel claims the state first
// and frees the deposit hold afterwards through a durable release task, so a
// driver that commits in between never ends up holding a released deposit.
func (s *Service) Transition(ctx context.Context, in TransitionInput) (*models.EscrowTransaction, error) {
	esc, err := s.load(ctx, in.EscrowID)
	if err != nil {
		return nil, err
	}

	role := enums.EscrowRoleSystem
	if in.ActorID != nil {
		r, ok := RoleOf(*esc, *in.ActorID)
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a party to this escrow")
		}
		role = r
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"escrow_id": esc.ID.String(),
		"action":    in.Action,
		"role":      role,
		"from":      esc.Status,
	})

	edge, err := Guard(esc.Status, in.Action, role)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeConsistency) {
			s.logg.Error(ctx, "rejected escrow transition", err)
		}
		return nil, err
	}

	update := StatusUpdate{To: edge.To}
	var reason string
	switch in.Action {
	case enums.EscrowActionRecordDelivery:
		details := strings.TrimSpace(in.DeliveryDetails)
		if details == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery details are required")
		}
		update.DeliveryDetails = &details
	case enums.EscrowActionDispute:
		reason = strings.TrimSpace(in.Reason)
		if reason == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "dispute reason is required")
		}
		update.DisputeReason = &reason
	case enums.EscrowActionCancel:
		reason = strings.TrimSpace(in.Reason)
	}

	if err := s.applyPayment(ctx, esc, in.Action); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	update.EnteredAt = now
	update.DeadlineAt = Deadline(s.cfg, edge.To, now)

	var updated *models.EscrowTransaction
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.Transition(ctx, esc.ID, esc.Status, update)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update escrow status")
		}
		if !ok {
			if in.Action == enums.EscrowActionReleaseFunds {
				s.logg.Error(ctx, "funds captured but escrow moved on", errors.New("lost status write after capture"))
			}
			return pkgerrors.New(pkgerrors.CodeConflict, "escrow changed concurrently, reload and retry")
		}
		updated, err = repo.FindByID(ctx, esc.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload escrow")
		}

		var actor *outbox.ActorRef
		if in.ActorID != nil {
			actor = &outbox.ActorRef{UserID: *in.ActorID, Role: string(role)}
		} else {
			actor = &outbox.ActorRef{Role: string(enums.EscrowRoleSystem)}
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEscrowTransitioned,
			AggregateType: enums.AggregateEscrow,
			AggregateID:   esc.ID,
			Actor:         actor,
			OccurredAt:    now,
			Data: payloads.EscrowTransitionedEvent{
				EscrowID:   esc.ID,
				ListingID:  esc.ListingID,
				BuyerID:    esc.BuyerID,
				SellerID:   esc.SellerID,
				Action:     in.Action,
				From:       esc.Status,
				To:         edge.To,
				ActorRole:  role,
				Reason:     reason,
				DeadlineAt: update.DeadlineAt,
			},
		}); err != nil {
			return err
		}

		switch edge.To {
		case enums.EscrowStatusCancelled:
			if err := s.releaseWinningHold(ctx, tx, updated); err != nil {
				return err
			}
			// Read after the status write, so a deposit hold stored by a
			// concurrent authorization is seen here.
			if hold := updated.HoldID(); hold != "" {
				if err := s.scheduleRelease(ctx, tx, enums.PaymentReferenceEscrow, updated.ID, hold); err != nil {
					return err
				}
			}
		case enums.EscrowStatusPaymentSecured:
			if err := s.releaseWinningHold(ctx, tx, updated); err != nil {
				return err
			}
		}
		return s.scheduleStateTasks(ctx, tx, updated)
	})
	if err != nil {
		return nil, err
	}

	if edge.To == enums.EscrowStatusCancelled && updated.HoldID() != "" {
		s.releaseDeposit(ctx, updated.ID, updated.HoldID())
	}

	s.metrics.IncTransition(string(in.Action), string(edge.To))
	s.logg.Info(s.logg.WithField(ctx, "to", edge.To), "escrow transitioned")
	return updated, nil
}

func (s *Service) applyPayment(ctx context.Context, esc *models.EscrowTransaction, action enums.EscrowAction) error {
	ref := payments.Reference{Type: enums.PaymentReferenceEscrow, ID: esc.ID}
	holdID := ""
	if esc.PaymentReferenceID != nil {
		holdID = *esc.PaymentReferenceID
	}

	switch action {
	case enums.EscrowActionSecurePayment:
		if holdID == "" {
			return pkgerrors.New(pkgerrors.CodePayment, "deposit has not been authorized")
		}
		hold, err := s.broker.Status(ctx, holdID)
		if err != nil {
			return err
		}
		if !hold.Status.IsConfirmed() {
			return pkgerrors.Newf(pkgerrors.CodePayment, "deposit hold is %s", hold.Status)
		}
	case enums.EscrowActionReleaseFunds:
		if holdID == "" {
			err := pkgerrors.New(pkgerrors.CodeConsistency, "funded escrow has no payment hold")
			s.logg.Error(ctx, "cannot capture escrow funds", err)
			return err
		}
		if _, err := s.broker.Capture(ctx, ref, holdID); err != nil {
			return err
		}
	}
	return nil
}

// releaseDeposit frees a deposit hold right away. The release task recorded
// with the state change retries it if this attempt fails.
func (s *Service) releaseDeposit(ctx context.Context, escrowID uuid.UUID, holdID string) {
	ref := payments.Reference{Type: enums.PaymentReferenceEscrow, ID: escrowID}
	if _, err := s.broker.Release(ctx, ref, holdID); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "hold_id", holdID), "deposit release left to the task processor")
	}
}

// AuthorizeDeposit places the buyer's hold for amount plus fees. A nil actor
// means the scheduled task. Without a source the hold may stay pending until
// the buyer confirms it with the client token; secure_payment checks that.
// An escrow whose hold is still confirmed, or still pending when no new
// source is given, returns that hold.
func (s *Service) AuthorizeDeposit(ctx context.Context, escrowID uuid.UUID, actorID *uuid.UUID, sourceID string) (*payments.Hold, *models.EscrowTransaction, error) {
	esc, err := s.load(ctx, escrowID)
	if err != nil {
		return nil, nil, err
	}
	if actorID != nil {
		role, ok := RoleOf(*esc, *actorID)
		if !ok || role != enums.EscrowRoleBuyer {
			return nil, nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can fund the deposit")
		}
	}
	if esc.Status != enums.EscrowStatusDepositPending && esc.Status != enums.EscrowStatusAgreementReached {
		return nil, nil, pkgerrors.Newf(pkgerrors.CodeConsistency, "deposit cannot be authorized in %s", esc.Status)
	}

	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" && !s.broker.ClientConfirmation() {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "a payment source is required")
	}

	ctx = s.logg.WithField(ctx, "escrow_id", esc.ID.String())
	previous := esc.HoldID()
	if previous != "" {
		current, err := s.broker.Status(ctx, previous)
		reusable := err == nil &&
			(current.Status.IsConfirmed() || (current.Status == enums.HoldStatusPending && sourceID == ""))
		if reusable {
			if current.ClientToken == "" && esc.PaymentClientToken != nil {
				current.ClientToken = *esc.PaymentClientToken
			}
			return current, esc, nil
		}
	}

	hold, err := s.broker.Authorize(ctx, payments.AuthorizeInput{
		Amount:       esc.Total(),
		Currency:     esc.Currency,
		Reference:    payments.Reference{Type: enums.PaymentReferenceEscrow, ID: esc.ID},
		SourceID:     sourceID,
		Revision:     sourceID,
		AllowPending: true,
	})
	if err != nil {
		return nil, nil, err
	}

	now := s.now().UTC()
	var token *string
	if hold.ClientToken != "" {
		token = &hold.ClientToken
	}
	stored := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.SetPaymentHold(ctx, esc.ID, hold.HoldID, token, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store deposit hold")
		}
		if !ok {
			return s.scheduleRelease(ctx, tx, enums.PaymentReferenceEscrow, esc.ID, hold.HoldID)
		}
		stored = true
		if previous != "" && previous != hold.HoldID {
			if err := s.scheduleRelease(ctx, tx, enums.PaymentReferenceEscrow, esc.ID, previous); err != nil {
				return err
			}
		}
		if !hold.Status.IsConfirmed() {
			return nil
		}
		return s.releaseWinningHold(ctx, tx, esc)
	})
	if err != nil {
		return nil, nil, err
	}
	if !stored {
		s.releaseDeposit(ctx, esc.ID, hold.HoldID)
		s.logg.Warn(s.logg.WithField(ctx, "hold_id", hold.HoldID), "escrow left the funding states during authorization")
		return nil, nil, pkgerrors.New(pkgerrors.CodeConflict, "escrow changed while the deposit was being authorized")
	}

	esc.PaymentReferenceID = &hold.HoldID
	esc.PaymentClientToken = token
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"hold_id": hold.HoldID, "hold_status": hold.Status}), "escrow deposit stored")
	return hold, esc, nil
}

// releaseWinningHold schedules release of the bid or offer hold that secured
// the sale. The hold id is resolved from the row when the task runs.
func (s *Service) releaseWinningHold(ctx context.Context, tx *gorm.DB, esc *models.EscrowTransaction) error {
	switch {
	case esc.BidID != nil:
		return s.scheduleRelease(ctx, tx, enums.PaymentReferenceBid, *esc.BidID, "")
	case esc.OfferID != nil:
		return s.scheduleRelease(ctx, tx, enums.PaymentReferenceOffer, *esc.OfferID, "")
	}
	return nil
}

func (s *Service) scheduleRelease(ctx context.Context, tx *gorm.DB, refType enums.PaymentReferenceType, refID uuid.UUID, holdID string) error {
	return s.scheduler.Schedule(ctx, tx, scheduledtasks.ScheduleInput{
		Kind:      enums.TaskReleaseHold,
		DedupeKey: scheduledtasks.ReleaseHoldKey(refType, refID, holdID),
		DueAt:     s.now().UTC(),
		Payload: scheduledtasks.ReleaseHoldPayload{
			ReferenceType: refType,
			ReferenceID:   refID,
			HoldID:        holdID,
		},
	})
}

// scheduleStateTasks records the reminder and deadline for the state esc has
// just entered. Terminal states get none.
func (s *Service) scheduleStateTasks(ctx context.Context, tx *gorm.DB, esc *models.EscrowTransaction) error {
	if esc.Status.IsTerminal() || esc.DeadlineAt == nil {
		return nil
	}
	payload := scheduledtasks.EscrowPayload{EscrowID: esc.ID, Status: esc.Status}
	remindAt := esc.DeadlineAt.Add(-s.cfg.ReminderThreshold)
	if remindAt.Before(esc.StateEnteredAt) {
		remindAt = esc.StateEnteredAt
	}
	if err := s.scheduler.Schedule(ctx, tx, scheduledtasks.ScheduleInput{
		Kind:      enums.TaskEscrowReminder,
		DedupeKey: scheduledtasks.EscrowStateKey(enums.TaskEscrowReminder, esc.ID, esc.Status),
		DueAt:     remindAt,
		Payload:   payload,
	}); err != nil {
		return err
	}
	return s.scheduler.Schedule(ctx, tx, scheduledtasks.ScheduleInput{
		Kind:      enums.TaskEscrowDeadline,
		DedupeKey: scheduledtasks.EscrowStateKey(enums.TaskEscrowDeadline, esc.ID, esc.Status),
		DueAt:     *esc.DeadlineAt,
		Payload:   payload,
	})
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*models.EscrowTransaction, error) {
	esc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "escrow not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("load escrow %s", id))
	}
	return esc, nil
}

package escrow

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/auctionhouse-backend/internal/payments"
	"github.com/angelmondragon/auctionhouse-backend/pkg/config"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/auctionhouse-backend/pkg/errors"
)

// Edge is one permitted transition. Each edge names the only roles allowed
// to drive it.
type Edge struct {
	Action enums.EscrowAction
	From   []enums.EscrowStatus
	To     enums.EscrowStatus
	Roles  []enums.EscrowRole
}

var edges = map[enums.EscrowAction]Edge{
	enums.EscrowActionAgree: {
		Action: enums.EscrowActionAgree,
		From:   []enums.EscrowStatus{enums.EscrowStatusDepositPending},
		To:     enums.EscrowStatusAgreementReached,
		Roles:  []enums.EscrowRole{enums.EscrowRoleSeller},
	},
	enums.EscrowActionSecurePayment: {
		Action: enums.EscrowActionSecurePayment,
		From:   []enums.EscrowStatus{enums.EscrowStatusAgreementReached},
		To:     enums.EscrowStatusPaymentSecured,
		Roles:  []enums.EscrowRole{enums.EscrowRoleBuyer},
	},
	enums.EscrowActionRecordDelivery: {
		Action: enums.EscrowActionRecordDelivery,
		From:   []enums.EscrowStatus{enums.EscrowStatusPaymentSecured},
		To:     enums.EscrowStatusDeliveryInProgress,
		Roles:  []enums.EscrowRole{enums.EscrowRoleSeller},
	},
	enums.EscrowActionConfirmReceipt: {
		Action: enums.EscrowActionConfirmReceipt,
		From:   []enums.EscrowStatus{enums.EscrowStatusDeliveryInProgress},
		To:     enums.EscrowStatusInspectionPeriod,
		Roles:  []enums.EscrowRole{enums.EscrowRoleBuyer},
	},
	enums.EscrowActionReleaseFunds: {
		Action: enums.EscrowActionReleaseFunds,
		From:   []enums.EscrowStatus{enums.EscrowStatusInspectionPeriod},
		To:     enums.EscrowStatusCompleted,
		Roles:  []enums.EscrowRole{enums.EscrowRoleBuyer},
	},
	enums.EscrowActionDispute: {
		Action: enums.EscrowActionDispute,
		From: []enums.EscrowStatus{
			enums.EscrowStatusPaymentSecured,
			enums.EscrowStatusDeliveryInProgress,
			enums.EscrowStatusInspectionPeriod,
		},
		To:    enums.EscrowStatusDisputed,
		Roles: []enums.EscrowRole{enums.EscrowRoleBuyer, enums.EscrowRoleSeller},
	},
	enums.EscrowActionCancel: {
		Action: enums.EscrowActionCancel,
		From:   []enums.EscrowStatus{enums.EscrowStatusDepositPending, enums.EscrowStatusAgreementReached},
		To:     enums.EscrowStatusCancelled,
		Roles:  []enums.EscrowRole{enums.EscrowRoleBuyer, enums.EscrowRoleSeller, enums.EscrowRoleSystem},
	},
}

// EdgeFor returns the edge an action drives.
func EdgeFor(action enums.EscrowAction) (Edge, bool) {
	edge, ok := edges[action]
	return edge, ok
}

// Guard checks that role may drive action out of status. Violations are
// consistency errors: a correct client never sends them.
func Guard(status enums.EscrowStatus, action enums.EscrowAction, role enums.EscrowRole) (Edge, error) {
	edge, ok := edges[action]
	if !ok {
		return Edge{}, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown escrow action %q", action)
	}
	if status.IsTerminal() {
		return Edge{}, pkgerrors.Newf(pkgerrors.CodeConsistency, "escrow is %s and cannot change", status)
	}
	if !containsStatus(edge.From, status) {
		return Edge{}, pkgerrors.Newf(pkgerrors.CodeConsistency, "cannot %s from %s", action, status)
	}
	if !containsRole(edge.Roles, role) {
		return Edge{}, pkgerrors.Newf(pkgerrors.CodeConsistency, "%s may not %s", role, action)
	}
	return edge, nil
}

// RoleOf maps a caller to their role on the escrow.
func RoleOf(esc models.EscrowTransaction, userID uuid.UUID) (enums.EscrowRole, bool) {
	switch userID {
	case esc.BuyerID:
		return enums.EscrowRoleBuyer, true
	case esc.SellerID:
		return enums.EscrowRoleSeller, true
	}
	return "", false
}

// AwaitedRole is the party whose action moves status forward.
func AwaitedRole(status enums.EscrowStatus) (enums.EscrowRole, bool) {
	switch status {
	case enums.EscrowStatusDepositPending, enums.EscrowStatusPaymentSecured:
		return enums.EscrowRoleSeller, true
	case enums.EscrowStatusAgreementReached, enums.EscrowStatusDeliveryInProgress, enums.EscrowStatusInspectionPeriod:
		return enums.EscrowRoleBuyer, true
	}
	return "", false
}

// Window is the deadline length of a non-terminal state.
func Window(cfg config.EscrowConfig, status enums.EscrowStatus) time.Duration {
	switch status {
	case enums.EscrowStatusDepositPending:
		return cfg.DepositWindow
	case enums.EscrowStatusAgreementReached:
		return cfg.AgreementWindow
	case enums.EscrowStatusPaymentSecured:
		return cfg.ShipmentWindow
	case enums.EscrowStatusDeliveryInProgress:
		return cfg.DeliveryWindow
	case enums.EscrowStatusInspectionPeriod:
		return cfg.InspectionWindow
	}
	return 0
}

// Deadline returns when status, entered at enteredAt, expires.
func Deadline(cfg config.EscrowConfig, status enums.EscrowStatus, enteredAt time.Time) *time.Time {
	window := Window(cfg, status)
	if window <= 0 {
		return nil
	}
	at := enteredAt.Add(window).UTC()
	return &at
}

// Fees returns the platform and escrow fees for amount, rounded to the
// currency's minor unit.
func Fees(cfg config.EscrowConfig, amount decimal.Decimal, currency string) (platform, escrowFee decimal.Decimal) {
	exp := payments.Exponent(currency)
	bps := decimal.NewFromInt(10000)
	platform = amount.Mul(decimal.NewFromInt(cfg.PlatformFeeBPS)).Div(bps).Round(exp)
	escrowFee = amount.Mul(decimal.NewFromInt(cfg.EscrowFeeBPS)).Div(bps).Round(exp)
	return platform, escrowFee
}

// Reminder is who to nudge and how long they have left.
type Reminder struct {
	RecipientID    uuid.UUID
	AwaitedRole    enums.EscrowRole
	HoursRemaining int
	DeadlineAt     time.Time
}

// ReminderFor reports a reminder once the time left before the deadline is
// at or under threshold. HoursRemaining is rounded and never negative.
func ReminderFor(esc models.EscrowTransaction, now time.Time, threshold time.Duration) (Reminder, bool) {
	if esc.Status.IsTerminal() || esc.DeadlineAt == nil {
		return Reminder{}, false
	}
	role, ok := AwaitedRole(esc.Status)
	if !ok {
		return Reminder{}, false
	}
	remaining := esc.DeadlineAt.Sub(now)
	if remaining > threshold {
		return Reminder{}, false
	}
	hours := int(math.Round(remaining.Hours()))
	if hours < 0 {
		hours = 0
	}
	recipient := esc.BuyerID
	if role == enums.EscrowRoleSeller {
		recipient = esc.SellerID
	}
	return Reminder{
		RecipientID:    recipient,
		AwaitedRole:    role,
		HoursRemaining: hours,
		DeadlineAt:     *esc.DeadlineAt,
	}, true
}

func containsStatus(list []enums.EscrowStatus, s enums.EscrowStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsRole(list []enums.EscrowRole, r enums.EscrowRole) bool {
	for _, v := range list {
		if v == r {
			return true
		}
	}
	return false
}

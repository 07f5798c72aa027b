package enums

// EscrowStatus maps to the escrow_status enum in Postgres.
type EscrowStatus string

const (
	EscrowStatusDepositPending     EscrowStatus = "deposit_pending"
	EscrowStatusAgreementReached   EscrowStatus = "agreement_reached"
	EscrowStatusPaymentSecured     EscrowStatus = "payment_secured"
	EscrowStatusDeliveryInProgress EscrowStatus = "delivery_in_progress"
	EscrowStatusInspectionPeriod   EscrowStatus = "inspection_period"
	EscrowStatusCompleted          EscrowStatus = "completed"
	EscrowStatusDisputed           EscrowStatus = "disputed"
	EscrowStatusCancelled          EscrowStatus = "cancelled"
)

var validEscrowStatuses = []EscrowStatus{
	EscrowStatusDepositPending,
	EscrowStatusAgreementReached,
	EscrowStatusPaymentSecured,
	EscrowStatusDeliveryInProgress,
	EscrowStatusInspectionPeriod,
	EscrowStatusCompleted,
	EscrowStatusDisputed,
	EscrowStatusCancelled,
}

// FundingEscrowStatuses accept a new deposit hold.
var FundingEscrowStatuses = []EscrowStatus{
	EscrowStatusDepositPending,
	EscrowStatusAgreementReached,
}

// TerminalEscrowStatuses never transition again.
var TerminalEscrowStatuses = []EscrowStatus{
	EscrowStatusCompleted,
	EscrowStatusDisputed,
	EscrowStatusCancelled,
}

func (s EscrowStatus) IsValid() bool { return contains(validEscrowStatuses, s) }

func (s EscrowStatus) IsTerminal() bool { return contains(TerminalEscrowStatuses, s) }

// EscrowAction names a transition edge of the escrow workflow.
type EscrowAction string

const (
	EscrowActionAgree          EscrowAction = "agree"
	EscrowActionSecurePayment  EscrowAction = "secure_payment"
	EscrowActionRecordDelivery EscrowAction = "record_delivery"
	EscrowActionConfirmReceipt EscrowAction = "confirm_receipt"
	EscrowActionReleaseFunds   EscrowAction = "release_funds"
	EscrowActionDispute        EscrowAction = "dispute"
	EscrowActionCancel         EscrowAction = "cancel"
)

var validEscrowActions = []EscrowAction{
	EscrowActionAgree,
	EscrowActionSecurePayment,
	EscrowActionRecordDelivery,
	EscrowActionConfirmReceipt,
	EscrowActionReleaseFunds,
	EscrowActionDispute,
	EscrowActionCancel,
}

func (a EscrowAction) IsValid() bool { return contains(validEscrowActions, a) }

func ParseEscrowAction(value string) (EscrowAction, error) {
	return parse(validEscrowActions, "escrow action", value)
}

// EscrowRole is the capacity in which a caller drives an escrow edge.
type EscrowRole string

const (
	EscrowRoleBuyer  EscrowRole = "buyer"
	EscrowRoleSeller EscrowRole = "seller"
	EscrowRoleSystem EscrowRole = "system"
)

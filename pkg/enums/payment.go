package enums

// PaymentReferenceType identifies what a hold is tied to.
type PaymentReferenceType string

const (
	PaymentReferenceBid    PaymentReferenceType = "bid"
	PaymentReferenceOffer  PaymentReferenceType = "offer"
	PaymentReferenceEscrow PaymentReferenceType = "escrow"
)

var validPaymentReferenceTypes = []PaymentReferenceType{
	PaymentReferenceBid,
	PaymentReferenceOffer,
	PaymentReferenceEscrow,
}

func (r PaymentReferenceType) IsValid() bool { return contains(validPaymentReferenceTypes, r) }

// HoldStatus is the processor-neutral state of an authorization hold.
type HoldStatus string

const (
	HoldStatusPending    HoldStatus = "pending"
	HoldStatusAuthorized HoldStatus = "authorized"
	HoldStatusCaptured   HoldStatus = "captured"
	HoldStatusReleased   HoldStatus = "released"
	HoldStatusFailed     HoldStatus = "failed"
)

// IsConfirmed reports whether funds are reserved or already moved.
func (s HoldStatus) IsConfirmed() bool {
	return s == HoldStatusAuthorized || s == HoldStatusCaptured
}

// PaymentLedgerEventType maps to the payment_ledger_event_type enum.
type PaymentLedgerEventType string

const (
	PaymentLedgerAuthorized PaymentLedgerEventType = "authorized"
	PaymentLedgerPending    PaymentLedgerEventType = "pending"
	PaymentLedgerCaptured   PaymentLedgerEventType = "captured"
	PaymentLedgerReleased   PaymentLedgerEventType = "released"
	PaymentLedgerFailed     PaymentLedgerEventType = "failed"
)

var validPaymentLedgerEventTypes = []PaymentLedgerEventType{
	PaymentLedgerAuthorized,
	PaymentLedgerPending,
	PaymentLedgerCaptured,
	PaymentLedgerReleased,
	PaymentLedgerFailed,
}

func (t PaymentLedgerEventType) IsValid() bool { return contains(validPaymentLedgerEventTypes, t) }

package enums

// BidStatus maps to the bid_status enum in Postgres.
type BidStatus string

const (
	BidStatusPending   BidStatus = "pending"
	BidStatusActive    BidStatus = "active"
	BidStatusCancelled BidStatus = "cancelled"
)

var validBidStatuses = []BidStatus{BidStatusPending, BidStatusActive, BidStatusCancelled}

func (s BidStatus) IsValid() bool { return contains(validBidStatuses, s) }

// PaymentStatus tracks the hold behind a bid or offer.
type PaymentStatus string

const (
	PaymentStatusNone       PaymentStatus = "none"
	PaymentStatusAuthorized PaymentStatus = "authorized"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

var validPaymentStatuses = []PaymentStatus{PaymentStatusNone, PaymentStatusAuthorized, PaymentStatusCancelled}

func (s PaymentStatus) IsValid() bool { return contains(validPaymentStatuses, s) }

// OfferStatus maps to the offer_status enum in Postgres.
type OfferStatus string

const (
	OfferStatusPending   OfferStatus = "pending"
	OfferStatusActive    OfferStatus = "active"
	OfferStatusAccepted  OfferStatus = "accepted"
	OfferStatusCancelled OfferStatus = "cancelled"
)

var validOfferStatuses = []OfferStatus{OfferStatusPending, OfferStatusActive, OfferStatusAccepted, OfferStatusCancelled}

func (s OfferStatus) IsValid() bool { return contains(validOfferStatuses, s) }

// IsOpen reports whether the offer still counts as the bidder's live offer.
func (s OfferStatus) IsOpen() bool {
	return s == OfferStatusPending || s == OfferStatusActive
}

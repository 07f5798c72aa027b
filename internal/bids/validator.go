package bids

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/auctionhouse-backend/internal/payments"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/auctionhouse-backend/pkg/errors"
)

// Reason is the machine-readable cause of a rejected proposal.
type Reason string

const (
	ReasonListingNotActive  Reason = "listing_not_active"
	ReasonAlreadyWon        Reason = "auction_already_won"
	ReasonBelowHighestBid   Reason = "below_highest_bid"
	ReasonBelowCurrentPrice Reason = "below_current_price"
	ReasonInvalidAmount     Reason = "invalid_amount"
	ReasonAboveCeiling      Reason = "above_ceiling"
	ReasonWrongListingType  Reason = "wrong_listing_type"
	ReasonOwnListing        Reason = "own_listing"
)

// Proposal is the snapshot a bid is judged against.
type Proposal struct {
	Amount        decimal.Decimal
	Currency      string
	HighestBid    *decimal.Decimal
	CurrentPrice  decimal.Decimal
	ListingType   enums.ListingType
	ListingStatus enums.ListingStatus
	Ceiling       decimal.Decimal
}

// Rejection is a validation failure carrying an actionable message.
type Rejection struct {
	Reason  Reason
	Message string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Reason, r.Message)
}

// AsError converts the rejection into a VALIDATION_ERROR whose details carry
// the reason code.
func (r *Rejection) AsError() error {
	return pkgerrors.New(pkgerrors.CodeValidation, r.Message).
		WithDetails(map[string]any{"reason": r.Reason})
}

func reject(reason Reason, format string, args ...any) *Rejection {
	return &Rejection{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// ValidateBid applies the bid rules in order and returns nil on accept.
func ValidateBid(p Proposal) *Rejection {
	if p.ListingStatus != enums.ListingStatusActive {
		return reject(ReasonListingNotActive, "listing is not accepting bids")
	}
	if p.ListingType == enums.ListingTypeDutchAuction && p.HighestBid != nil {
		return reject(ReasonAlreadyWon, "auction already won")
	}
	if p.HighestBid != nil && p.Amount.LessThanOrEqual(*p.HighestBid) {
		return reject(ReasonBelowHighestBid, "bid must exceed %s", FormatAmount(*p.HighestBid, p.Currency))
	}
	if p.HighestBid == nil && p.Amount.LessThan(p.CurrentPrice) {
		return reject(ReasonBelowCurrentPrice, "bid must be at least %s", FormatAmount(p.CurrentPrice, p.Currency))
	}
	return validateAmount(p)
}

// ValidateOffer only checks listing state and amount sanity; offers may sit
// below the asking price.
func ValidateOffer(p Proposal) *Rejection {
	if p.ListingStatus != enums.ListingStatusActive {
		return reject(ReasonListingNotActive, "listing is not accepting offers")
	}
	return validateAmount(p)
}

func validateAmount(p Proposal) *Rejection {
	if !p.Amount.IsPositive() {
		return reject(ReasonInvalidAmount, "amount must be positive")
	}
	if exp := payments.Exponent(p.Currency); !p.Amount.Equal(p.Amount.Truncate(exp)) {
		return reject(ReasonInvalidAmount, "amount has too many decimal places")
	}
	if p.Ceiling.IsPositive() && p.Amount.GreaterThan(p.Ceiling) {
		return reject(ReasonAboveCeiling, "amount must not exceed %s", FormatAmount(p.Ceiling, p.Currency))
	}
	return nil
}

// FormatAmount renders an amount for user-facing messages, e.g. $1000.00.
func FormatAmount(amount decimal.Decimal, currency string) string {
	cur := strings.ToUpper(strings.TrimSpace(currency))
	fixed := amount.StringFixed(payments.Exponent(cur))
	if cur == "" || cur == "USD" {
		return "$" + fixed
	}
	return fixed + " " + cur
}

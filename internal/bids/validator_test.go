package bids

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/auctionhouse-backend/pkg/errors"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func dp(v string) *decimal.Decimal {
	x := d(v)
	return &x
}

func ascending(amount string, highest *decimal.Decimal) Proposal {
	return Proposal{
		Amount:        d(amount),
		Currency:      "USD",
		HighestBid:    highest,
		CurrentPrice:  d("500"),
		ListingType:   enums.ListingTypeAscendingBid,
		ListingStatus: enums.ListingStatusActive,
		Ceiling:       d("1000000000"),
	}
}

func TestValidateBidAcceptsHigherBid(t *testing.T) {
	assert.Nil(t, ValidateBid(ascending("1000", dp("900"))))
}

func TestValidateBidRejectsNotExceedingHighest(t *testing.T) {
	rej := ValidateBid(ascending("950", dp("1000")))
	require.NotNil(t, rej)
	assert.Equal(t, ReasonBelowHighestBid, rej.Reason)
	assert.Equal(t, "bid must exceed $1000.00", rej.Message)

	rej = ValidateBid(ascending("1000", dp("1000")))
	require.NotNil(t, rej)
	assert.Equal(t, ReasonBelowHighestBid, rej.Reason)
}

func TestValidateBidRuleOrder(t *testing.T) {
	p := ascending("-5", dp("1000"))
	p.ListingStatus = enums.ListingStatusEnded
	assert.Equal(t, ReasonListingNotActive, ValidateBid(p).Reason)

	dutch := ascending("9000", dp("8500"))
	dutch.ListingType = enums.ListingTypeDutchAuction
	assert.Equal(t, ReasonAlreadyWon, ValidateBid(dutch).Reason)
	assert.Equal(t, "auction already won", ValidateBid(dutch).Message)

	assert.Equal(t, ReasonBelowCurrentPrice, ValidateBid(ascending("499.99", nil)).Reason)
	assert.Nil(t, ValidateBid(ascending("500", nil)), "first bid may equal the current price")
}

func TestValidateBidAmountSanity(t *testing.T) {
	zeroFloor := ascending("0", nil)
	zeroFloor.CurrentPrice = decimal.Zero
	assert.Equal(t, ReasonInvalidAmount, ValidateBid(zeroFloor).Reason)

	tooPrecise := ascending("600.001", nil)
	assert.Equal(t, ReasonInvalidAmount, ValidateBid(tooPrecise).Reason)

	huge := ascending("1000000000.01", nil)
	assert.Equal(t, ReasonAboveCeiling, ValidateBid(huge).Reason)
}

func TestValidateOfferAllowsBelowAskingPrice(t *testing.T) {
	p := ascending("10", dp("1000"))
	p.ListingType = enums.ListingTypeFixed
	assert.Nil(t, ValidateOffer(p))

	p.ListingStatus = enums.ListingStatusSold
	assert.Equal(t, ReasonListingNotActive, ValidateOffer(p).Reason)
}

func TestRejectionAsError(t *testing.T) {
	err := ValidateBid(ascending("950", dp("1000"))).AsError()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.Equal(t, "bid must exceed $1000.00", typed.Message())
	assert.Equal(t, map[string]any{"reason": ReasonBelowHighestBid}, typed.Details())
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "$1000.00", FormatAmount(d("1000"), "usd"))
	assert.Equal(t, "12.50 EUR", FormatAmount(d("12.5"), "EUR"))
	assert.Equal(t, "5000 JPY", FormatAmount(d("5000"), "JPY"))
}

package payments

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/auctionhouse-backend/pkg/errors"
)

// zeroDecimalCurrencies have no minor unit; every other ISO code is treated
// as having two decimal places.
var zeroDecimalCurrencies = map[string]struct{}{
	"JPY": {}, "KRW": {}, "VND": {}, "CLP": {}, "ISK": {}, "UGX": {},
}

// NormalizeCurrency upper-cases and checks a three-letter currency code.
func NormalizeCurrency(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if len(c) != 3 {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "invalid currency %q", code)
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return "", pkgerrors.Newf(pkgerrors.CodeValidation, "invalid currency %q", code)
		}
	}
	return c, nil
}

// Exponent returns the number of minor-unit digits for currency.
func Exponent(currency string) int32 {
	if _, ok := zeroDecimalCurrencies[strings.ToUpper(currency)]; ok {
		return 0
	}
	return 2
}

// ToMinorUnits converts a decimal amount into integer minor units. Amounts
// with more precision than the currency allows are rejected rather than
// rounded.
func ToMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	cur, err := NormalizeCurrency(currency)
	if err != nil {
		return 0, err
	}
	if amount.IsNegative() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}
	shifted := amount.Shift(Exponent(cur))
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("amount %s has more precision than %s allows", amount.String(), cur))
	}
	if !shifted.LessThanOrEqual(decimal.NewFromInt(1 << 62)) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount too large")
	}
	return shifted.IntPart(), nil
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(minor int64, currency string) decimal.Decimal {
	return decimal.NewFromInt(minor).Shift(-Exponent(currency))
}

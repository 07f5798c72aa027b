// Package pricing computes the asking price of a listing from its static
// decay parameters and a point in time. Nothing here reads a clock or
// touches storage, so every caller recomputes the same value.
package pricing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
)

var (
	ErrNonPositiveStart    = errors.New("starting price must be positive")
	ErrNegativeDecrement   = errors.New("price decrement must not be negative")
	ErrNonPositiveInterval = errors.New("decrement interval must be positive")
	ErrReserveAboveStart   = errors.New("reserve price must not exceed starting price")
	ErrNegativeReserve     = errors.New("reserve price must not be negative")
)

// Params are the decay settings of a Dutch auction. A nil Reserve means no
// reserve, which floors the price at zero.
type Params struct {
	StartingPrice     decimal.Decimal
	Reserve           *decimal.Decimal
	Decrement         decimal.Decimal
	DecrementInterval time.Duration
	CreatedAt         time.Time
}

// Validate is the configuration-time check. Price never re-validates, so a
// listing must pass this before it is stored.
func (p Params) Validate() error {
	if !p.StartingPrice.IsPositive() {
		return ErrNonPositiveStart
	}
	if p.Decrement.IsNegative() {
		return ErrNegativeDecrement
	}
	if p.DecrementInterval <= 0 {
		return ErrNonPositiveInterval
	}
	if p.Reserve != nil {
		if p.Reserve.IsNegative() {
			return ErrNegativeReserve
		}
		if p.Reserve.GreaterThan(p.StartingPrice) {
			return ErrReserveAboveStart
		}
	}
	return nil
}

// Floor is the lowest price the decay may reach.
func (p Params) Floor() decimal.Decimal {
	if p.Reserve == nil {
		return decimal.Zero
	}
	return *p.Reserve
}

// Price returns max(floor, start - floor((now-createdAt)/interval) * decrement).
// A now before createdAt yields the starting price. Params must have passed
// Validate.
func Price(p Params, now time.Time) decimal.Decimal {
	elapsed := now.Sub(p.CreatedAt)
	if elapsed <= 0 || p.DecrementInterval <= 0 {
		return p.StartingPrice
	}
	steps := int64(elapsed / p.DecrementInterval)
	price := p.StartingPrice.Sub(p.Decrement.Mul(decimal.NewFromInt(steps)))
	return decimal.Max(price, p.Floor())
}

// NextDrop reports when the price next decreases, or false once the floor
// is reached or the price never decays.
func NextDrop(p Params, now time.Time) (time.Time, bool) {
	if !p.Decrement.IsPositive() || p.DecrementInterval <= 0 {
		return time.Time{}, false
	}
	if !Price(p, now).GreaterThan(p.Floor()) {
		return time.Time{}, false
	}
	elapsed := now.Sub(p.CreatedAt)
	if elapsed < 0 {
		return p.CreatedAt.Add(p.DecrementInterval), true
	}
	steps := int64(elapsed/p.DecrementInterval) + 1
	return p.CreatedAt.Add(time.Duration(steps) * p.DecrementInterval), true
}

// ParamsFor extracts decay parameters from a Dutch listing.
func ParamsFor(listing models.Listing) Params {
	return Params{
		StartingPrice:     listing.StartingPrice,
		Reserve:           listing.ReservePrice,
		Decrement:         listing.PriceDecrement,
		DecrementInterval: listing.DecrementInterval(),
		CreatedAt:         listing.CreatedAt,
	}
}

// CurrentPrice is the price a reader should show for listing at now. A won
// Dutch auction is frozen at its winning bid. Other listing types keep
// their starting price as the asking floor.
func CurrentPrice(listing models.Listing, now time.Time) decimal.Decimal {
	if listing.Type != enums.ListingTypeDutchAuction {
		return listing.StartingPrice
	}
	if listing.HighestBid != nil {
		return *listing.HighestBid
	}
	return Price(ParamsFor(listing), now)
}

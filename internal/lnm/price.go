// Package lnm implements the bounded numeric domain types used throughout
// the trading core: Price, Quantity, Margin, Leverage, and BoundedPercentage,
// plus the trade-side math that derives liquidation prices and PnL from them.
package lnm

import (
	"errors"
	"fmt"
)

// SatsPerBTC is the number of satoshis in one bitcoin.
const SatsPerBTC float64 = 100_000_000

// Price is a USD price, always a multiple of 0.5.
type Price struct {
	halfUnits int64 // price * 2, so that 0.5 increments are exact integers
}

var (
	// PriceMin is the smallest representable price (0.5 USD).
	PriceMin = Price{halfUnits: 1}
	// PriceMax is the largest representable price, matching the venue's
	// practical ceiling; prices above this clamp down to it.
	PriceMax = Price{halfUnits: 999_999_999 * 2}
)

var ErrPriceNotHalfUnit = errors.New("price must be a multiple of 0.5")
var ErrPriceOutOfRange = errors.New("price out of range")

// NewPrice validates a float64 USD price is a multiple of 0.5 and in range.
func NewPrice(usd float64) (Price, error) {
	half := usd * 2
	rounded := roundHalfEven(half)
	if rounded != half {
		return Price{}, fmt.Errorf("%w: %v", ErrPriceNotHalfUnit, usd)
	}
	p := Price{halfUnits: int64(rounded)}
	if p.halfUnits < PriceMin.halfUnits || p.halfUnits > PriceMax.halfUnits {
		return Price{}, fmt.Errorf("%w: %v", ErrPriceOutOfRange, usd)
	}
	return p, nil
}

// ClampPrice builds a Price from an arbitrary float64, clamping to
// [PriceMin, PriceMax] and rounding to the nearest 0.5 increment. Used by
// liquidation-price and PnL-inversion math which may compute values outside
// representable bounds (including +Inf).
func ClampPrice(usd float64) Price {
	if usd <= PriceMin.Float64() {
		return PriceMin
	}
	if usd >= PriceMax.Float64() {
		return PriceMax
	}
	half := roundHalfEven(usd * 2)
	return Price{halfUnits: int64(half)}
}

// Float64 returns the USD value as a float64.
func (p Price) Float64() float64 {
	return float64(p.halfUnits) / 2
}

func (p Price) String() string {
	return fmt.Sprintf("%.1f", p.Float64())
}

func roundHalfEven(v float64) float64 {
	// Matches Rust's default float arithmetic: we only need exact multiples
	// of 0.5 to compare equal, so a plain round suffices for validation and
	// clamping, both of which only ever see values derived from 0.5-aligned
	// arithmetic or explicit clamps.
	floor := float64(int64(v))
	if v-floor >= 0.5 {
		return floor + 1
	}
	return floor
}

package lnm

import (
	"errors"
	"fmt"
	"math"
)

// Margin is an integer satoshi amount backing a trade.
type Margin struct {
	v uint64
}

const marginMin uint64 = 1

var MarginMin = Margin{v: marginMin}

var ErrMarginTooLow = errors.New("margin below minimum")

// NewMargin validates a raw satoshi amount.
func NewMargin(v uint64) (Margin, error) {
	if v < marginMin {
		return Margin{}, fmt.Errorf("%w: %d", ErrMarginTooLow, v)
	}
	return Margin{v: v}, nil
}

func (m Margin) Uint64() uint64   { return m.v }
func (m Margin) Float64() float64 { return float64(m.v) }
func (m Margin) String() string   { return fmt.Sprintf("%d", m.v) }

// Add returns the sum of two margins.
func (m Margin) Add(other Margin) Margin {
	return Margin{v: m.v + other.v}
}

// CalculateMargin derives the margin needed to back quantity at price and
// leverage: ceil(quantity * SATS_PER_BTC / (price * leverage)). Ceiling is
// used so that re-deriving the Quantity from this Margin never undershoots
// the requested size.
func CalculateMargin(quantity Quantity, price Price, leverage Leverage) (Margin, error) {
	m := quantity.Float64() * SatsPerBTC / (price.Float64() * leverage.Float64())
	return NewMargin(uint64(math.Ceil(m)))
}

var (
	ErrLiquidationNotBelowPriceForLong = errors.New("liquidation price must be below entry price for a long")
	ErrLiquidationNotAbovePriceForShort = errors.New("liquidation price must be above entry price for a short")
)

// EstimateMarginFromLiquidationPrice inverts the liquidation-price formula:
// given a desired liquidation price, what margin produces it at this
// quantity/entry/side.
func EstimateMarginFromLiquidationPrice(side TradeSide, quantity Quantity, price, liquidation Price) (Margin, error) {
	switch side {
	case Buy:
		if liquidation.Float64() >= price.Float64() {
			return Margin{}, ErrLiquidationNotBelowPriceForLong
		}
	case Sell:
		if liquidation.Float64() <= price.Float64() {
			return Margin{}, ErrLiquidationNotAbovePriceForShort
		}
	}

	a := 1 / price.Float64()
	var b float64
	switch side {
	case Buy:
		b = 1/liquidation.Float64() - a
	case Sell:
		b = a - 1/liquidation.Float64()
	}

	m := math.Ceil(b * SatsPerBTC * quantity.Float64())
	return NewMargin(uint64(m))
}

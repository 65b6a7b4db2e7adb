package lnm

import (
	"errors"
	"fmt"
	"math"
)

// Quantity is an integer USD notional size, bounded to the venue's trade
// size limits.
type Quantity struct {
	v uint64
}

const (
	quantityMin uint64 = 1
	quantityMax uint64 = 500_000
)

var QuantityMin = Quantity{v: quantityMin}
var QuantityMax = Quantity{v: quantityMax}

var (
	ErrQuantityTooLow  = errors.New("quantity below minimum")
	ErrQuantityTooHigh = errors.New("quantity above maximum")
)

// NewQuantity validates a raw integer USD size.
func NewQuantity(v uint64) (Quantity, error) {
	if v < quantityMin {
		return Quantity{}, fmt.Errorf("%w: %d", ErrQuantityTooLow, v)
	}
	if v > quantityMax {
		return Quantity{}, fmt.Errorf("%w: %d", ErrQuantityTooHigh, v)
	}
	return Quantity{v: v}, nil
}

func (q Quantity) Uint64() uint64   { return q.v }
func (q Quantity) Float64() float64 { return float64(q.v) }
func (q Quantity) String() string   { return fmt.Sprintf("%d", q.v) }

// TryCalculateQuantity derives a Quantity from margin, price, and leverage:
// floor(margin * leverage * price / SATS_PER_BTC).
func TryCalculateQuantity(margin Margin, price Price, leverage Leverage) (Quantity, error) {
	q := float64(margin.Uint64()) * leverage.Float64() * price.Float64() / SatsPerBTC
	return NewQuantity(uint64(math.Floor(q)))
}

// QuantityFromBalancePercentage derives a Quantity target from a percentage
// of the given sat balance at the given market price.
func QuantityFromBalancePercentage(balanceSats uint64, marketPrice Price, pct BoundedPercentage) (Quantity, error) {
	balanceUSD := float64(balanceSats) * marketPrice.Float64() / SatsPerBTC
	target := balanceUSD * pct.Float64() / 100
	if target < 0 {
		target = 0
	}
	return NewQuantity(uint64(math.Floor(target)))
}

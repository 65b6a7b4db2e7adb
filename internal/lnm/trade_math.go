package lnm

import "math"

// TradeSide is the direction of a trade.
type TradeSide int

const (
	Buy TradeSide = iota
	Sell
)

func (s TradeSide) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// EstimateLiquidationPrice computes the price at which the given position's
// margin is exhausted.
//
// Deliberately uses a floored margin internally rather than
// CalculateMargin's ceiling, to understate margin and so produce a more
// conservative (tighter) liquidation price. This matches observed venue
// liquidation values and must not be "simplified" to reuse CalculateMargin.
func EstimateLiquidationPrice(side TradeSide, quantity Quantity, entryPrice Price, leverage Leverage) Price {
	qty := quantity.Float64()
	price := entryPrice.Float64()
	lev := leverage.Float64()

	a := 1 / price

	flooredMargin := math.Floor(qty * SatsPerBTC / price / lev)
	b := flooredMargin / SatsPerBTC / qty

	var liquidation float64
	switch side {
	case Buy:
		liquidation = 1 / (a + b)
	case Sell:
		denom := a - b
		if denom <= 0 {
			liquidation = math.Inf(1)
		} else {
			liquidation = 1 / denom
		}
	}

	return ClampPrice(liquidation)
}

// PLEstimate computes the satoshi profit/loss of moving from startPrice to
// endPrice for the given side and quantity.
func PLEstimate(side TradeSide, quantity Quantity, startPrice, endPrice Price) int64 {
	start := startPrice.Float64()
	end := endPrice.Float64()

	var inverseDelta float64
	switch side {
	case Buy:
		inverseDelta = SatsPerBTC/start - SatsPerBTC/end
	case Sell:
		inverseDelta = SatsPerBTC/end - SatsPerBTC/start
	}

	return int64(math.Floor(quantity.Float64() * inverseDelta))
}

// PriceFromPL is the exact inverse of PLEstimate: given a realized PL,
// recover the end price.
func PriceFromPL(side TradeSide, quantity Quantity, startPrice Price, pl int64) Price {
	start := startPrice.Float64()
	qty := quantity.Float64()

	inverseDelta := float64(pl) / qty

	var inverseEnd float64
	switch side {
	case Buy:
		inverseEnd = (SatsPerBTC / start) - inverseDelta
	case Sell:
		inverseEnd = (SatsPerBTC / start) + inverseDelta
	}

	return ClampPrice(SatsPerBTC / inverseEnd)
}

package lnm

import (
	"github.com/shopspring/decimal"
)

var satsPerBTCDecimal = decimal.NewFromInt(100_000_000)

// FundingDebitSats computes the signed satoshi funding debit/credit for a
// running trade's notional at a settlement instant, as the change to the
// trade's PL: long positions pay (negative) when rate is positive; short
// positions receive (positive). Uses exact decimal
// arithmetic rather than float64 so repeated settlements never accumulate
// rounding drift over a long-running position.
func FundingDebitSats(side TradeSide, notionalUSD float64, entryPrice Price, rate float64) int64 {
	notional := decimal.NewFromFloat(notionalUSD)
	entry := decimal.NewFromFloat(entryPrice.Float64())
	r := decimal.NewFromFloat(rate)

	sats := notional.Mul(r).Mul(satsPerBTCDecimal).Div(entry)
	delta := sats.Round(0).IntPart()
	if side == Buy {
		delta = -delta
	}
	return delta
}

// Package storage defines the persistence contracts the core depends on
// (candles, ticks, funding settlements, trades) and a SQLite-backed
// implementation of them.
package storage

import (
	"time"

	"github.com/lnm-trading/agent/internal/lnm"
)

// PriceTick is a single last-price observation from the venue's real-time
// feed, unique per Time.
type PriceTick struct {
	Time      time.Time
	LastPrice lnm.Price
}

// OhlcCandle is a minute-aligned OHLC bucket. GapFlag is true when the
// candle one minute before this one is known to be missing from the store.
type OhlcCandle struct {
	Time     time.Time
	Open     lnm.Price
	High     lnm.Price
	Low      lnm.Price
	Close    lnm.Price
	Volume   float64
	GapFlag  bool
}

// FundingSettlement is a periodic debit/credit event at a venue-defined
// grid instant.
type FundingSettlement struct {
	ID          int64
	Time        time.Time
	FixingPrice lnm.Price
	FundingRate float64
}

// Trade mirrors a venue trade end to end, from intent through to close.
type Trade struct {
	ID               string
	Side             lnm.TradeSide
	ExecutionType    lnm.ExecutionType
	Quantity         lnm.Quantity
	Margin           lnm.Margin
	Leverage         lnm.Leverage
	EntryPrice       lnm.Price
	LiquidationPrice lnm.Price
	Stoploss         *lnm.Price
	Takeprofit       *lnm.Price
	ExitPrice        *lnm.Price
	OpeningFee       lnm.Margin
	ClosingFee       lnm.Margin
	MaintenanceMargin lnm.Margin
	CreationTS       time.Time
	FilledTS         *time.Time
	ClosedTS         *time.Time
	Status           lnm.TradeStatus
}

// Gap describes a known discontinuity in the candle history: From is the
// latest candle time before the gap, To is the gap-flagged candle
// immediately above it.
type Gap struct {
	From time.Time
	To   time.Time
}

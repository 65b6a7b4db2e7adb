package storage

import (
	"context"
	"time"
)

// CandleRepository is the sole write path for OHLC candles. The sync
// process is its only writer; evaluators and status publishers only read.
type CandleRepository interface {
	GetEarliestStableCandle(ctx context.Context) (*OhlcCandle, error)
	GetLatestStableCandle(ctx context.Context) (*OhlcCandle, error)
	// GetGaps returns the ordered list of known discontinuities in the
	// candle history, oldest first.
	GetGaps(ctx context.Context) ([]Gap, error)
	// InsertBatch inserts candles and, in the same transaction, clears
	// GapFlag on the candle at clearGapAt if the candle one minute before
	// it is now present. clearGapAt may be the zero time to skip the
	// clear.
	InsertBatch(ctx context.Context, candles []OhlcCandle, clearGapAt time.Time) error
	GetRange(ctx context.Context, from, to time.Time) ([]OhlcCandle, error)
	GetLast(ctx context.Context, n int) ([]OhlcCandle, error)
}

// TickRepository stores real-time price ticks pending supersession by a
// minute candle.
type TickRepository interface {
	Insert(ctx context.Context, tick PriceTick) error
	// PruneUpTo deletes ticks at or before cutoff, once candles cover that
	// interval.
	PruneUpTo(ctx context.Context, cutoff time.Time) error
	GetRange(ctx context.Context, from, to time.Time) ([]PriceTick, error)
}

// FundingSettlementRepository stores funding settlement events, which must
// land on the grid predicate in lnmtime.
type FundingSettlementRepository interface {
	Insert(ctx context.Context, settlement FundingSettlement) error
	GetEarliest(ctx context.Context) (*FundingSettlement, error)
	GetLatest(ctx context.Context) (*FundingSettlement, error)
	// GetMissingBetween returns the grid instants in [from, to] that have
	// no corresponding row, oldest first.
	GetMissingBetween(ctx context.Context, from, to time.Time) ([]time.Time, error)
	GetRange(ctx context.Context, from, to time.Time) ([]FundingSettlement, error)
}

// TradeRepository is the trade-executor's authoritative journal. The live
// and simulated executors are its only writers.
type TradeRepository interface {
	Upsert(ctx context.Context, trade Trade) error
	GetByID(ctx context.Context, id string) (*Trade, error)
	GetRunning(ctx context.Context) ([]Trade, error)
	GetClosed(ctx context.Context, limit int) ([]Trade, error)
}

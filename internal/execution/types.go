// Package execution implements the trade executor contract shared by the
// live (venue-backed) and simulated (replay-driven) implementations: the
// single authoritative view of balance, running trades, and closed trades
// that the operator drives.
package execution

import (
	"context"
	"errors"
	"time"

	"github.com/lnm-trading/agent/internal/lnm"
	"github.com/lnm-trading/agent/internal/storage"
)

// Readiness is the executor's startup state machine.
type Readiness int

const (
	ReadinessStarting Readiness = iota
	ReadinessWaitingForSync
	ReadinessReady
	ReadinessNotReady
)

func (r Readiness) String() string {
	switch r {
	case ReadinessStarting:
		return "starting"
	case ReadinessWaitingForSync:
		return "waiting_for_sync"
	case ReadinessReady:
		return "ready"
	case ReadinessNotReady:
		return "not_ready"
	default:
		return "unknown"
	}
}

// ErrExecutorNotReady is returned by every mutating call issued before the
// executor reaches ReadinessReady; the venue is never contacted.
var ErrExecutorNotReady = errors.New("execution: executor not ready")

// Size expresses a trade's notional either as a USD Quantity or a sats
// Margin; the executor derives the other leg from the current market
// price. Exactly one field must be set.
type Size struct {
	Quantity *lnm.Quantity
	Margin   *lnm.Margin
}

// OpenParams are the inputs common to OpenLong/OpenShort.
type OpenParams struct {
	Size       Size
	Leverage   lnm.Leverage
	Stoploss   *lnm.Price
	Takeprofit *lnm.Price
}

var (
	ErrSizeNotSpecified          = errors.New("execution: exactly one of quantity or margin must be set")
	ErrStoplossWrongSide         = errors.New("execution: stoploss must be on the losing side of entry")
	ErrTakeprofitWrongSide       = errors.New("execution: takeprofit must be on the winning side of entry")
	ErrStoplossBeyondLiquidation = errors.New("execution: stoploss is beyond the trade's liquidation price")
)

// validateSize checks that exactly one sizing field was supplied.
func validateSize(s Size) error {
	if (s.Quantity == nil) == (s.Margin == nil) {
		return ErrSizeNotSpecified
	}
	return nil
}

// validateStopTakeProfit enforces that a stoploss sits on the losing side
// of entryPrice and a takeprofit on the winning side, for the given side,
// and that the stoploss never sits beyond the trade's own liquidation
// price (§3: for a Buy trade, liquidation_price <= SL < entry_price; for a
// Sell trade, entry_price < SL <= liquidation_price). The liquidation
// check is done by inverting the liquidation-price formula: the margin
// that would put liquidation exactly at sl must be no greater than the
// trade's actual margin, otherwise the real liquidation price sits closer
// to entry than sl does and the venue would liquidate before sl ever
// triggers.
func validateStopTakeProfit(side lnm.TradeSide, quantity lnm.Quantity, margin lnm.Margin, entryPrice lnm.Price, sl, tp *lnm.Price) error {
	switch side {
	case lnm.Buy:
		if sl != nil && sl.Float64() >= entryPrice.Float64() {
			return ErrStoplossWrongSide
		}
		if tp != nil && tp.Float64() <= entryPrice.Float64() {
			return ErrTakeprofitWrongSide
		}
	case lnm.Sell:
		if sl != nil && sl.Float64() <= entryPrice.Float64() {
			return ErrStoplossWrongSide
		}
		if tp != nil && tp.Float64() >= entryPrice.Float64() {
			return ErrTakeprofitWrongSide
		}
	}
	if sl != nil {
		requiredMargin, err := lnm.EstimateMarginFromLiquidationPrice(side, quantity, entryPrice, *sl)
		if err != nil {
			return ErrStoplossWrongSide
		}
		if requiredMargin.Uint64() > margin.Uint64() {
			return ErrStoplossBeyondLiquidation
		}
	}
	return nil
}

// TradingState is the aggregate snapshot recomputed on every tick and
// every successful venue mutation.
type TradingState struct {
	LastTickTime time.Time
	MarketPrice  lnm.Price
	Balance      lnm.Margin
	Running      map[string]storage.Trade
	Closed       []storage.Trade
	RealizedPL   int64 // sats, signed
	UnrealizedPL int64 // sats, signed
	FeesPaid     lnm.Margin
}

func newTradingState() TradingState {
	return TradingState{Running: make(map[string]storage.Trade)}
}

// UpdateKind discriminates Update variants.
type UpdateKind int

const (
	UpdateKindStatus UpdateKind = iota
	UpdateKindOrder
	UpdateKindTradingState
	UpdateKindClosedTrade
)

// Update is one entry on the executor's broadcast: a readiness change, an
// order intent (emitted before the network call), a fresh TradingState
// (emitted after a successful mutation or tick), or a closed trade (for
// audit).
type Update struct {
	Kind         UpdateKind
	Readiness    Readiness
	OrderIntent  string
	TradingState TradingState
	ClosedTrade  storage.Trade
}

// Executor is the contract both the live and simulated implementations
// satisfy. All mutating calls are side-effecting (on the venue, or on the
// in-memory replay state) and validate locally before attempting them.
type Executor interface {
	TradingState() TradingState
	Readiness() Readiness
	Updates() <-chan Update

	OpenLong(ctx context.Context, p OpenParams) (tradeID string, err error)
	OpenShort(ctx context.Context, p OpenParams) (tradeID string, err error)
	UpdateTradeStoploss(ctx context.Context, id string, sl lnm.Price) error
	AddMargin(ctx context.Context, id string, amount lnm.Margin) error
	CashIn(ctx context.Context, id string, amount lnm.Margin) error
	CloseTrade(ctx context.Context, id string) error
	CancelAll(ctx context.Context) error
	CloseAll(ctx context.Context) error
}

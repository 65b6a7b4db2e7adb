package strategy

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/lnm-trading/agent/internal/execution"
	"github.com/lnm-trading/agent/internal/lnm"
)

// SizingConfig controls how SingleTradeOperator turns a Signal into an
// order size and risk envelope.
type SizingConfig struct {
	Quantity   lnm.Quantity
	Leverage   lnm.Leverage
	StoplossPct   lnm.BoundedPercentage // distance from entry, as % of entry
	TakeprofitPct lnm.BoundedPercentage
	OpTimeout  time.Duration
}

// SingleTradeOperator is an example SignalOperator: it holds at most one
// running trade at a time, opening on Long/Short signals when flat and
// closing on a Close signal (or an opposite-direction signal) when not.
// Grounded on the fleet/operator contract of spec §4.5; a real deployment
// supplies its own sizing, scaling, and portfolio logic.
type SingleTradeOperator struct {
	name     string
	executor execution.Executor
	cfg      SizingConfig
	log      zerolog.Logger

	tradeID string
	side    lnm.TradeSide
	open    bool
}

func NewSingleTradeOperator(name string, executor execution.Executor, cfg SizingConfig, log zerolog.Logger) *SingleTradeOperator {
	return &SingleTradeOperator{name: name, executor: executor, cfg: cfg, log: log}
}

func (o *SingleTradeOperator) ProcessSignal(ev SignalEvent) error {
	if ev.Err != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.OpTimeout)
	defer cancel()

	switch ev.Signal.Direction {
	case DirectionLong:
		if o.open {
			if o.side == lnm.Sell {
				if err := o.executor.CloseTrade(ctx, o.tradeID); err != nil {
					return err
				}
				o.open = false
			} else {
				return nil
			}
		}
		return o.openTrade(ctx, lnm.Buy)
	case DirectionShort:
		if o.open {
			if o.side == lnm.Buy {
				if err := o.executor.CloseTrade(ctx, o.tradeID); err != nil {
					return err
				}
				o.open = false
			} else {
				return nil
			}
		}
		return o.openTrade(ctx, lnm.Sell)
	case DirectionClose:
		if !o.open {
			return nil
		}
		if err := o.executor.CloseTrade(ctx, o.tradeID); err != nil {
			return err
		}
		o.open = false
		return nil
	default:
		return nil
	}
}

func (o *SingleTradeOperator) openTrade(ctx context.Context, side lnm.TradeSide) error {
	state := o.executor.TradingState()
	entry := state.MarketPrice.Float64()

	var sl, tp *lnm.Price
	if o.cfg.StoplossPct.Float64() > 0 {
		pct := o.cfg.StoplossPct.Float64() / 100
		if side == lnm.Buy {
			p := lnm.ClampPrice(entry * (1 - pct))
			sl = &p
		} else {
			p := lnm.ClampPrice(entry * (1 + pct))
			sl = &p
		}
	}
	if o.cfg.TakeprofitPct.Float64() > 0 {
		pct := o.cfg.TakeprofitPct.Float64() / 100
		if side == lnm.Buy {
			p := lnm.ClampPrice(entry * (1 + pct))
			tp = &p
		} else {
			p := lnm.ClampPrice(entry * (1 - pct))
			tp = &p
		}
	}

	q := o.cfg.Quantity
	params := execution.OpenParams{
		Size:       execution.Size{Quantity: &q},
		Leverage:   o.cfg.Leverage,
		Stoploss:   sl,
		Takeprofit: tp,
	}

	var (
		id  string
		err error
	)
	if side == lnm.Buy {
		id, err = o.executor.OpenLong(ctx, params)
	} else {
		id, err = o.executor.OpenShort(ctx, params)
	}
	if err != nil {
		return err
	}
	o.tradeID = id
	o.side = side
	o.open = true
	return nil
}

package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lnm-trading/agent/internal/lnm"
	"github.com/lnm-trading/agent/internal/storage"
)

// SimulatedConfig holds the deterministic fee/funding model the simulator
// applies, since there is no venue to compute them for us.
type SimulatedConfig struct {
	InitialBalance  lnm.Margin
	OpeningFeeRate  float64 // fraction of quantity's notional, in sats
	ClosingFeeRate  float64
}

func DefaultSimulatedConfig() SimulatedConfig {
	bal, _ := lnm.NewMargin(1_000_000)
	return SimulatedConfig{InitialBalance: bal, OpeningFeeRate: 0.0002, ClosingFeeRate: 0.0002}
}

// SimulatedExecutor implements Executor driven entirely by Tick and
// ApplyFunding calls from a replay clock rather than wall time or venue
// push events.
type SimulatedExecutor struct {
	cfg SimulatedConfig
	log zerolog.Logger

	mu        sync.RWMutex
	readiness Readiness
	state     TradingState

	updatesOut chan Update
}

func NewSimulatedExecutor(cfg SimulatedConfig, log zerolog.Logger) *SimulatedExecutor {
	st := newTradingState()
	st.Balance = cfg.InitialBalance
	fees, _ := lnm.NewMargin(1)
	st.FeesPaid = fees
	return &SimulatedExecutor{
		cfg:        cfg,
		log:        log,
		readiness:  ReadinessReady,
		state:      st,
		updatesOut: make(chan Update, 64),
	}
}

func (e *SimulatedExecutor) TradingState() TradingState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *SimulatedExecutor) Readiness() Readiness {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.readiness
}

func (e *SimulatedExecutor) Updates() <-chan Update { return e.updatesOut }

func (e *SimulatedExecutor) emit(u Update) {
	select {
	case e.updatesOut <- u:
	default:
	}
}

// Tick advances the simulation to price at t: recomputes unrealized PnL
// for every running trade and triggers liquidation/SL/TP, in that
// priority, using the trigger's intrinsic price as the close price (not
// the tick price itself).
func (e *SimulatedExecutor) Tick(ctx context.Context, price lnm.Price, t time.Time) {
	e.mu.Lock()
	e.state.MarketPrice = price
	e.state.LastTickTime = t

	var unrealized int64
	var toClose []string
	var closePrice = make(map[string]lnm.Price)

	for id, trade := range e.state.Running {
		switch trade.Side {
		case lnm.Buy:
			if price.Float64() <= trade.LiquidationPrice.Float64() {
				toClose = append(toClose, id)
				closePrice[id] = trade.LiquidationPrice
				continue
			}
			if trade.Stoploss != nil && price.Float64() <= trade.Stoploss.Float64() {
				toClose = append(toClose, id)
				closePrice[id] = *trade.Stoploss
				continue
			}
			if trade.Takeprofit != nil && price.Float64() >= trade.Takeprofit.Float64() {
				toClose = append(toClose, id)
				closePrice[id] = *trade.Takeprofit
				continue
			}
		case lnm.Sell:
			if price.Float64() >= trade.LiquidationPrice.Float64() {
				toClose = append(toClose, id)
				closePrice[id] = trade.LiquidationPrice
				continue
			}
			if trade.Stoploss != nil && price.Float64() >= trade.Stoploss.Float64() {
				toClose = append(toClose, id)
				closePrice[id] = *trade.Stoploss
				continue
			}
			if trade.Takeprofit != nil && price.Float64() <= trade.Takeprofit.Float64() {
				toClose = append(toClose, id)
				closePrice[id] = *trade.Takeprofit
				continue
			}
		}
		unrealized += lnm.PLEstimate(trade.Side, trade.Quantity, trade.EntryPrice, price)
	}
	e.state.UnrealizedPL = unrealized
	e.mu.Unlock()

	for _, id := range toClose {
		e.closeAt(ctx, id, closePrice[id], t)
	}

	e.emit(Update{Kind: UpdateKindTradingState, TradingState: e.TradingState()})
}

// ApplyFunding applies the funding debit/credit for every running trade at
// a settlement grid instant, using the cached funding rate. Applied
// before any trigger checks at the same grid instant, per the replay
// engine's ordering.
func (e *SimulatedExecutor) ApplyFunding(rate float64, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, trade := range e.state.Running {
		e.state.RealizedPL += lnm.FundingDebitSats(trade.Side, trade.Quantity.Float64(), trade.EntryPrice, rate)
	}
}

func (e *SimulatedExecutor) closeAt(ctx context.Context, id string, price lnm.Price, t time.Time) {
	e.mu.Lock()
	trade, ok := e.state.Running[id]
	if !ok {
		e.mu.Unlock()
		return
	}
	delete(e.state.Running, id)

	pl := lnm.PLEstimate(trade.Side, trade.Quantity, trade.EntryPrice, price)
	closingFee := e.fee(trade.Quantity, e.cfg.ClosingFeeRate)

	trade.ExitPrice = &price
	trade.ClosedTS = &t
	trade.Status = lnm.StatusClosed
	trade.ClosingFee = closingFee

	e.state.RealizedPL += pl
	e.state.Balance = applySatsDelta(e.state.Balance, int64(trade.Margin.Uint64())+pl-int64(closingFee.Uint64()))
	e.state.FeesPaid = e.state.FeesPaid.Add(closingFee)
	e.state.Closed = append(e.state.Closed, trade)
	e.mu.Unlock()

	e.emit(Update{Kind: UpdateKindClosedTrade, ClosedTrade: trade})
}

// applySatsDelta adds a signed sats amount to a Margin balance, floored at
// lnm.MarginMin since Margin cannot represent zero or negative amounts.
func applySatsDelta(balance lnm.Margin, delta int64) lnm.Margin {
	next := int64(balance.Uint64()) + delta
	if next < int64(lnm.MarginMin.Uint64()) {
		return lnm.MarginMin
	}
	m, err := lnm.NewMargin(uint64(next))
	if err != nil {
		return lnm.MarginMin
	}
	return m
}

func (e *SimulatedExecutor) fee(q lnm.Quantity, rate float64) lnm.Margin {
	sats := q.Float64() * lnm.SatsPerBTC / e.TradingState().MarketPrice.Float64() * rate
	m, err := lnm.NewMargin(uint64(sats))
	if err != nil {
		return lnm.MarginMin
	}
	return m
}

func (e *SimulatedExecutor) open(side lnm.TradeSide, p OpenParams) (string, error) {
	if err := validateSize(p.Size); err != nil {
		return "", err
	}

	st := e.TradingState()
	marketPrice := st.MarketPrice

	var quantity lnm.Quantity
	var margin lnm.Margin
	var err error
	switch {
	case p.Size.Quantity != nil:
		quantity = *p.Size.Quantity
		margin, err = lnm.CalculateMargin(quantity, marketPrice, p.Leverage)
	case p.Size.Margin != nil:
		margin = *p.Size.Margin
		quantity, err = lnm.TryCalculateQuantity(margin, marketPrice, p.Leverage)
	}
	if err != nil {
		return "", fmt.Errorf("derive trade size: %w", err)
	}

	if err := validateStopTakeProfit(side, quantity, margin, marketPrice, p.Stoploss, p.Takeprofit); err != nil {
		return "", err
	}

	liquidation := lnm.EstimateLiquidationPrice(side, quantity, marketPrice, p.Leverage)
	openingFee := e.fee(quantity, e.cfg.OpeningFeeRate)

	id := uuid.NewString()
	now := st.LastTickTime
	trade := storage.Trade{
		ID:                id,
		Side:              side,
		ExecutionType:     lnm.Market,
		Quantity:          quantity,
		Margin:            margin,
		Leverage:          p.Leverage,
		EntryPrice:        marketPrice,
		LiquidationPrice:  liquidation,
		Stoploss:          p.Stoploss,
		Takeprofit:        p.Takeprofit,
		OpeningFee:        openingFee,
		MaintenanceMargin: lnm.MarginMin,
		ClosingFee:        lnm.MarginMin,
		CreationTS:        now,
		FilledTS:          &now,
		Status:            lnm.StatusRunning,
	}

	e.mu.Lock()
	cost := margin.Uint64() + openingFee.Uint64()
	if cost > e.state.Balance.Uint64() {
		e.mu.Unlock()
		return "", fmt.Errorf("execution: insufficient balance for margin %d + opening fee %d", margin.Uint64(), openingFee.Uint64())
	}
	e.state.Balance = applySatsDelta(e.state.Balance, -int64(cost))
	e.state.FeesPaid = e.state.FeesPaid.Add(openingFee)
	e.state.Running[id] = trade
	e.mu.Unlock()

	e.emit(Update{Kind: UpdateKindOrder, OrderIntent: id})
	e.emit(Update{Kind: UpdateKindTradingState, TradingState: e.TradingState()})
	return id, nil
}

func (e *SimulatedExecutor) OpenLong(ctx context.Context, p OpenParams) (string, error) {
	return e.open(lnm.Buy, p)
}

func (e *SimulatedExecutor) OpenShort(ctx context.Context, p OpenParams) (string, error) {
	return e.open(lnm.Sell, p)
}

func (e *SimulatedExecutor) UpdateTradeStoploss(ctx context.Context, id string, sl lnm.Price) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	trade, ok := e.state.Running[id]
	if !ok {
		return fmt.Errorf("execution: trade %s not running", id)
	}
	if err := validateStopTakeProfit(trade.Side, trade.Quantity, trade.Margin, trade.EntryPrice, &sl, trade.Takeprofit); err != nil {
		return err
	}
	trade.Stoploss = &sl
	e.state.Running[id] = trade
	return nil
}

func (e *SimulatedExecutor) AddMargin(ctx context.Context, id string, amount lnm.Margin) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	trade, ok := e.state.Running[id]
	if !ok {
		return fmt.Errorf("execution: trade %s not running", id)
	}
	if amount.Uint64() > e.state.Balance.Uint64() {
		return fmt.Errorf("execution: insufficient balance")
	}
	trade.Margin = trade.Margin.Add(amount)
	e.state.Running[id] = trade
	reduced, _ := lnm.NewMargin(e.state.Balance.Uint64() - amount.Uint64())
	e.state.Balance = reduced
	return nil
}

func (e *SimulatedExecutor) CashIn(ctx context.Context, id string, amount lnm.Margin) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	trade, ok := e.state.Running[id]
	if !ok {
		return fmt.Errorf("execution: trade %s not running", id)
	}
	if amount.Uint64() >= trade.Margin.Uint64() {
		return fmt.Errorf("execution: cash-in amount exceeds margin")
	}
	reduced, _ := lnm.NewMargin(trade.Margin.Uint64() - amount.Uint64())
	trade.Margin = reduced
	e.state.Running[id] = trade
	e.state.Balance = e.state.Balance.Add(amount)
	return nil
}

func (e *SimulatedExecutor) CloseTrade(ctx context.Context, id string) error {
	st := e.TradingState()
	trade, ok := st.Running[id]
	if !ok {
		return fmt.Errorf("execution: trade %s not running", id)
	}
	e.closeAt(ctx, id, st.MarketPrice, st.LastTickTime)
	_ = trade
	return nil
}

func (e *SimulatedExecutor) CancelAll(ctx context.Context) error {
	return nil
}

func (e *SimulatedExecutor) CloseAll(ctx context.Context) error {
	st := e.TradingState()
	for id := range st.Running {
		if err := e.CloseTrade(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lnm-trading/agent/internal/lnm"
	"github.com/lnm-trading/agent/internal/lnmrest"
	"github.com/lnm-trading/agent/internal/metrics"
	syncpkg "github.com/lnm-trading/agent/internal/sync"
	"github.com/lnm-trading/agent/internal/storage"
)

// LiveExecutor implements Executor against the venue's REST API, with a
// periodic reconciliation pass against the running/closed trade lists and
// account balance.
type LiveExecutor struct {
	rest   *lnmrest.Client
	trades storage.TradeRepository
	log    zerolog.Logger

	resyncInterval time.Duration

	mu        sync.RWMutex
	readiness Readiness
	state     TradingState

	updatesOut chan Update
}

func NewLiveExecutor(rest *lnmrest.Client, trades storage.TradeRepository, log zerolog.Logger) *LiveExecutor {
	return &LiveExecutor{
		rest:           rest,
		trades:         trades,
		log:            log,
		resyncInterval: 10 * time.Second,
		readiness:      ReadinessStarting,
		state:          newTradingState(),
		updatesOut:     make(chan Update, 64),
	}
}

func (e *LiveExecutor) TradingState() TradingState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *LiveExecutor) Readiness() Readiness {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.readiness
}

func (e *LiveExecutor) Updates() <-chan Update { return e.updatesOut }

func (e *LiveExecutor) emit(u Update) {
	select {
	case e.updatesOut <- u:
	default:
		e.log.Warn().Msg("dropping executor update, no receiver")
	}
}

func (e *LiveExecutor) setReadiness(r Readiness) {
	e.mu.Lock()
	e.readiness = r
	e.mu.Unlock()
	e.emit(Update{Kind: UpdateKindStatus, Readiness: r})
}

// Run waits for the sync controller to report Synced, performs an initial
// reconciliation, then polls the venue on resyncInterval until ctx ends.
func (e *LiveExecutor) Run(ctx context.Context, statusUpdates <-chan syncpkg.Status) error {
	e.setReadiness(ReadinessWaitingForSync)

waitForSync:
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case st := <-statusUpdates:
			if st.Kind == syncpkg.KindSynced {
				break waitForSync
			}
			if st.Kind == syncpkg.KindTerminated {
				e.setReadiness(ReadinessNotReady)
				return fmt.Errorf("execution: sync terminated while waiting: %w", st.Fatal)
			}
		}
	}

	if err := e.reconcile(ctx); err != nil {
		e.setReadiness(ReadinessNotReady)
		return fmt.Errorf("execution: initial reconcile: %w", err)
	}
	e.setReadiness(ReadinessReady)

	ticker := time.NewTicker(e.resyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.reconcile(ctx); err != nil {
				e.log.Warn().Err(err).Msg("reconcile failed")
			}
		}
	}
}

func (e *LiveExecutor) reconcile(ctx context.Context) error {
	running, err := e.rest.GetRunningTrades(ctx)
	if err != nil {
		return fmt.Errorf("get running trades: %w", err)
	}
	closed, err := e.rest.GetClosedTrades(ctx, 50)
	if err != nil {
		return fmt.Errorf("get closed trades: %w", err)
	}
	account, err := e.rest.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	ticker, err := e.rest.GetTicker(ctx)
	if err != nil {
		return fmt.Errorf("get ticker: %w", err)
	}

	runningTrades := make(map[string]storage.Trade, len(running))
	var realizedPL, unrealizedPL int64
	var feesPaid uint64
	for _, p := range running {
		t, err := fromTradePage(p)
		if err != nil {
			e.log.Warn().Err(err).Str("trade_id", p.ID).Msg("skipping malformed running trade")
			continue
		}
		if err := e.trades.Upsert(ctx, t); err != nil {
			return fmt.Errorf("upsert running trade %s: %w", t.ID, err)
		}
		runningTrades[t.ID] = t
		feesPaid += t.OpeningFee.Uint64()
	}

	closedTrades := make([]storage.Trade, 0, len(closed))
	for _, p := range closed {
		t, err := fromTradePage(p)
		if err != nil {
			e.log.Warn().Err(err).Str("trade_id", p.ID).Msg("skipping malformed closed trade")
			continue
		}
		if err := e.trades.Upsert(ctx, t); err != nil {
			return fmt.Errorf("upsert closed trade %s: %w", t.ID, err)
		}
		closedTrades = append(closedTrades, t)
		feesPaid += t.OpeningFee.Uint64() + t.ClosingFee.Uint64()
		if t.ExitPrice != nil {
			realizedPL += signedPL(t, *t.ExitPrice)
		}
	}

	marketPrice, err := lnm.NewPrice(ticker.LastPrice)
	if err != nil {
		return fmt.Errorf("ticker price: %w", err)
	}
	for _, t := range runningTrades {
		unrealizedPL += signedPL(t, marketPrice)
	}

	balance, err := lnm.NewMargin(orOneUint(account.Balance))
	if err != nil {
		return fmt.Errorf("account balance: %w", err)
	}
	fees, err := lnm.NewMargin(orOneUint(feesPaid))
	if err != nil {
		fees = lnm.MarginMin
	}

	e.mu.Lock()
	e.state = TradingState{
		LastTickTime: time.Now().UTC(),
		MarketPrice:  marketPrice,
		Balance:      balance,
		Running:      runningTrades,
		Closed:       closedTrades,
		RealizedPL:   realizedPL,
		UnrealizedPL: unrealizedPL,
		FeesPaid:     fees,
	}
	snapshot := e.state
	e.mu.Unlock()

	metrics.ExecutorBalanceSats.Set(float64(balance.Uint64()))
	e.emit(Update{Kind: UpdateKindTradingState, TradingState: snapshot})
	return nil
}

func orOneUint(v uint64) uint64 {
	if v == 0 {
		return 1
	}
	return v
}

// signedPL returns quantity's PnL moving from entry to at, in sats,
// signed by side.
func signedPL(t storage.Trade, at lnm.Price) int64 {
	return lnm.PLEstimate(t.Side, t.Quantity, t.EntryPrice, at)
}

// sideCode maps a trade side to the venue's single-letter wire code.
func sideCode(side lnm.TradeSide) string {
	if side == lnm.Buy {
		return "b"
	}
	return "s"
}

func (e *LiveExecutor) requireReady() error {
	if e.Readiness() != ReadinessReady {
		return ErrExecutorNotReady
	}
	return nil
}

func fromTradePage(p lnmrest.TradePage) (storage.Trade, error) {
	var side lnm.TradeSide
	switch p.Side {
	case "b", "buy", "Buy":
		side = lnm.Buy
	default:
		side = lnm.Sell
	}

	quantity, err := lnm.NewQuantity(p.Quantity)
	if err != nil {
		return storage.Trade{}, err
	}
	margin, err := lnm.NewMargin(p.Margin)
	if err != nil {
		return storage.Trade{}, err
	}
	leverage, err := lnm.NewLeverage(p.Leverage)
	if err != nil {
		return storage.Trade{}, err
	}
	entry, err := lnm.NewPrice(p.Price)
	if err != nil {
		return storage.Trade{}, err
	}
	liq, err := lnm.NewPrice(p.Liquidation)
	if err != nil {
		return storage.Trade{}, err
	}
	openingFee, err := lnm.NewMargin(orOneUint(p.OpeningFee))
	if err != nil {
		return storage.Trade{}, err
	}
	closingFee, err := lnm.NewMargin(orOneUint(p.ClosingFee))
	if err != nil {
		return storage.Trade{}, err
	}
	maintenance, err := lnm.NewMargin(orOneUint(p.MaintenanceMargin))
	if err != nil {
		return storage.Trade{}, err
	}

	t := storage.Trade{
		ID:                p.ID,
		Side:              side,
		ExecutionType:     lnm.Market,
		Quantity:          quantity,
		Margin:            margin,
		Leverage:          leverage,
		EntryPrice:        entry,
		LiquidationPrice:  liq,
		OpeningFee:        openingFee,
		ClosingFee:        closingFee,
		MaintenanceMargin: maintenance,
		CreationTS:        time.UnixMilli(p.CreationTS).UTC(),
	}
	if p.Stoploss != nil {
		if sl, err := lnm.NewPrice(*p.Stoploss); err == nil {
			t.Stoploss = &sl
		}
	}
	if p.Takeprofit != nil {
		if tp, err := lnm.NewPrice(*p.Takeprofit); err == nil {
			t.Takeprofit = &tp
		}
	}
	if p.ExitPrice != nil {
		if ep, err := lnm.NewPrice(*p.ExitPrice); err == nil {
			t.ExitPrice = &ep
		}
	}
	if p.MarketFilledTS != nil {
		ft := time.UnixMilli(*p.MarketFilledTS).UTC()
		t.FilledTS = &ft
	}
	if p.ClosedTS != nil {
		ct := time.UnixMilli(*p.ClosedTS).UTC()
		t.ClosedTS = &ct
	}

	switch {
	case p.Closed:
		t.Status = lnm.StatusClosed
	case p.Canceled:
		t.Status = lnm.StatusCanceled
	case p.Running:
		t.Status = lnm.StatusRunning
	default:
		t.Status = lnm.StatusOpen
	}

	return t, nil
}

func (e *LiveExecutor) open(ctx context.Context, side lnm.TradeSide, p OpenParams) (string, error) {
	if err := e.requireReady(); err != nil {
		return "", err
	}
	if err := validateSize(p.Size); err != nil {
		return "", err
	}

	marketPrice := e.TradingState().MarketPrice
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

	intentID := uuid.NewString()
	e.emit(Update{Kind: UpdateKindOrder, OrderIntent: intentID})

	req := lnmrest.NewTradeRequest{
		Side:     sideCode(side),
		Type:     "m",
		Leverage: p.Leverage.Float64(),
	}
	if p.Size.Quantity != nil {
		q := p.Size.Quantity.Uint64()
		req.Quantity = &q
	}
	if p.Size.Margin != nil {
		m := p.Size.Margin.Uint64()
		req.Margin = &m
	}
	if p.Stoploss != nil {
		v := p.Stoploss.Float64()
		req.Stoploss = &v
	}
	if p.Takeprofit != nil {
		v := p.Takeprofit.Float64()
		req.Takeprofit = &v
	}

	page, err := e.rest.NewTrade(ctx, req)
	if err != nil {
		return "", fmt.Errorf("place order: %w", err)
	}

	t, err := fromTradePage(*page)
	if err != nil {
		return "", fmt.Errorf("parse placed trade: %w", err)
	}
	if err := validateStopTakeProfit(side, t.Quantity, t.Margin, t.EntryPrice, t.Stoploss, t.Takeprofit); err != nil {
		e.log.Warn().Err(err).Str("trade_id", t.ID).Msg("venue accepted a stop/tp outside expected bounds")
	}
	if err := e.trades.Upsert(ctx, t); err != nil {
		return "", fmt.Errorf("persist placed trade: %w", err)
	}

	if err := e.reconcile(ctx); err != nil {
		e.log.Warn().Err(err).Msg("post-open reconcile failed")
	}
	metrics.ExecutorFills.WithLabelValues(sideCode(side), "open").Inc()
	return t.ID, nil
}

func (e *LiveExecutor) OpenLong(ctx context.Context, p OpenParams) (string, error) {
	return e.open(ctx, lnm.Buy, p)
}

func (e *LiveExecutor) OpenShort(ctx context.Context, p OpenParams) (string, error) {
	return e.open(ctx, lnm.Sell, p)
}

func (e *LiveExecutor) UpdateTradeStoploss(ctx context.Context, id string, sl lnm.Price) error {
	if err := e.requireReady(); err != nil {
		return err
	}
	if trade, ok := e.TradingState().Running[id]; ok {
		if err := validateStopTakeProfit(trade.Side, trade.Quantity, trade.Margin, trade.EntryPrice, &sl, trade.Takeprofit); err != nil {
			return err
		}
	}
	_, err := e.rest.UpdateTrade(ctx, lnmrest.UpdateStoplossRequest{ID: id, Type: "stoploss", Value: sl.Float64()})
	if err != nil {
		return fmt.Errorf("update stoploss: %w", err)
	}
	return e.reconcile(ctx)
}

func (e *LiveExecutor) AddMargin(ctx context.Context, id string, amount lnm.Margin) error {
	if err := e.requireReady(); err != nil {
		return err
	}
	_, err := e.rest.AddMargin(ctx, lnmrest.AddMarginRequest{ID: id, Amount: amount.Uint64()})
	if err != nil {
		return fmt.Errorf("add margin: %w", err)
	}
	return e.reconcile(ctx)
}

func (e *LiveExecutor) CashIn(ctx context.Context, id string, amount lnm.Margin) error {
	if err := e.requireReady(); err != nil {
		return err
	}
	_, err := e.rest.CashIn(ctx, lnmrest.CashInRequest{ID: id, Amount: amount.Uint64()})
	if err != nil {
		return fmt.Errorf("cash in: %w", err)
	}
	return e.reconcile(ctx)
}

func (e *LiveExecutor) CloseTrade(ctx context.Context, id string) error {
	if err := e.requireReady(); err != nil {
		return err
	}
	page, err := e.rest.CloseTrade(ctx, id)
	if err != nil {
		return fmt.Errorf("close trade: %w", err)
	}
	t, err := fromTradePage(*page)
	if err == nil {
		_ = e.trades.Upsert(ctx, t)
		e.emit(Update{Kind: UpdateKindClosedTrade, ClosedTrade: t})
		metrics.ExecutorFills.WithLabelValues(sideCode(t.Side), "close").Inc()
	}
	return e.reconcile(ctx)
}

func (e *LiveExecutor) CancelAll(ctx context.Context) error {
	if err := e.requireReady(); err != nil {
		return err
	}
	if err := e.rest.CancelAll(ctx); err != nil {
		return fmt.Errorf("cancel all: %w", err)
	}
	return e.reconcile(ctx)
}

func (e *LiveExecutor) CloseAll(ctx context.Context) error {
	if err := e.requireReady(); err != nil {
		return err
	}
	if err := e.rest.CloseAll(ctx); err != nil {
		return fmt.Errorf("close all: %w", err)
	}
	return e.reconcile(ctx)
}

package execution

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lnm-trading/agent/internal/lnm"
)

func mustPrice(t *testing.T, v float64) lnm.Price {
	t.Helper()
	p, err := lnm.NewPrice(v)
	require.NoError(t, err)
	return p
}

func mustQuantity(t *testing.T, v uint64) lnm.Quantity {
	t.Helper()
	q, err := lnm.NewQuantity(v)
	require.NoError(t, err)
	return q
}

func mustLeverage(t *testing.T, v float64) lnm.Leverage {
	t.Helper()
	l, err := lnm.NewLeverage(v)
	require.NoError(t, err)
	return l
}

func mustMargin(t *testing.T, v uint64) lnm.Margin {
	t.Helper()
	m, err := lnm.NewMargin(v)
	require.NoError(t, err)
	return m
}

func newTestExecutor(t *testing.T, balance uint64) *SimulatedExecutor {
	t.Helper()
	cfg := SimulatedConfig{
		InitialBalance: mustMargin(t, balance),
		OpeningFeeRate: 0.0002,
		ClosingFeeRate: 0.0002,
	}
	return NewSimulatedExecutor(cfg, zerolog.Nop())
}

func TestOpenDebitsMarginAndOpeningFeeFromBalance(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(t, 1_000_000)

	price := mustPrice(t, 50000)
	e.Tick(ctx, price, time.Now())

	qty := mustQuantity(t, 1000)
	lev := mustLeverage(t, 10)

	id, err := e.OpenLong(ctx, OpenParams{Size: Size{Quantity: &qty}, Leverage: lev})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	st := e.TradingState()
	trade, ok := st.Running[id]
	require.True(t, ok)

	// margin = ceil(1000 * 1e8 / (50000 * 10)) = 200000
	assert.Equal(t, uint64(200000), trade.Margin.Uint64())
	// openingFee = 1000 * 1e8 / 50000 * 0.0002 = 400
	assert.Equal(t, uint64(400), trade.OpeningFee.Uint64())

	assert.Equal(t, uint64(1_000_000-200000-400), st.Balance.Uint64())
	assert.Equal(t, uint64(1+400), st.FeesPaid.Uint64())
}

func TestOpenRejectsTradeThatWouldOverdrawBalance(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(t, 100)

	e.Tick(ctx, mustPrice(t, 50000), time.Now())

	qty := mustQuantity(t, 1000)
	lev := mustLeverage(t, 10)

	_, err := e.OpenLong(ctx, OpenParams{Size: Size{Quantity: &qty}, Leverage: lev})
	assert.Error(t, err)
	assert.Empty(t, e.TradingState().Running)
}

func TestCloseCreditsMarginPlusRealizedPLMinusClosingFee(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(t, 1_000_000)

	price := mustPrice(t, 50000)
	e.Tick(ctx, price, time.Now())

	qty := mustQuantity(t, 1000)
	lev := mustLeverage(t, 10)

	id, err := e.OpenLong(ctx, OpenParams{Size: Size{Quantity: &qty}, Leverage: lev})
	require.NoError(t, err)

	balanceAfterOpen := e.TradingState().Balance.Uint64()
	require.Equal(t, uint64(1_000_000-200000-400), balanceAfterOpen)

	// Tick at the same price: flat close, PL == 0, only the closing fee and
	// the returned margin move the balance.
	e.Tick(ctx, price, time.Now())
	require.NoError(t, e.CloseTrade(ctx, id))

	st := e.TradingState()
	require.Len(t, st.Closed, 1)
	closed := st.Closed[0]

	assert.Equal(t, int64(0), lnm.PLEstimate(lnm.Buy, qty, price, price))
	assert.Equal(t, uint64(400), closed.ClosingFee.Uint64())

	wantBalance := balanceAfterOpen + closed.Margin.Uint64() - closed.ClosingFee.Uint64()
	assert.Equal(t, wantBalance, st.Balance.Uint64())
	assert.Equal(t, uint64(1+400+400), st.FeesPaid.Uint64())
}

func TestTickLiquidatesAtTradesLiquidationPriceNotTickPrice(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(t, 1_000_000)

	entry := mustPrice(t, 50000)
	e.Tick(ctx, entry, time.Now())

	qty := mustQuantity(t, 1000)
	lev := mustLeverage(t, 10)

	id, err := e.OpenLong(ctx, OpenParams{Size: Size{Quantity: &qty}, Leverage: lev})
	require.NoError(t, err)

	trade := e.TradingState().Running[id]
	liquidation := trade.LiquidationPrice

	// Crash the price well past liquidation in a single tick.
	crash := mustPrice(t, 100)
	e.Tick(ctx, crash, time.Now())

	st := e.TradingState()
	assert.Empty(t, st.Running)
	require.Len(t, st.Closed, 1)
	require.NotNil(t, st.Closed[0].ExitPrice)
	assert.Equal(t, liquidation.Float64(), st.Closed[0].ExitPrice.Float64(),
		"close price must be the trade's own liquidation price, not the crashed tick price")
}

func TestTickTriggersStoplossAtItsOwnPriceNotTheTickPrice(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(t, 1_000_000)

	entry := mustPrice(t, 50000)
	e.Tick(ctx, entry, time.Now())

	qty := mustQuantity(t, 1000)
	lev := mustLeverage(t, 5)
	sl := mustPrice(t, 48000)

	id, err := e.OpenLong(ctx, OpenParams{Size: Size{Quantity: &qty}, Leverage: lev, Stoploss: &sl})
	require.NoError(t, err)

	trade := e.TradingState().Running[id]
	require.Greater(t, sl.Float64(), trade.LiquidationPrice.Float64(),
		"test fixture invariant: SL must sit above liquidation or the SL never triggers first")

	// Gap straight through the stoploss to a much lower price in one tick.
	gapped := mustPrice(t, 47000)
	e.Tick(ctx, gapped, time.Now())

	st := e.TradingState()
	assert.Empty(t, st.Running)
	require.Len(t, st.Closed, 1)
	require.NotNil(t, st.Closed[0].ExitPrice)
	assert.Equal(t, sl.Float64(), st.Closed[0].ExitPrice.Float64(),
		"close price must be the stoploss price, not the gapped tick price")
}

func TestOpenRejectsStoplossBeyondLiquidationPrice(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(t, 1_000_000)

	entry := mustPrice(t, 50000)
	e.Tick(ctx, entry, time.Now())

	qty := mustQuantity(t, 1000)
	lev := mustLeverage(t, 10)

	liquidation := lnm.EstimateLiquidationPrice(lnm.Buy, qty, entry, lev)
	// A stoploss below the trade's own liquidation price can never trigger:
	// the venue liquidates first.
	beyond := mustPrice(t, liquidation.Float64()-50)

	_, err := e.OpenLong(ctx, OpenParams{Size: Size{Quantity: &qty}, Leverage: lev, Stoploss: &beyond})
	assert.ErrorIs(t, err, ErrStoplossBeyondLiquidation)
}

func TestApplyFundingAccruesIntoRealizedPL(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(t, 1_000_000)

	price := mustPrice(t, 50000)
	e.Tick(ctx, price, time.Now())

	qty := mustQuantity(t, 1000)
	lev := mustLeverage(t, 10)
	_, err := e.OpenLong(ctx, OpenParams{Size: Size{Quantity: &qty}, Leverage: lev})
	require.NoError(t, err)

	before := e.TradingState().RealizedPL
	e.ApplyFunding(0.0001, time.Now())
	after := e.TradingState().RealizedPL

	assert.NotEqual(t, before, after)
	assert.Equal(t, lnm.FundingDebitSats(lnm.Buy, qty.Float64(), price, 0.0001), after-before)
}

// replayScenario runs an identical sequence of ticks/opens/funding on a
// fresh executor and returns the resulting aggregate state. Two independent
// runs must agree on every field that isn't an assigned identifier, which is
// what a deterministic backtest replay requires.
func replayScenario(t *testing.T) TradingState {
	t.Helper()
	ctx := context.Background()
	e := newTestExecutor(t, 1_000_000)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e.Tick(ctx, mustPrice(t, 50000), base)

	qty := mustQuantity(t, 1000)
	lev := mustLeverage(t, 10)
	tp := mustPrice(t, 55000)
	_, err := e.OpenLong(ctx, OpenParams{Size: Size{Quantity: &qty}, Leverage: lev, Takeprofit: &tp})
	require.NoError(t, err)

	e.Tick(ctx, mustPrice(t, 51000), base.Add(time.Minute))
	e.ApplyFunding(0.0001, base.Add(time.Minute))
	e.Tick(ctx, mustPrice(t, 56000), base.Add(2*time.Minute))

	return e.TradingState()
}

func TestReplayFromIdenticalInputsIsDeterministic(t *testing.T) {
	a := replayScenario(t)
	b := replayScenario(t)

	assert.Equal(t, a.Balance.Uint64(), b.Balance.Uint64())
	assert.Equal(t, a.RealizedPL, b.RealizedPL)
	assert.Equal(t, a.UnrealizedPL, b.UnrealizedPL)
	assert.Equal(t, a.FeesPaid.Uint64(), b.FeesPaid.Uint64())
	assert.Len(t, a.Closed, 1)
	assert.Len(t, b.Closed, 1)
	assert.Equal(t, a.Closed[0].ExitPrice.Float64(), b.Closed[0].ExitPrice.Float64())
	assert.Empty(t, a.Running)
	assert.Empty(t, b.Running)
}

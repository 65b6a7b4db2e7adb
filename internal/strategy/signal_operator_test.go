package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lnm-trading/agent/internal/execution"
	"github.com/lnm-trading/agent/internal/lnm"
)

// fakeExecutor is a minimal execution.Executor fake that just records
// opens/closes so SingleTradeOperator's sequencing can be asserted without
// a real venue or simulated fill engine.
type fakeExecutor struct {
	state   execution.TradingState
	opens   []lnm.TradeSide
	closes  []string
	nextID  int
}

func (f *fakeExecutor) TradingState() execution.TradingState  { return f.state }
func (f *fakeExecutor) Readiness() execution.Readiness        { return execution.ReadinessReady }
func (f *fakeExecutor) Updates() <-chan execution.Update      { return nil }

func (f *fakeExecutor) OpenLong(ctx context.Context, p execution.OpenParams) (string, error) {
	return f.open(lnm.Buy)
}
func (f *fakeExecutor) OpenShort(ctx context.Context, p execution.OpenParams) (string, error) {
	return f.open(lnm.Sell)
}
func (f *fakeExecutor) open(side lnm.TradeSide) (string, error) {
	f.opens = append(f.opens, side)
	f.nextID++
	return string(rune('a' + f.nextID)), nil
}
func (f *fakeExecutor) UpdateTradeStoploss(ctx context.Context, id string, sl lnm.Price) error {
	return nil
}
func (f *fakeExecutor) AddMargin(ctx context.Context, id string, amount lnm.Margin) error {
	return nil
}
func (f *fakeExecutor) CashIn(ctx context.Context, id string, amount lnm.Margin) error { return nil }
func (f *fakeExecutor) CloseTrade(ctx context.Context, id string) error {
	f.closes = append(f.closes, id)
	return nil
}
func (f *fakeExecutor) CancelAll(ctx context.Context) error { return nil }
func (f *fakeExecutor) CloseAll(ctx context.Context) error  { return nil }

func testSizing(t *testing.T) SizingConfig {
	t.Helper()
	q, err := lnm.NewQuantity(1000)
	require.NoError(t, err)
	lev, err := lnm.NewLeverage(2)
	require.NoError(t, err)
	return SizingConfig{Quantity: q, Leverage: lev, OpTimeout: time.Second}
}

func testMarket(t *testing.T) execution.TradingState {
	t.Helper()
	p, err := lnm.NewPrice(50000)
	require.NoError(t, err)
	return execution.TradingState{MarketPrice: p}
}

func TestSingleTradeOperatorOpensOnLongSignal(t *testing.T) {
	exec := &fakeExecutor{state: testMarket(t)}
	op := NewSingleTradeOperator("test", exec, testSizing(t), zerolog.Nop())

	err := op.ProcessSignal(SignalEvent{Signal: Signal{Direction: DirectionLong}})
	require.NoError(t, err)
	require.Len(t, exec.opens, 1)
	assert.Equal(t, lnm.Buy, exec.opens[0])
}

func TestSingleTradeOperatorIgnoresSameDirectionWhileOpen(t *testing.T) {
	exec := &fakeExecutor{state: testMarket(t)}
	op := NewSingleTradeOperator("test", exec, testSizing(t), zerolog.Nop())

	require.NoError(t, op.ProcessSignal(SignalEvent{Signal: Signal{Direction: DirectionLong}}))
	require.NoError(t, op.ProcessSignal(SignalEvent{Signal: Signal{Direction: DirectionLong}}))
	assert.Len(t, exec.opens, 1, "a second long signal while already long should be a no-op")
}

func TestSingleTradeOperatorClosesOnCloseSignal(t *testing.T) {
	exec := &fakeExecutor{state: testMarket(t)}
	op := NewSingleTradeOperator("test", exec, testSizing(t), zerolog.Nop())

	require.NoError(t, op.ProcessSignal(SignalEvent{Signal: Signal{Direction: DirectionLong}}))
	require.NoError(t, op.ProcessSignal(SignalEvent{Signal: Signal{Direction: DirectionClose}}))
	assert.Len(t, exec.closes, 1)
}

func TestSingleTradeOperatorFlipsOnOppositeSignal(t *testing.T) {
	exec := &fakeExecutor{state: testMarket(t)}
	op := NewSingleTradeOperator("test", exec, testSizing(t), zerolog.Nop())

	require.NoError(t, op.ProcessSignal(SignalEvent{Signal: Signal{Direction: DirectionLong}}))
	require.NoError(t, op.ProcessSignal(SignalEvent{Signal: Signal{Direction: DirectionShort}}))
	assert.Len(t, exec.closes, 1, "opposite signal should close the existing trade")
	assert.Len(t, exec.opens, 2, "opposite signal should then open the new side")
}

func TestSingleTradeOperatorSkipsErroredSignalEvents(t *testing.T) {
	exec := &fakeExecutor{state: testMarket(t)}
	op := NewSingleTradeOperator("test", exec, testSizing(t), zerolog.Nop())

	err := op.ProcessSignal(SignalEvent{Err: assert.AnError})
	require.NoError(t, err)
	assert.Empty(t, exec.opens)
}

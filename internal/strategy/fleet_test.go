package strategy

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lnm-trading/agent/internal/storage"
)

type fakeEvaluator struct {
	name     string
	interval time.Duration
	sig      Signal
	panics   bool
	calls    int
}

func (f *fakeEvaluator) Name() string                      { return f.name }
func (f *fakeEvaluator) MinIterationInterval() time.Duration { return f.interval }
func (f *fakeEvaluator) Lookback() *Lookback                { return nil }
func (f *fakeEvaluator) Evaluate(candles []storage.OhlcCandle) (Signal, error) {
	f.calls++
	if f.panics {
		panic("boom")
	}
	return f.sig, nil
}

func noWindow(time.Duration, int) []storage.OhlcCandle { return nil }

func TestFleetRespectsMinIterationInterval(t *testing.T) {
	e := &fakeEvaluator{name: "e1", interval: time.Minute}
	f := NewFleet([]Evaluator{e}, noWindow, zerolog.Nop())

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	events := f.Step(base)
	require.Len(t, events, 1)
	assert.Equal(t, 1, e.calls)

	events = f.Step(base.Add(30 * time.Second))
	assert.Empty(t, events, "evaluator should not run again before its interval elapses")
	assert.Equal(t, 1, e.calls)

	events = f.Step(base.Add(90 * time.Second))
	require.Len(t, events, 1)
	assert.Equal(t, 2, e.calls)
}

func TestFleetRecoversPanickingEvaluator(t *testing.T) {
	e := &fakeEvaluator{name: "boomer", panics: true}
	f := NewFleet([]Evaluator{e}, noWindow, zerolog.Nop())

	events := f.Step(time.Now().UTC())
	require.Len(t, events, 1)
	assert.Error(t, events[0].Err)
	assert.Contains(t, events[0].Err.Error(), "boomer")
}

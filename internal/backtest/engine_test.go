package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lnm-trading/agent/internal/execution"
	"github.com/lnm-trading/agent/internal/lnm"
	"github.com/lnm-trading/agent/internal/storage"
	"github.com/lnm-trading/agent/internal/strategy"
)

type fakeCandleRepo struct{ candles []storage.OhlcCandle }

func (r *fakeCandleRepo) GetEarliestStableCandle(ctx context.Context) (*storage.OhlcCandle, error) {
	return nil, nil
}
func (r *fakeCandleRepo) GetLatestStableCandle(ctx context.Context) (*storage.OhlcCandle, error) {
	return nil, nil
}
func (r *fakeCandleRepo) GetGaps(ctx context.Context) ([]storage.Gap, error) { return nil, nil }
func (r *fakeCandleRepo) InsertBatch(ctx context.Context, candles []storage.OhlcCandle, clearGapAt time.Time) error {
	return nil
}
func (r *fakeCandleRepo) GetRange(ctx context.Context, from, to time.Time) ([]storage.OhlcCandle, error) {
	var out []storage.OhlcCandle
	for _, c := range r.candles {
		if !c.Time.Before(from) && !c.Time.After(to) {
			out = append(out, c)
		}
	}
	return out, nil
}
func (r *fakeCandleRepo) GetLast(ctx context.Context, n int) ([]storage.OhlcCandle, error) {
	return nil, nil
}

func mustPrice(t *testing.T, v float64) lnm.Price {
	t.Helper()
	p, err := lnm.NewPrice(v)
	require.NoError(t, err)
	return p
}

// flatOperator is a no-op RawOperator used just to exercise the engine's
// dispatch path without depending on any particular evaluator.
type flatOperator struct{ calls int }

func (o *flatOperator) Iterate(candles []storage.OhlcCandle) error {
	o.calls++
	return nil
}

func TestEngineReplaysCandlesAndFinishes(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]storage.OhlcCandle, 0, 10)
	for i := 0; i < 10; i++ {
		p := mustPrice(t, 50000+float64(i))
		candles = append(candles, storage.OhlcCandle{
			Time: start.Add(time.Duration(i) * time.Minute),
			Open: p, High: p, Low: p, Close: p,
		})
	}

	cfg := Config{
		StartTime:             start,
		EndTime:                start.Add(10 * time.Minute),
		Step:                   time.Minute,
		Candles:                &fakeCandleRepo{candles: candles},
		ConsolidatorWindowCap:  100,
	}
	engine := NewEngine(cfg, zerolog.Nop())

	exec := execution.NewSimulatedExecutor(execution.DefaultSimulatedConfig(), zerolog.Nop())
	op := &flatOperator{}
	runs := []RunSpec{
		{Name: "flat", Operator: op, Executor: exec},
	}

	results, err := engine.Run(context.Background(), runs)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "flat", results[0].Run)
	assert.Greater(t, op.calls, 0, "raw operator should have been iterated at least once")
}

func TestEngineAbortStopsEarly(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := mustPrice(t, 50000)
	candles := []storage.OhlcCandle{{Time: start, Open: p, High: p, Low: p, Close: p}}

	cfg := Config{
		StartTime:             start,
		EndTime:                start.Add(time.Hour),
		Step:                   time.Second,
		Candles:                &fakeCandleRepo{candles: candles},
		ConsolidatorWindowCap:  100,
	}
	engine := NewEngine(cfg, zerolog.Nop())
	engine.Abort()

	exec := execution.NewSimulatedExecutor(execution.DefaultSimulatedConfig(), zerolog.Nop())
	runs := []RunSpec{{Name: "aborted", Operator: &flatOperator{}, Executor: exec}}

	results, err := engine.Run(context.Background(), runs)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].FinalState.LastTickTime.IsZero(), "an engine aborted before Run must never tick the executor")
}

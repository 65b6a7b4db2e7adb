package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lnm-trading/agent/internal/storage"
)

// fakeCandleRepo is a hand-rolled storage.CandleRepository backed by an
// in-memory candle list, sorted by Time. Only the read paths PriceHistoryState
// exercises are meaningful; InsertBatch/GetRange/GetLast are unused by these
// tests and return zero values.
type fakeCandleRepo struct {
	candles []storage.OhlcCandle
}

func (f *fakeCandleRepo) GetEarliestStableCandle(ctx context.Context) (*storage.OhlcCandle, error) {
	if len(f.candles) == 0 {
		return nil, nil
	}
	c := f.candles[0]
	return &c, nil
}

func (f *fakeCandleRepo) GetLatestStableCandle(ctx context.Context) (*storage.OhlcCandle, error) {
	if len(f.candles) == 0 {
		return nil, nil
	}
	c := f.candles[len(f.candles)-1]
	return &c, nil
}

func (f *fakeCandleRepo) GetGaps(ctx context.Context) ([]storage.Gap, error) {
	var gaps []storage.Gap
	for i := 1; i < len(f.candles); i++ {
		prev, cur := f.candles[i-1], f.candles[i]
		if cur.Time.Sub(prev.Time) > time.Minute {
			gaps = append(gaps, storage.Gap{From: prev.Time, To: cur.Time})
		}
	}
	return gaps, nil
}

func (f *fakeCandleRepo) InsertBatch(ctx context.Context, candles []storage.OhlcCandle, clearGapAt time.Time) error {
	return nil
}

func (f *fakeCandleRepo) GetRange(ctx context.Context, from, to time.Time) ([]storage.OhlcCandle, error) {
	return nil, nil
}

func (f *fakeCandleRepo) GetLast(ctx context.Context, n int) ([]storage.OhlcCandle, error) {
	return nil, nil
}

func candleAt(tm time.Time) storage.OhlcCandle {
	return storage.OhlcCandle{Time: tm}
}

func TestEvaluateWithReachOnEmptyStoreHasGapsAndNeedsFullRange(t *testing.T) {
	repo := &fakeCandleRepo{}

	state, err := EvaluateWithReach(context.Background(), repo, 2*time.Hour)
	require.NoError(t, err)

	hasGaps, err := state.HasGaps()
	require.NoError(t, err)
	assert.True(t, hasGaps, "an empty store must always report gaps so backfill starts")

	dr, err := state.NextDownloadRange(true)
	require.NoError(t, err)
	assert.Nil(t, dr.From)
	assert.Nil(t, dr.To)

	_, _, ok := state.Bounds()
	assert.False(t, ok)
}

func TestNextDownloadRangePrioritizesOldestGapWhenBackfilling(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Minute)
	repo := &fakeCandleRepo{candles: []storage.OhlcCandle{
		candleAt(now.Add(-3 * time.Hour)),
		candleAt(now.Add(-3*time.Hour + time.Minute)),
		// gap: now-3h+2m .. now-2h
		candleAt(now.Add(-2 * time.Hour)),
		candleAt(now.Add(-2*time.Hour + time.Minute)),
		// gap: now-2h+2m .. now-1h
		candleAt(now.Add(-1 * time.Hour)),
	}}

	state, err := EvaluateWithReach(context.Background(), repo, 4*time.Hour)
	require.NoError(t, err)

	gaps := state.Gaps()
	require.Len(t, gaps, 2)

	dr, err := state.NextDownloadRange(true)
	require.NoError(t, err)
	require.NotNil(t, dr.From)
	require.NotNil(t, dr.To)
	assert.True(t, dr.From.Equal(gaps[0].From))
	assert.True(t, dr.To.Equal(gaps[0].To))
}

func TestNextDownloadRangePrioritizesNewestGapWhenCatchingUpLive(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeCandleRepo{candles: []storage.OhlcCandle{
		candleAt(now.Add(-3 * time.Hour)),
		candleAt(now.Add(-3*time.Hour + time.Minute)),
		candleAt(now.Add(-2 * time.Hour)),
		candleAt(now.Add(-2*time.Hour + time.Minute)),
		candleAt(now.Add(-1 * time.Hour)),
	}}

	state, err := Evaluate(context.Background(), repo)
	require.NoError(t, err)

	gaps := state.Gaps()
	require.Len(t, gaps, 2)

	dr, err := state.NextDownloadRange(false)
	require.NoError(t, err)
	require.NotNil(t, dr.From)
	require.NotNil(t, dr.To)
	assert.True(t, dr.From.Equal(gaps[len(gaps)-1].From))
	assert.True(t, dr.To.Equal(gaps[len(gaps)-1].To))
}

func TestNextDownloadRangeExtendsStartTowardReachBeforeAppending(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Minute)
	repo := &fakeCandleRepo{candles: []storage.OhlcCandle{
		candleAt(now.Add(-1 * time.Hour)),
		candleAt(now.Add(-1*time.Hour + time.Minute)),
	}}

	state, err := EvaluateWithReach(context.Background(), repo, 2*time.Hour)
	require.NoError(t, err)
	require.Empty(t, state.Gaps())

	dr, err := state.NextDownloadRange(true)
	require.NoError(t, err)
	assert.Nil(t, dr.From)
	require.NotNil(t, dr.To)
	assert.True(t, dr.To.Equal(now.Add(-1*time.Hour)))
}

func TestNextDownloadRangeAppendsPastEndWhenReachIsSatisfied(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Minute)
	repo := &fakeCandleRepo{candles: []storage.OhlcCandle{
		candleAt(now.Add(-1 * time.Hour)),
		candleAt(now.Add(-1*time.Hour + time.Minute)),
	}}

	state, err := EvaluateWithReach(context.Background(), repo, 30*time.Minute)
	require.NoError(t, err)

	hasGaps, err := state.HasGaps()
	require.NoError(t, err)
	assert.False(t, hasGaps, "reach is already satisfied and there are no gaps")

	dr, err := state.NextDownloadRange(true)
	require.NoError(t, err)
	assert.Nil(t, dr.To)
	require.NotNil(t, dr.From)
	assert.True(t, dr.From.Equal(now.Add(-1*time.Hour + time.Minute)))
}

func TestNewStateRejectsGapBeforeReachHorizon(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Minute)
	repo := &fakeCandleRepo{candles: []storage.OhlcCandle{
		candleAt(now.Add(-10 * time.Hour)),
		candleAt(now.Add(-10*time.Hour + time.Minute)),
		// gap extends past the 2h reach horizon
		candleAt(now.Add(-1 * time.Hour)),
	}}

	_, err := EvaluateWithReach(context.Background(), repo, 2*time.Hour)
	assert.True(t, errors.Is(err, ErrUnreachableGap))
}

func TestHasGapsRequiresReachHorizon(t *testing.T) {
	repo := &fakeCandleRepo{}
	state, err := Evaluate(context.Background(), repo)
	require.NoError(t, err)

	_, err = state.HasGaps()
	assert.ErrorIs(t, err, ErrReachNotSet)
}

func TestIsRangeAvailableRejectsInvertedRange(t *testing.T) {
	repo := &fakeCandleRepo{}
	state, err := Evaluate(context.Background(), repo)
	require.NoError(t, err)

	now := time.Now()
	_, err = state.IsRangeAvailable(now, now.Add(-time.Minute))
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestIsRangeAvailableDetectsGapOverlap(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeCandleRepo{candles: []storage.OhlcCandle{
		candleAt(now.Add(-3 * time.Hour)),
		candleAt(now.Add(-3*time.Hour + time.Minute)),
		candleAt(now.Add(-1 * time.Hour)),
	}}

	state, err := Evaluate(context.Background(), repo)
	require.NoError(t, err)

	ok, err := state.IsRangeAvailable(now.Add(-3*time.Hour), now.Add(-1*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "the range spans the gap so it isn't fully available")

	ok, err = state.IsRangeAvailable(now.Add(-3*time.Hour), now.Add(-3*time.Hour+time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
}

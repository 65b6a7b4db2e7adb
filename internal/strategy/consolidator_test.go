package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lnm-trading/agent/internal/lnm"
	"github.com/lnm-trading/agent/internal/storage"
)

func price(t *testing.T, v float64) lnm.Price {
	t.Helper()
	p, err := lnm.NewPrice(v)
	require.NoError(t, err)
	return p
}

func minuteCandle(t *testing.T, at time.Time, close float64) storage.OhlcCandle {
	t.Helper()
	p := price(t, close)
	return storage.OhlcCandle{Time: at, Open: p, High: p, Low: p, Close: p}
}

func TestConsolidatorBuildsStableOneMinuteBuckets(t *testing.T) {
	c := NewConsolidator(100)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	c.OnCandle(minuteCandle(t, base, 100))
	assert.Empty(t, c.Window(time.Minute, 0), "a bucket is not stable until a later candle is observed")

	c.OnCandle(minuteCandle(t, base.Add(time.Minute), 101))
	window := c.Window(time.Minute, 0)
	require.Len(t, window, 1)
	assert.Equal(t, base, window[0].Time)
}

func TestConsolidatorTracksHighLowAcrossCandlesInSameBucket(t *testing.T) {
	c := NewConsolidator(100)
	base := time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC)

	low := price(t, 90)
	high := price(t, 110)
	open := price(t, 100)
	c.OnCandle(storage.OhlcCandle{Time: base, Open: open, High: open, Low: open, Close: open})
	c.OnCandle(storage.OhlcCandle{Time: base.Add(20 * time.Second), Open: open, High: high, Low: low, Close: open})

	c.OnCandle(minuteCandle(t, base.Add(5*time.Minute), 100))
	window := c.Window(5*time.Minute, 0)
	require.Len(t, window, 1)
	assert.Equal(t, high.Float64(), window[0].High.Float64())
	assert.Equal(t, low.Float64(), window[0].Low.Float64())
}

func TestConsolidatorDropsOutOfOrderCandles(t *testing.T) {
	c := NewConsolidator(100)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	c.OnCandle(minuteCandle(t, base.Add(time.Minute), 100))
	c.OnCandle(minuteCandle(t, base, 90)) // stale, before the current bucket
	c.OnCandle(minuteCandle(t, base.Add(2*time.Minute), 110))

	window := c.Window(time.Minute, 0)
	require.Len(t, window, 1)
	assert.Equal(t, base.Add(time.Minute), window[0].Time)
}

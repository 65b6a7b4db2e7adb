package strategy

import (
	"time"

	"github.com/lnm-trading/agent/internal/lnmtime"
	"github.com/lnm-trading/agent/internal/storage"
)

// Resolutions is the fixed ladder of candle resolutions the consolidator
// maintains above the 1-minute source feed.
var Resolutions = []time.Duration{
	time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	time.Hour,
	4 * time.Hour,
	24 * time.Hour,
}

// resolutionBuffer accumulates 1-minute source candles into one higher
// resolution, holding a bounded window of stable buckets plus the
// in-progress one. A bucket becomes stable only once a minute beyond its
// end time has been observed, at which point it is appended to stable and
// is visible to evaluators.
type resolutionBuffer struct {
	resolution time.Duration
	cap        int
	stable     []storage.OhlcCandle
	current    *storage.OhlcCandle
	curBucket  time.Time
}

func newResolutionBuffer(resolution time.Duration, cap int) *resolutionBuffer {
	return &resolutionBuffer{resolution: resolution, cap: cap}
}

func (b *resolutionBuffer) onCandle(c storage.OhlcCandle) {
	bucket := lnmtime.FloorToResolution(c.Time, b.resolution)

	switch {
	case b.current == nil:
		agg := c
		agg.Time = bucket
		b.current = &agg
		b.curBucket = bucket
	case bucket.Equal(b.curBucket):
		if c.High.Float64() > b.current.High.Float64() {
			b.current.High = c.High
		}
		if c.Low.Float64() < b.current.Low.Float64() {
			b.current.Low = c.Low
		}
		b.current.Close = c.Close
		b.current.Volume += c.Volume
	case bucket.After(b.curBucket):
		b.stable = append(b.stable, *b.current)
		if b.cap > 0 && len(b.stable) > b.cap {
			b.stable = b.stable[len(b.stable)-b.cap:]
		}
		agg := c
		agg.Time = bucket
		b.current = &agg
		b.curBucket = bucket
	default:
		// Out-of-order minute candle older than the current bucket; the
		// sync process never delivers these in practice, so it is dropped
		// rather than reopening a bucket already marked stable.
	}
}

func (b *resolutionBuffer) window(n int) []storage.OhlcCandle {
	if n <= 0 || n > len(b.stable) {
		n = len(b.stable)
	}
	out := make([]storage.OhlcCandle, n)
	copy(out, b.stable[len(b.stable)-n:])
	return out
}

// Consolidator maintains, from a single stream of 1-minute source
// candles, rolling stable-bucket windows at every resolution in
// Resolutions. Used by the backtest engine to feed evaluator lookback
// windows without re-querying the candle repository on every grid step.
type Consolidator struct {
	buffers map[time.Duration]*resolutionBuffer
}

// NewConsolidator builds a consolidator whose per-resolution buffers each
// retain at most windowCap stable buckets (0 means unbounded).
func NewConsolidator(windowCap int) *Consolidator {
	c := &Consolidator{buffers: make(map[time.Duration]*resolutionBuffer, len(Resolutions))}
	for _, r := range Resolutions {
		c.buffers[r] = newResolutionBuffer(r, windowCap)
	}
	return c
}

// OnCandle feeds one 1-minute source candle into every resolution buffer.
func (c *Consolidator) OnCandle(candle storage.OhlcCandle) {
	for _, buf := range c.buffers {
		buf.onCandle(candle)
	}
}

// Window returns the last n stable buckets at resolution, oldest first.
// Unknown resolutions return nil.
func (c *Consolidator) Window(resolution time.Duration, n int) []storage.OhlcCandle {
	buf, ok := c.buffers[resolution]
	if !ok {
		return nil
	}
	return buf.window(n)
}

package strategy

import (
	"time"

	"github.com/lnm-trading/agent/internal/storage"
)

// SMACrossover is a minimal example Evaluator: it proposes a long when the
// fast simple moving average crosses above the slow one on the latest
// candle, a short on the opposite cross, and stays silent otherwise. It
// exists to exercise the Evaluator contract end to end; real deployments
// supply their own.
type SMACrossover struct {
	name       string
	fastPeriod int
	slowPeriod int
	interval   time.Duration
}

func NewSMACrossover(name string, fastPeriod, slowPeriod int, minInterval time.Duration) *SMACrossover {
	return &SMACrossover{name: name, fastPeriod: fastPeriod, slowPeriod: slowPeriod, interval: minInterval}
}

func (s *SMACrossover) Name() string                      { return s.name }
func (s *SMACrossover) MinIterationInterval() time.Duration { return s.interval }

func (s *SMACrossover) Lookback() *Lookback {
	return &Lookback{Resolution: time.Minute, Period: s.slowPeriod + 1}
}

func (s *SMACrossover) Evaluate(candles []storage.OhlcCandle) (Signal, error) {
	if len(candles) < s.slowPeriod+1 {
		return Signal{Direction: DirectionNone, Reason: "insufficient history"}, nil
	}

	last := candles[len(candles)-1]
	prev := candles[:len(candles)-1]

	fastNow := sma(candles, s.fastPeriod)
	slowNow := sma(candles, s.slowPeriod)
	fastPrev := sma(prev, s.fastPeriod)
	slowPrev := sma(prev, s.slowPeriod)

	switch {
	case fastPrev <= slowPrev && fastNow > slowNow:
		return Signal{Direction: DirectionLong, Confidence: 1, Reason: "fast SMA crossed above slow SMA", Time: last.Time}, nil
	case fastPrev >= slowPrev && fastNow < slowNow:
		return Signal{Direction: DirectionShort, Confidence: 1, Reason: "fast SMA crossed below slow SMA", Time: last.Time}, nil
	default:
		return Signal{Direction: DirectionNone, Time: last.Time}, nil
	}
}

// sma averages the Close of the last period candles; candles must be at
// least period long.
func sma(candles []storage.OhlcCandle, period int) float64 {
	window := candles[len(candles)-period:]
	var sum float64
	for _, c := range window {
		sum += c.Close.Float64()
	}
	return sum / float64(period)
}

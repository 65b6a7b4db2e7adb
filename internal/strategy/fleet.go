package strategy

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lnm-trading/agent/internal/storage"
)

// CandleWindow looks up the last n candles at resolution, oldest first.
// The live process backs this with the candle repository; the backtest
// engine backs it with a Consolidator.
type CandleWindow func(resolution time.Duration, n int) []storage.OhlcCandle

type fleetEntry struct {
	evaluator Evaluator
	lastEval  time.Time
}

// Fleet schedules a set of evaluators, each at its own declared minimum
// iteration interval, and forwards every resulting signal onward.
type Fleet struct {
	entries []*fleetEntry
	window  CandleWindow
	log     zerolog.Logger
}

func NewFleet(evaluators []Evaluator, window CandleWindow, log zerolog.Logger) *Fleet {
	entries := make([]*fleetEntry, len(evaluators))
	for i, e := range evaluators {
		entries[i] = &fleetEntry{evaluator: e}
	}
	return &Fleet{entries: entries, window: window, log: log}
}

// Step runs every evaluator whose interval has elapsed as of now, in
// declaration order, and returns the SignalEvents produced. Panics inside
// an evaluator are caught and surfaced as a SignalEvent error rather than
// crashing the fleet.
func (f *Fleet) Step(now time.Time) []SignalEvent {
	var out []SignalEvent
	for _, e := range f.entries {
		if !e.lastEval.IsZero() && now.Sub(e.lastEval) < e.evaluator.MinIterationInterval() {
			continue
		}
		e.lastEval = now

		var candles []storage.OhlcCandle
		if lb := e.evaluator.Lookback(); lb != nil {
			candles = f.window(lb.Resolution, lb.Period)
		}

		sig, err := safeEvaluate(e.evaluator, candles)
		ev := SignalEvent{Evaluator: e.evaluator.Name(), Signal: sig, Err: err}
		if err != nil {
			f.log.Warn().Str("evaluator", ev.Evaluator).Err(err).Msg("evaluator failed")
		}
		out = append(out, ev)
	}
	return out
}

// safeEvaluate recovers a panicking Evaluate into a plain error, since
// evaluators are user-supplied and must never take down the fleet.
func safeEvaluate(e Evaluator, candles []storage.OhlcCandle) (sig Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluator %s panicked: %v", e.Name(), r)
		}
	}()
	return e.Evaluate(candles)
}

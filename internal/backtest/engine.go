package backtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lnm-trading/agent/internal/lnmtime"
	"github.com/lnm-trading/agent/internal/metrics"
	"github.com/lnm-trading/agent/internal/storage"
	"github.com/lnm-trading/agent/internal/strategy"
)

// Engine drives runSpecs' fleets and simulated executors through a shared
// pass of historical candles, one grid step at a time.
type Engine struct {
	cfg Config
	log zerolog.Logger

	mu       sync.Mutex
	aborted  bool
	updateCh chan Update
}

func NewEngine(cfg Config, log zerolog.Logger) *Engine {
	return &Engine{cfg: cfg, log: log, updateCh: make(chan Update, 256)}
}

// Updates streams Status and TradingState updates, tagged by run name.
func (e *Engine) Updates() <-chan Update { return e.updateCh }

// Abort requests the run stop at the next grid step; idempotent.
func (e *Engine) Abort() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.aborted = true
}

func (e *Engine) isAborted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.aborted
}

func (e *Engine) emit(u Update) {
	select {
	case e.updateCh <- u:
	default:
		e.log.Warn().Str("run", u.Run).Msg("dropping backtest update, no receiver")
	}
}

// Run replays candles in [cfg.StartTime, cfg.EndTime] through every run in
// runs, in lockstep on the shared consolidator and clock, and returns each
// run's final TradingState. Terminates early with StatusAborted if Abort
// was called or ctx ended. Operator errors are logged and do not stop the
// pass, so Run never finishes with StatusFailed; a candle or funding load
// failure returns an error before any step runs.
func (e *Engine) Run(ctx context.Context, runs []RunSpec) ([]Result, error) {
	runStart := time.Now()
	defer func() { metrics.BacktestRunDuration.Observe(time.Since(runStart).Seconds()) }()

	for _, r := range runs {
		e.emit(Update{Run: r.Name, Kind: UpdateKindStatus, Status: StatusRunning})
	}

	candles, err := e.cfg.Candles.GetRange(ctx, e.cfg.StartTime, e.cfg.EndTime)
	if err != nil {
		return nil, fmt.Errorf("backtest: load candles: %w", err)
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].Time.Before(candles[j].Time) })

	var settlements []storage.FundingSettlement
	if e.cfg.Funding != nil {
		settlements, err = e.cfg.Funding.GetRange(ctx, e.cfg.StartTime, e.cfg.EndTime)
		if err != nil {
			return nil, fmt.Errorf("backtest: load funding settlements: %w", err)
		}
	}
	sort.Slice(settlements, func(i, j int) bool { return settlements[i].Time.Before(settlements[j].Time) })

	consolidator := strategy.NewConsolidator(e.cfg.ConsolidatorWindowCap)
	fleets := make([]*strategy.Fleet, len(runs))
	for i, r := range runs {
		fleets[i] = strategy.NewFleet(r.Evaluators, consolidator.Window, e.log)
	}

	step := e.cfg.Step
	if step <= 0 {
		step = time.Second
	}

	candleIdx := 0
	settlementIdx := 0
	var lastPrice *storage.OhlcCandle

	for now := lnmtime.CeilSecond(e.cfg.StartTime); !now.After(e.cfg.EndTime); now = now.Add(step) {
		if ctx.Err() != nil {
			return e.finish(runs, StatusAborted)
		}
		if e.isAborted() {
			return e.finish(runs, StatusAborted)
		}

		for candleIdx < len(candles) && !candles[candleIdx].Time.After(now) {
			consolidator.OnCandle(candles[candleIdx])
			lastPrice = &candles[candleIdx]
			candleIdx++
			metrics.BacktestCandlesProcessed.Inc()
		}
		if lastPrice == nil {
			continue
		}

		for settlementIdx < len(settlements) && !settlements[settlementIdx].Time.After(now) {
			s := settlements[settlementIdx]
			for i, r := range runs {
				r.Executor.ApplyFunding(s.FundingRate, s.Time)
				e.maybeEmitState(r, now)
				_ = fleets[i]
			}
			settlementIdx++
		}

		for i, r := range runs {
			r.Executor.Tick(ctx, lastPrice.Close, now)

			events := fleets[i].Step(now)
			signalOp, isSignalOp := r.Operator.(strategy.SignalOperator)
			rawOp, isRawOp := r.Operator.(strategy.RawOperator)
			if isSignalOp {
				for _, ev := range events {
					if err := signalOp.ProcessSignal(ev); err != nil {
						e.log.Warn().Str("run", r.Name).Str("evaluator", ev.Evaluator).Err(err).Msg("operator failed to process signal")
					}
				}
			}
			if isRawOp {
				if err := rawOp.Iterate(consolidator.Window(time.Minute, 0)); err != nil {
					e.log.Warn().Str("run", r.Name).Err(err).Msg("raw operator iteration failed")
				}
			}
			if len(events) > 0 || isRawOp {
				e.maybeEmitState(r, now)
			}
		}
	}

	return e.finish(runs, StatusFinished)
}

func (e *Engine) maybeEmitState(r RunSpec, now time.Time) {
	e.emit(Update{Run: r.Name, Kind: UpdateKindTradingState, TradingState: r.Executor.TradingState()})
}

func (e *Engine) finish(runs []RunSpec, status Status) ([]Result, error) {
	results := make([]Result, len(runs))
	for i, r := range runs {
		state := r.Executor.TradingState()
		e.emit(Update{Run: r.Name, Kind: UpdateKindStatus, Status: status})
		results[i] = Result{Run: r.Name, FinalState: state, ClosedTrades: len(state.Closed)}
	}
	if status == StatusFailed {
		return results, fmt.Errorf("backtest: run failed")
	}
	return results, nil
}

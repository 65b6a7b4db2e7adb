// Package backtest drives the evaluator/operator contract of internal/strategy
// against historical candles through a deterministic execution.SimulatedExecutor,
// one grid step at a time, optionally running several operators in parallel
// over a single pass of the data (spec component J).
package backtest

import (
	"time"

	"github.com/lnm-trading/agent/internal/execution"
	"github.com/lnm-trading/agent/internal/storage"
	"github.com/lnm-trading/agent/internal/strategy"
)

// Config bounds the replay clock and backs candle/funding lookups.
type Config struct {
	StartTime time.Time
	EndTime   time.Time
	// Step is the clock's grid granularity; spec §4.7 fixes this at 1
	// second for live mode and allows coarser steps for backtests.
	Step    time.Duration
	Candles storage.CandleRepository
	Funding storage.FundingSettlementRepository
	// ConsolidatorWindowCap bounds how many stable buckets each
	// resolution's rolling buffer retains (0 = unbounded).
	ConsolidatorWindowCap int
}

func DefaultConfig() Config {
	return Config{Step: time.Second, ConsolidatorWindowCap: 1000}
}

// RunSpec is one operator's configuration for a shared backtest pass: its
// own evaluator fleet and simulated executor, driven by the same candle
// stream as every other run.
type RunSpec struct {
	Name       string
	Evaluators []strategy.Evaluator
	Operator   interface{} // strategy.SignalOperator or strategy.RawOperator
	Executor   *execution.SimulatedExecutor
}

// Status discriminates the engine's lifecycle.
type Status int

const (
	StatusRunning Status = iota
	StatusFinished
	StatusFailed
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusFinished:
		return "finished"
	case StatusFailed:
		return "failed"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// UpdateKind discriminates Update variants.
type UpdateKind int

const (
	UpdateKindStatus UpdateKind = iota
	UpdateKindTradingState
)

// Update is one entry on the engine's broadcast, tagged with the
// originating run's name so a multi-operator pass can be told apart.
type Update struct {
	Run          string
	Kind         UpdateKind
	Status       Status
	Err          error
	TradingState execution.TradingState
}

// Result is the final per-run outcome of a completed pass.
type Result struct {
	Run          string
	FinalState   execution.TradingState
	ClosedTrades int
}

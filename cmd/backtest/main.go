// Command backtest replays a historical window of persisted candles and
// funding settlements through one or more evaluator/operator pairs, each
// driving its own SimulatedExecutor, and prints the final per-run results.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lnm-trading/agent/internal/backtest"
	"github.com/lnm-trading/agent/internal/config"
	"github.com/lnm-trading/agent/internal/execution"
	"github.com/lnm-trading/agent/internal/lnm"
	"github.com/lnm-trading/agent/internal/storage"
	"github.com/lnm-trading/agent/internal/strategy"
)

// defaultSizing returns the fixed trade size/risk envelope the example
// operator trades with; a real deployment would derive this from account
// balance rather than hardcoding it.
func defaultSizing() strategy.SizingConfig {
	quantity, err := lnm.NewQuantity(1000)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build default trade quantity")
	}
	leverage, err := lnm.NewLeverage(2)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build default leverage")
	}
	stoplossPct, err := lnm.NewBoundedPercentage(0.02)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build stoploss percentage")
	}
	takeprofitPct, err := lnm.NewBoundedPercentage(0.04)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build takeprofit percentage")
	}
	return strategy.SizingConfig{
		Quantity:      quantity,
		Leverage:      leverage,
		StoplossPct:   stoplossPct,
		TakeprofitPct: takeprofitPct,
		OpTimeout:     10 * time.Second,
	}
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	from := flag.String("from", "", "replay start, RFC3339 (required)")
	to := flag.String("to", "", "replay end, RFC3339 (required)")
	flag.Parse()

	if *from == "" || *to == "" {
		log.Fatal().Msg("both -from and -to are required")
	}
	startTime, err := time.Parse(time.RFC3339, *from)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid -from")
	}
	endTime, err := time.Parse(time.RFC3339, *to)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid -to")
	}

	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Warn().Err(err).Msg("failed to load config, using defaults")
		cfg = config.DefaultConfig()
	}

	db, err := storage.OpenSQLiteDB(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	candles := storage.NewSQLiteCandleRepository(db)
	funding := storage.NewSQLiteFundingSettlementRepository(db)

	engineCfg := backtest.Config{
		StartTime:             startTime,
		EndTime:               endTime,
		Step:                  cfg.Backtest.Step,
		Candles:               candles,
		Funding:               funding,
		ConsolidatorWindowCap: cfg.Backtest.ConsolidatorWindowCap,
	}
	engine := backtest.NewEngine(engineCfg, log.Logger)

	simExecutor := execution.NewSimulatedExecutor(execution.DefaultSimulatedConfig(), log.Logger)
	runs := []backtest.RunSpec{
		{
			Name:       "sma-5-20",
			Evaluators: []strategy.Evaluator{strategy.NewSMACrossover("sma-1m-5-20", 5, 20, time.Minute)},
			Operator:   strategy.NewSingleTradeOperator("sma-5-20", simExecutor, defaultSizing(), log.Logger),
			Executor:   simExecutor,
		},
	}

	go func() {
		for u := range engine.Updates() {
			if u.Kind == backtest.UpdateKindStatus {
				log.Info().Str("run", u.Run).Str("status", u.Status.String()).Msg("backtest run status")
			}
		}
	}()

	results, err := engine.Run(context.Background(), runs)
	if err != nil {
		log.Fatal().Err(err).Msg("backtest run failed")
	}

	for _, r := range results {
		log.Info().
			Str("run", r.Run).
			Int("closed_trades", r.ClosedTrades).
			Int64("realized_pl", r.FinalState.RealizedPL).
			Uint64("balance_sats", r.FinalState.Balance.Uint64()).
			Msg("backtest run complete")
	}
}

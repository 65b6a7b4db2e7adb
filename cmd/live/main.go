// Command live runs the full recoverable trading pipeline: sync, the
// evaluator fleet against consolidated candles, a SingleTradeOperator, and
// the venue-backed live executor, all behind the status API server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lnm-trading/agent/internal/api"
	"github.com/lnm-trading/agent/internal/config"
	"github.com/lnm-trading/agent/internal/execution"
	"github.com/lnm-trading/agent/internal/live"
	"github.com/lnm-trading/agent/internal/lnm"
	"github.com/lnm-trading/agent/internal/lnmrest"
	"github.com/lnm-trading/agent/internal/storage"
	"github.com/lnm-trading/agent/internal/strategy"
	"github.com/lnm-trading/agent/internal/sync"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("no .env file found, relying on process environment")
	}

	log.Info().Msg("starting live trading process")

	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Warn().Err(err).Msg("failed to load config, using defaults")
		cfg = config.DefaultConfig()
	}
	cfg.Venue.Key = os.Getenv("LNM_KEY")
	cfg.Venue.Secret = os.Getenv("LNM_SECRET")
	cfg.Venue.Passphrase = os.Getenv("LNM_PASSPHRASE")

	db, err := storage.OpenSQLiteDB(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	candles := storage.NewSQLiteCandleRepository(db)
	ticks := storage.NewSQLiteTickRepository(db)
	funding := storage.NewSQLiteFundingSettlementRepository(db)
	trades := storage.NewSQLiteTradeRepository(db)

	rest := lnmrest.NewClient(lnmrest.Credentials{
		Key:        cfg.Venue.Key,
		Secret:     cfg.Venue.Secret,
		Passphrase: cfg.Venue.Passphrase,
	}, lnmrest.WithBaseURL(cfg.Venue.RESTBaseURL))

	syncCfg := sync.Config{
		Mode:              sync.ModeFull,
		Reach:             cfg.Sync.Reach,
		Lookback:          cfg.Sync.Lookback,
		ResyncInterval:    cfg.Sync.ResyncInterval,
		RestartInterval:   cfg.Sync.RestartInterval,
		BatchSize:         cfg.Sync.BatchSize,
		APIErrorMaxTrials: cfg.Sync.APIErrorMaxTrials,
		APIErrorCooldown:  cfg.Sync.APIErrorCooldown,
		WSURL:             cfg.Venue.WSURL,
		TickChannel:       cfg.Sync.TickChannel,
	}
	syncCtl := sync.NewController(syncCfg, rest, candles, ticks, funding, log.Logger)

	executor := execution.NewLiveExecutor(rest, trades, log.Logger)

	consolidator := strategy.NewConsolidator(cfg.Backtest.ConsolidatorWindowCap)
	evaluators := []strategy.Evaluator{
		strategy.NewSMACrossover("sma-1m-5-20", 5, 20, time.Minute),
	}
	fleet := strategy.NewFleet(evaluators, consolidator.Window, log.Logger)

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

	operator := strategy.NewSingleTradeOperator("single-trade", executor, strategy.SizingConfig{
		Quantity:      quantity,
		Leverage:      leverage,
		StoplossPct:   stoplossPct,
		TakeprofitPct: takeprofitPct,
		OpTimeout:     10 * time.Second,
	}, log.Logger)

	liveCfg := live.Config{
		RestartInterval:   cfg.Live.RestartInterval,
		ShutdownTimeout:   cfg.Live.ShutdownTimeout,
		FleetInterval:     cfg.Live.FleetInterval,
		CancelOnShutdown:  cfg.Live.CancelOnShutdown,
		SyncUpdateTimeout: cfg.Live.SyncUpdateTimeout,
	}
	supervisor := live.NewSupervisor(liveCfg, syncCtl, fleet, operator, executor, log.Logger)

	apiCfg := &api.ServerConfig{Port: cfg.API.Port, CORSOrigins: cfg.API.CORSOrigins, ShutdownTimeout: cfg.Live.ShutdownTimeout}
	server := api.NewServer(apiCfg, syncCtl, supervisor, executor)
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("status API server error")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go feedConsolidator(ctx, candles, consolidator, log.Logger)

	runErr := make(chan error, 1)
	go func() { runErr <- supervisor.Run(ctx) }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down live process")
		cancel()
		<-runErr
	case err := <-runErr:
		cancel()
		if err != nil {
			log.Error().Err(err).Msg("live process terminated")
		}
	}

	if err := server.Shutdown(); err != nil {
		log.Error().Err(err).Msg("status API server shutdown error")
	}
	log.Info().Msg("live process stopped")
}

// feedConsolidator polls for newly stable candles and feeds them into the
// consolidator the fleet reads its windows from. The sync controller owns
// the only write path into storage; this is a read-only follower.
func feedConsolidator(ctx context.Context, repo storage.CandleRepository, consolidator *strategy.Consolidator, log zerolog.Logger) {
	var lastSeen time.Time
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			recent, err := repo.GetLast(context.Background(), 5)
			if err != nil {
				log.Warn().Err(err).Msg("failed to poll recent candles")
				continue
			}
			for _, c := range recent {
				if c.Time.After(lastSeen) {
					consolidator.OnCandle(c)
					lastSeen = c.Time
				}
			}
		}
	}
}

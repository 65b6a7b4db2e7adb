// Command sync runs the candle/funding-settlement backfill and live tick
// stream on its own, independent of the live trading supervisor: useful
// for warming a fresh database or running a standalone data feed that the
// backtest engine later replays against.
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
	"github.com/lnm-trading/agent/internal/lnmrest"
	"github.com/lnm-trading/agent/internal/storage"
	"github.com/lnm-trading/agent/internal/sync"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("no .env file found, relying on process environment")
	}

	log.Info().Msg("starting sync process")

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

	apiCfg := &api.ServerConfig{Port: cfg.API.Port, CORSOrigins: cfg.API.CORSOrigins, ShutdownTimeout: 10 * time.Second}
	server := api.NewServer(apiCfg, syncCtl, nil, nil)
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("status API server error")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- syncCtl.Run(ctx) }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down sync process")
		cancel()
		<-runErr
	case err := <-runErr:
		cancel()
		if err != nil {
			log.Error().Err(err).Msg("sync process terminated")
		}
	}

	if err := server.Shutdown(); err != nil {
		log.Error().Err(err).Msg("status API server shutdown error")
	}
	log.Info().Msg("sync process stopped")
}

// Package config loads the YAML-backed application configuration, the
// way the teacher's internal/config/config.go does, restructured around
// this system's sync/executor/backtest/venue knobs instead of
// Binance/strategy ones.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Venue    VenueConfig    `yaml:"venue"`
	Sync     SyncConfig     `yaml:"sync"`
	Executor ExecutorConfig `yaml:"executor"`
	Live     LiveConfig     `yaml:"live"`
	Backtest BacktestConfig `yaml:"backtest"`
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
}

// VenueConfig holds the signed REST/WS endpoint and credentials. Keys are
// expected to come from the environment (.env, loaded by cmd/*/main.go
// before Load), never committed to the YAML file.
type VenueConfig struct {
	RESTBaseURL string `yaml:"restBaseUrl"`
	WSURL       string `yaml:"wsUrl"`
	Key         string `yaml:"-"`
	Secret      string `yaml:"-"`
	Passphrase  string `yaml:"-"`
}

// SyncConfig controls the sync process's backfill/live behavior.
type SyncConfig struct {
	Mode              string        `yaml:"mode"` // "backfill" | "live" | "full"
	Reach             time.Duration `yaml:"reach"`
	Lookback          time.Duration `yaml:"lookback"`
	ResyncInterval    time.Duration `yaml:"resyncInterval"`
	RestartInterval   time.Duration `yaml:"restartInterval"`
	BatchSize         int           `yaml:"batchSize"`
	APIErrorMaxTrials int           `yaml:"apiErrorMaxTrials"`
	APIErrorCooldown  time.Duration `yaml:"apiErrorCooldown"`
	TickChannel       string        `yaml:"tickChannel"`
	HeartbeatSeconds  int           `yaml:"heartbeatSeconds"`
}

// ExecutorConfig controls the live trade executor.
type ExecutorConfig struct {
	ResyncInterval  time.Duration `yaml:"resyncInterval"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// LiveConfig controls the live process supervisor.
type LiveConfig struct {
	RestartInterval   time.Duration `yaml:"restartInterval"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
	SyncUpdateTimeout time.Duration `yaml:"syncUpdateTimeout"`
	FleetInterval     time.Duration `yaml:"fleetInterval"`
	CancelOnShutdown  bool          `yaml:"cancelOnShutdown"`
}

// BacktestConfig controls a historical replay run.
type BacktestConfig struct {
	Step                  time.Duration `yaml:"step"`
	ConsolidatorWindowCap int           `yaml:"consolidatorWindowCap"`
}

// DatabaseConfig points at the SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// APIConfig controls the status/control HTTP surface.
type APIConfig struct {
	Port        string   `yaml:"port"`
	CORSOrigins []string `yaml:"corsOrigins"`
}

// Load reads and parses a YAML config file, applying defaults to any
// field left zero-valued.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// DefaultConfig returns an all-defaults configuration for environments
// with no config file.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Venue.RESTBaseURL == "" {
		cfg.Venue.RESTBaseURL = "https://api.lnmarkets.com"
	}
	if cfg.Venue.WSURL == "" {
		cfg.Venue.WSURL = "wss://api.lnmarkets.com"
	}

	if cfg.Sync.Mode == "" {
		cfg.Sync.Mode = "full"
	}
	if cfg.Sync.Reach == 0 {
		cfg.Sync.Reach = 2 * time.Hour
	}
	if cfg.Sync.ResyncInterval == 0 {
		cfg.Sync.ResyncInterval = time.Minute
	}
	if cfg.Sync.RestartInterval == 0 {
		cfg.Sync.RestartInterval = 5 * time.Second
	}
	if cfg.Sync.BatchSize == 0 {
		cfg.Sync.BatchSize = 100
	}
	if cfg.Sync.APIErrorMaxTrials == 0 {
		cfg.Sync.APIErrorMaxTrials = 3
	}
	if cfg.Sync.APIErrorCooldown == 0 {
		cfg.Sync.APIErrorCooldown = 2 * time.Second
	}
	if cfg.Sync.TickChannel == "" {
		cfg.Sync.TickChannel = "futures:btc_usd:last-price"
	}
	if cfg.Sync.HeartbeatSeconds == 0 {
		cfg.Sync.HeartbeatSeconds = 5
	}

	if cfg.Executor.ResyncInterval == 0 {
		cfg.Executor.ResyncInterval = 10 * time.Second
	}
	if cfg.Executor.ShutdownTimeout == 0 {
		cfg.Executor.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Live.RestartInterval == 0 {
		cfg.Live.RestartInterval = 5 * time.Second
	}
	if cfg.Live.ShutdownTimeout == 0 {
		cfg.Live.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Live.SyncUpdateTimeout == 0 {
		cfg.Live.SyncUpdateTimeout = 5 * time.Second
	}
	if cfg.Live.FleetInterval == 0 {
		cfg.Live.FleetInterval = time.Second
	}

	if cfg.Backtest.Step == 0 {
		cfg.Backtest.Step = time.Second
	}
	if cfg.Backtest.ConsolidatorWindowCap == 0 {
		cfg.Backtest.ConsolidatorWindowCap = 1000
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/lnm.db"
	}

	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if len(cfg.API.CORSOrigins) == 0 {
		cfg.API.CORSOrigins = []string{"*"}
	}
}

// Save writes the configuration back out as YAML (credentials excluded,
// since VenueConfig.Key/Secret/Passphrase are yaml:"-").
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// SQLiteDB wraps the shared connection to the candle/tick/funding/trade
// store. SQLite only tolerates one writer at a time, so the pool is capped
// at a single connection, same as the teacher's trading data store.
type SQLiteDB struct {
	db *sql.DB
}

// OpenSQLiteDB opens (creating if needed) the SQLite file at path and runs
// migrations.
func OpenSQLiteDB(path string) (*SQLiteDB, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteDB{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", path).Msg("sqlite store opened")
	return s, nil
}

func (s *SQLiteDB) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS candles (
			time_unix INTEGER PRIMARY KEY,
			open_half_units INTEGER NOT NULL,
			high_half_units INTEGER NOT NULL,
			low_half_units INTEGER NOT NULL,
			close_half_units INTEGER NOT NULL,
			volume REAL NOT NULL,
			gap_flag INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_candles_gap_flag ON candles(gap_flag)`,
		`CREATE TABLE IF NOT EXISTS ticks (
			time_unix_nano INTEGER PRIMARY KEY,
			last_price_half_units INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS funding_settlements (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			time_unix INTEGER NOT NULL UNIQUE,
			fixing_price_half_units INTEGER NOT NULL,
			funding_rate REAL NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			side INTEGER NOT NULL,
			execution_type INTEGER NOT NULL,
			quantity INTEGER NOT NULL,
			margin INTEGER NOT NULL,
			leverage REAL NOT NULL,
			entry_price_half_units INTEGER NOT NULL,
			liquidation_price_half_units INTEGER NOT NULL,
			stoploss_half_units INTEGER,
			takeprofit_half_units INTEGER,
			exit_price_half_units INTEGER,
			opening_fee INTEGER NOT NULL,
			closing_fee INTEGER NOT NULL,
			maintenance_margin INTEGER NOT NULL,
			creation_ts INTEGER NOT NULL,
			filled_ts INTEGER,
			closed_ts INTEGER,
			status INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec migration %q: %w", stmt, err)
		}
	}
	return nil
}

// DBStats reports basic pool and row-count statistics, used by status
// tooling.
type DBStats struct {
	OpenConnections int
	CandleCount     int64
	TradeCount      int64
}

// Stats returns current database statistics.
func (s *SQLiteDB) Stats() (*DBStats, error) {
	stats := s.db.Stats()
	out := &DBStats{OpenConnections: stats.OpenConnections}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM candles`).Scan(&out.CandleCount); err != nil {
		return nil, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM trades`).Scan(&out.TradeCount); err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the underlying connection.
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

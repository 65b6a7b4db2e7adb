package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lnm-trading/agent/internal/lnm"
)

// SQLiteCandleRepository is the SQLite-backed CandleRepository.
type SQLiteCandleRepository struct {
	db *SQLiteDB
}

func NewSQLiteCandleRepository(db *SQLiteDB) *SQLiteCandleRepository {
	return &SQLiteCandleRepository{db: db}
}

func priceToHalfUnits(p lnm.Price) int64 {
	return int64(p.Float64() * 2)
}

func priceFromHalfUnits(h int64) lnm.Price {
	return lnm.ClampPrice(float64(h) / 2)
}

func (r *SQLiteCandleRepository) scanCandle(row *sql.Row) (*OhlcCandle, error) {
	var timeUnix int64
	var openH, highH, lowH, closeH int64
	var volume float64
	var gapFlag int
	if err := row.Scan(&timeUnix, &openH, &highH, &lowH, &closeH, &volume, &gapFlag); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &OhlcCandle{
		Time:    time.Unix(timeUnix, 0).UTC(),
		Open:    priceFromHalfUnits(openH),
		High:    priceFromHalfUnits(highH),
		Low:     priceFromHalfUnits(lowH),
		Close:   priceFromHalfUnits(closeH),
		Volume:  volume,
		GapFlag: gapFlag != 0,
	}, nil
}

const candleCols = `time_unix, open_half_units, high_half_units, low_half_units, close_half_units, volume, gap_flag`

func (r *SQLiteCandleRepository) GetEarliestStableCandle(ctx context.Context) (*OhlcCandle, error) {
	row := r.db.db.QueryRowContext(ctx, `SELECT `+candleCols+` FROM candles ORDER BY time_unix ASC LIMIT 1`)
	return r.scanCandle(row)
}

func (r *SQLiteCandleRepository) GetLatestStableCandle(ctx context.Context) (*OhlcCandle, error) {
	row := r.db.db.QueryRowContext(ctx, `SELECT `+candleCols+` FROM candles ORDER BY time_unix DESC LIMIT 1`)
	return r.scanCandle(row)
}

// GetGaps derives the ordered list of discontinuities by walking candle
// times in order and pairing each gap-flagged candle with the candle
// immediately before it.
func (r *SQLiteCandleRepository) GetGaps(ctx context.Context) ([]Gap, error) {
	rows, err := r.db.db.QueryContext(ctx, `SELECT time_unix, gap_flag FROM candles ORDER BY time_unix ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gaps []Gap
	var prevTime time.Time
	havePrev := false
	for rows.Next() {
		var timeUnix int64
		var gapFlag int
		if err := rows.Scan(&timeUnix, &gapFlag); err != nil {
			return nil, err
		}
		t := time.Unix(timeUnix, 0).UTC()
		if gapFlag != 0 && havePrev {
			gaps = append(gaps, Gap{From: prevTime, To: t})
		}
		prevTime = t
		havePrev = true
	}
	return gaps, rows.Err()
}

func (r *SQLiteCandleRepository) InsertBatch(ctx context.Context, candles []OhlcCandle, clearGapAt time.Time) error {
	tx, err := r.db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO candles (`+candleCols+`) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		gapFlag := 0
		if c.GapFlag {
			gapFlag = 1
		}
		if _, err := stmt.ExecContext(ctx, c.Time.Unix(), priceToHalfUnits(c.Open), priceToHalfUnits(c.High),
			priceToHalfUnits(c.Low), priceToHalfUnits(c.Close), c.Volume, gapFlag); err != nil {
			return fmt.Errorf("insert candle at %v: %w", c.Time, err)
		}
	}

	if !clearGapAt.IsZero() {
		prevMinute := clearGapAt.Add(-time.Minute).Unix()
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM candles WHERE time_unix = ?`, prevMinute).Scan(&exists); err != nil {
			return err
		}
		if exists > 0 {
			if _, err := tx.ExecContext(ctx, `UPDATE candles SET gap_flag = 0 WHERE time_unix = ?`, clearGapAt.Unix()); err != nil {
				return fmt.Errorf("clear gap flag at %v: %w", clearGapAt, err)
			}
		}
	}

	return tx.Commit()
}

func (r *SQLiteCandleRepository) GetRange(ctx context.Context, from, to time.Time) ([]OhlcCandle, error) {
	rows, err := r.db.db.QueryContext(ctx, `SELECT `+candleCols+` FROM candles WHERE time_unix >= ? AND time_unix <= ? ORDER BY time_unix ASC`,
		from.Unix(), to.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCandleRows(rows)
}

func (r *SQLiteCandleRepository) GetLast(ctx context.Context, n int) ([]OhlcCandle, error) {
	rows, err := r.db.db.QueryContext(ctx, `SELECT `+candleCols+` FROM candles ORDER BY time_unix DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	candles, err := scanCandleRows(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

func scanCandleRows(rows *sql.Rows) ([]OhlcCandle, error) {
	var out []OhlcCandle
	for rows.Next() {
		var timeUnix int64
		var openH, highH, lowH, closeH int64
		var volume float64
		var gapFlag int
		if err := rows.Scan(&timeUnix, &openH, &highH, &lowH, &closeH, &volume, &gapFlag); err != nil {
			return nil, err
		}
		out = append(out, OhlcCandle{
			Time:    time.Unix(timeUnix, 0).UTC(),
			Open:    priceFromHalfUnits(openH),
			High:    priceFromHalfUnits(highH),
			Low:     priceFromHalfUnits(lowH),
			Close:   priceFromHalfUnits(closeH),
			Volume:  volume,
			GapFlag: gapFlag != 0,
		})
	}
	return out, rows.Err()
}

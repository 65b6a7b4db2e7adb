package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lnm-trading/agent/internal/lnmtime"
)

// SQLiteFundingSettlementRepository is the SQLite-backed
// FundingSettlementRepository.
type SQLiteFundingSettlementRepository struct {
	db *SQLiteDB
}

func NewSQLiteFundingSettlementRepository(db *SQLiteDB) *SQLiteFundingSettlementRepository {
	return &SQLiteFundingSettlementRepository{db: db}
}

func (r *SQLiteFundingSettlementRepository) Insert(ctx context.Context, s FundingSettlement) error {
	_, err := r.db.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO funding_settlements (time_unix, fixing_price_half_units, funding_rate) VALUES (?, ?, ?)`,
		s.Time.Unix(), priceToHalfUnits(s.FixingPrice), s.FundingRate)
	return err
}

func (r *SQLiteFundingSettlementRepository) scanOne(row *sql.Row) (*FundingSettlement, error) {
	var id, timeUnix int64
	var priceH int64
	var rate float64
	if err := row.Scan(&id, &timeUnix, &priceH, &rate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &FundingSettlement{
		ID:          id,
		Time:        time.Unix(timeUnix, 0).UTC(),
		FixingPrice: priceFromHalfUnits(priceH),
		FundingRate: rate,
	}, nil
}

const fundingCols = `id, time_unix, fixing_price_half_units, funding_rate`

func (r *SQLiteFundingSettlementRepository) GetEarliest(ctx context.Context) (*FundingSettlement, error) {
	row := r.db.db.QueryRowContext(ctx, `SELECT `+fundingCols+` FROM funding_settlements ORDER BY time_unix ASC LIMIT 1`)
	return r.scanOne(row)
}

func (r *SQLiteFundingSettlementRepository) GetLatest(ctx context.Context) (*FundingSettlement, error) {
	row := r.db.db.QueryRowContext(ctx, `SELECT `+fundingCols+` FROM funding_settlements ORDER BY time_unix DESC LIMIT 1`)
	return r.scanOne(row)
}

// GetMissingBetween walks the funding grid from the ceiling of from to the
// floor of to, stepping to the next grid instant each time, and returns
// every instant with no corresponding row. Dead zones between phases are
// skipped by construction, since CeilFundingSettlementTime snaps across
// them.
func (r *SQLiteFundingSettlementRepository) GetMissingBetween(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	existing := make(map[int64]bool)
	rows, err := r.db.db.QueryContext(ctx, `SELECT time_unix FROM funding_settlements WHERE time_unix >= ? AND time_unix <= ?`,
		from.Unix(), to.Unix())
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var t int64
		if err := rows.Scan(&t); err != nil {
			rows.Close()
			return nil, err
		}
		existing[t] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	var missing []time.Time
	cursor := lnmtime.CeilFundingSettlementTime(from)
	for !cursor.After(to) {
		if !existing[cursor.Unix()] {
			missing = append(missing, cursor)
		}
		next := nextGridInstant(cursor)
		if !next.After(cursor) {
			break
		}
		cursor = next
	}
	return missing, nil
}

// nextGridInstant returns the earliest grid instant strictly after t.
func nextGridInstant(t time.Time) time.Time {
	return lnmtime.CeilFundingSettlementTime(t.Add(time.Second))
}

func (r *SQLiteFundingSettlementRepository) GetRange(ctx context.Context, from, to time.Time) ([]FundingSettlement, error) {
	rows, err := r.db.db.QueryContext(ctx, `SELECT `+fundingCols+` FROM funding_settlements WHERE time_unix >= ? AND time_unix <= ? ORDER BY time_unix ASC`,
		from.Unix(), to.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FundingSettlement
	for rows.Next() {
		var id, timeUnix int64
		var priceH int64
		var rate float64
		if err := rows.Scan(&id, &timeUnix, &priceH, &rate); err != nil {
			return nil, err
		}
		out = append(out, FundingSettlement{
			ID:          id,
			Time:        time.Unix(timeUnix, 0).UTC(),
			FixingPrice: priceFromHalfUnits(priceH),
			FundingRate: rate,
		})
	}
	return out, rows.Err()
}

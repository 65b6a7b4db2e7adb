package storage

import (
	"context"
	"time"
)

// SQLiteTickRepository is the SQLite-backed TickRepository.
type SQLiteTickRepository struct {
	db *SQLiteDB
}

func NewSQLiteTickRepository(db *SQLiteDB) *SQLiteTickRepository {
	return &SQLiteTickRepository{db: db}
}

func (r *SQLiteTickRepository) Insert(ctx context.Context, tick PriceTick) error {
	_, err := r.db.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO ticks (time_unix_nano, last_price_half_units) VALUES (?, ?)`,
		tick.Time.UnixNano(), priceToHalfUnits(tick.LastPrice))
	return err
}

func (r *SQLiteTickRepository) PruneUpTo(ctx context.Context, cutoff time.Time) error {
	_, err := r.db.db.ExecContext(ctx, `DELETE FROM ticks WHERE time_unix_nano <= ?`, cutoff.UnixNano())
	return err
}

func (r *SQLiteTickRepository) GetRange(ctx context.Context, from, to time.Time) ([]PriceTick, error) {
	rows, err := r.db.db.QueryContext(ctx,
		`SELECT time_unix_nano, last_price_half_units FROM ticks WHERE time_unix_nano >= ? AND time_unix_nano <= ? ORDER BY time_unix_nano ASC`,
		from.UnixNano(), to.UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PriceTick
	for rows.Next() {
		var nanos int64
		var priceH int64
		if err := rows.Scan(&nanos, &priceH); err != nil {
			return nil, err
		}
		out = append(out, PriceTick{
			Time:      time.Unix(0, nanos).UTC(),
			LastPrice: priceFromHalfUnits(priceH),
		})
	}
	return out, rows.Err()
}

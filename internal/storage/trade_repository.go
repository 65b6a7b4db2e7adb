package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lnm-trading/agent/internal/lnm"
)

// SQLiteTradeRepository is the SQLite-backed TradeRepository, the live and
// simulated executors' shared journal contract.
type SQLiteTradeRepository struct {
	db *SQLiteDB
}

func NewSQLiteTradeRepository(db *SQLiteDB) *SQLiteTradeRepository {
	return &SQLiteTradeRepository{db: db}
}

func nullableHalfUnits(p *lnm.Price) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: priceToHalfUnits(*p), Valid: true}
}

func nullableUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func (r *SQLiteTradeRepository) Upsert(ctx context.Context, t Trade) error {
	_, err := r.db.db.ExecContext(ctx, `
		INSERT INTO trades (id, side, execution_type, quantity, margin, leverage, entry_price_half_units,
			liquidation_price_half_units, stoploss_half_units, takeprofit_half_units, exit_price_half_units,
			opening_fee, closing_fee, maintenance_margin, creation_ts, filled_ts, closed_ts, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			stoploss_half_units = excluded.stoploss_half_units,
			takeprofit_half_units = excluded.takeprofit_half_units,
			exit_price_half_units = excluded.exit_price_half_units,
			margin = excluded.margin,
			closing_fee = excluded.closing_fee,
			maintenance_margin = excluded.maintenance_margin,
			filled_ts = excluded.filled_ts,
			closed_ts = excluded.closed_ts,
			status = excluded.status
	`,
		t.ID, int(t.Side), int(t.ExecutionType), t.Quantity.Uint64(), t.Margin.Uint64(), t.Leverage.Float64(),
		priceToHalfUnits(t.EntryPrice), priceToHalfUnits(t.LiquidationPrice),
		nullableHalfUnits(t.Stoploss), nullableHalfUnits(t.Takeprofit), nullableHalfUnits(t.ExitPrice),
		t.OpeningFee.Uint64(), t.ClosingFee.Uint64(), t.MaintenanceMargin.Uint64(),
		t.CreationTS.Unix(), nullableUnix(t.FilledTS), nullableUnix(t.ClosedTS), int(t.Status))
	return err
}

func scanTradeRow(scan func(dest ...any) error) (*Trade, error) {
	var (
		id                                         string
		side, execType, status                     int
		quantity, margin                           uint64
		leverage                                   float64
		entryH, liqH                                int64
		stoplossH, takeprofitH, exitH               sql.NullInt64
		openingFee, closingFee, maintenanceMargin   uint64
		creationTS                                  int64
		filledTS, closedTS                          sql.NullInt64
	)
	if err := scan(&id, &side, &execType, &quantity, &margin, &leverage, &entryH, &liqH,
		&stoplossH, &takeprofitH, &exitH, &openingFee, &closingFee, &maintenanceMargin,
		&creationTS, &filledTS, &closedTS, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	q, _ := lnm.NewQuantity(quantity)
	m, _ := lnm.NewMargin(margin)
	l, _ := lnm.NewLeverage(leverage)
	openingFeeM, _ := lnm.NewMargin(orOne(openingFee))
	closingFeeM, _ := lnm.NewMargin(orOne(closingFee))
	maintenanceMarginM, _ := lnm.NewMargin(orOne(maintenanceMargin))

	trade := &Trade{
		ID:                id,
		Side:              lnm.TradeSide(side),
		ExecutionType:     lnm.ExecutionType(execType),
		Quantity:          q,
		Margin:            m,
		Leverage:          l,
		EntryPrice:        priceFromHalfUnits(entryH),
		LiquidationPrice:  priceFromHalfUnits(liqH),
		OpeningFee:        openingFeeM,
		ClosingFee:        closingFeeM,
		MaintenanceMargin: maintenanceMarginM,
		CreationTS:        time.Unix(creationTS, 0).UTC(),
		Status:            lnm.TradeStatus(status),
	}
	if stoplossH.Valid {
		p := priceFromHalfUnits(stoplossH.Int64)
		trade.Stoploss = &p
	}
	if takeprofitH.Valid {
		p := priceFromHalfUnits(takeprofitH.Int64)
		trade.Takeprofit = &p
	}
	if exitH.Valid {
		p := priceFromHalfUnits(exitH.Int64)
		trade.ExitPrice = &p
	}
	if filledTS.Valid {
		t := time.Unix(filledTS.Int64, 0).UTC()
		trade.FilledTS = &t
	}
	if closedTS.Valid {
		t := time.Unix(closedTS.Int64, 0).UTC()
		trade.ClosedTS = &t
	}
	return trade, nil
}

// orOne guards against a zero fee/margin value failing lnm's MIN=1
// validation; fees can legitimately be zero pre-close, represented here as
// the smallest valid unit since the domain type has no zero variant.
func orOne(v uint64) uint64 {
	if v == 0 {
		return 1
	}
	return v
}

const tradeCols = `id, side, execution_type, quantity, margin, leverage, entry_price_half_units, liquidation_price_half_units,
	stoploss_half_units, takeprofit_half_units, exit_price_half_units, opening_fee, closing_fee, maintenance_margin,
	creation_ts, filled_ts, closed_ts, status`

func (r *SQLiteTradeRepository) GetByID(ctx context.Context, id string) (*Trade, error) {
	row := r.db.db.QueryRowContext(ctx, `SELECT `+tradeCols+` FROM trades WHERE id = ?`, id)
	return scanTradeRow(row.Scan)
}

func (r *SQLiteTradeRepository) GetRunning(ctx context.Context) ([]Trade, error) {
	rows, err := r.db.db.QueryContext(ctx, `SELECT `+tradeCols+` FROM trades WHERE status = ? ORDER BY creation_ts ASC`, int(lnm.StatusRunning))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrades(rows)
}

func (r *SQLiteTradeRepository) GetClosed(ctx context.Context, limit int) ([]Trade, error) {
	rows, err := r.db.db.QueryContext(ctx, `SELECT `+tradeCols+` FROM trades WHERE status = ? ORDER BY closed_ts DESC LIMIT ?`,
		int(lnm.StatusClosed), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrades(rows)
}

func collectTrades(rows *sql.Rows) ([]Trade, error) {
	var out []Trade
	for rows.Next() {
		t, err := scanTradeRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		if t != nil {
			out = append(out, *t)
		}
	}
	return out, rows.Err()
}

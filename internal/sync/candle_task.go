package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lnm-trading/agent/internal/lnm"
	"github.com/lnm-trading/agent/internal/lnmrest"
	"github.com/lnm-trading/agent/internal/lnmtime"
	"github.com/lnm-trading/agent/internal/storage"
)

// ErrCandlePageInvalid is returned when a REST page fails per-page
// validation (non-minute-aligned, non-descending, duplicate, or
// irregular step).
var ErrCandlePageInvalid = errors.New("sync: candle page failed validation")

// BackfillCandlesOnce evaluates the current PriceHistoryState and, if a
// download is warranted, fetches and inserts exactly one page. It returns
// progressed=false when the history is already fully caught up for the
// given mode, so the caller can fall back to idling until the next resync.
func BackfillCandlesOnce(ctx context.Context, rest *lnmrest.Client, repo storage.CandleRepository, cfg Config, backfilling bool) (progressed bool, err error) {
	var state *PriceHistoryState
	if backfilling {
		state, err = EvaluateWithReach(ctx, repo, cfg.Reach)
	} else {
		state, err = Evaluate(ctx, repo)
	}
	if err != nil {
		return false, err
	}

	dr, err := state.NextDownloadRange(backfilling)
	if err != nil {
		return false, err
	}
	now := time.Now().UTC()
	if dr.From != nil && dr.To == nil && !dr.From.Before(lnmtime.FloorMinute(now).Add(-time.Minute)) {
		// Appending past the end, and the last complete minute is already
		// stored: nothing newer to fetch.
		return false, nil
	}

	to := now
	if dr.To != nil {
		to = *dr.To
	}

	from := now.Add(-time.Duration(cfg.BatchSize) * time.Minute)
	if dr.From != nil {
		from = *dr.From
	} else if backfilling {
		reachTime := now.Add(-cfg.Reach)
		if from.Before(reachTime) {
			from = reachTime
		}
	}

	expectedMinutes := int(to.Sub(from).Minutes())
	limit := expectedMinutes
	if limit < 3 {
		limit = 3
	}
	if limit > cfg.BatchSize {
		limit = cfg.BatchSize
	}

	var pages []lnmrest.CandlePage
	err = lnmrest.WithRetry(ctx, cfg.APIErrorMaxTrials, cfg.APIErrorCooldown, func() error {
		var reqErr error
		pages, reqErr = rest.GetCandles(ctx, "1min", to, limit)
		return reqErr
	})
	if err != nil {
		return false, fmt.Errorf("get candles: %w", err)
	}

	candles, err := validateAndConvertPage(pages)
	if err != nil {
		return false, err
	}

	var clearGapAt time.Time
	if dr.To != nil {
		clearGapAt = *dr.To
	}

	if len(candles) == 0 {
		if dr.From != nil && dr.To != nil {
			// Empty page for a known gap range: nothing the venue can give
			// us, clear the flag so the bookkeeping matches reality.
			if err := repo.InsertBatch(ctx, nil, clearGapAt); err != nil {
				return false, fmt.Errorf("clear unfillable gap: %w", err)
			}
		}
		return true, nil
	}

	var kept []storage.OhlcCandle
	for _, c := range candles {
		if !c.Time.After(from) {
			continue
		}
		kept = append(kept, c)
	}

	if err := repo.InsertBatch(ctx, kept, clearGapAt); err != nil {
		return false, fmt.Errorf("insert candle batch: %w", err)
	}
	return true, nil
}

// validateAndConvertPage enforces minute alignment and strict 1-minute
// descending order with no duplicates, then converts to the storage
// model.
func validateAndConvertPage(pages []lnmrest.CandlePage) ([]storage.OhlcCandle, error) {
	out := make([]storage.OhlcCandle, 0, len(pages))
	var prevTime time.Time
	for i, p := range pages {
		t := time.UnixMilli(p.Time).UTC()
		if !lnmtime.IsRoundMinute(t) {
			return nil, fmt.Errorf("%w: candle at %v not minute-aligned", ErrCandlePageInvalid, t)
		}
		if i > 0 {
			if !t.Before(prevTime) {
				return nil, fmt.Errorf("%w: candle at %v not strictly descending from %v", ErrCandlePageInvalid, t, prevTime)
			}
			if prevTime.Sub(t) != time.Minute {
				return nil, fmt.Errorf("%w: gap of %v between %v and %v within one page", ErrCandlePageInvalid, prevTime.Sub(t), prevTime, t)
			}
		}
		prevTime = t

		open, err := lnm.NewPrice(p.Open)
		if err != nil {
			return nil, fmt.Errorf("%w: open price %v: %v", ErrCandlePageInvalid, p.Open, err)
		}
		high, err := lnm.NewPrice(p.High)
		if err != nil {
			return nil, fmt.Errorf("%w: high price %v: %v", ErrCandlePageInvalid, p.High, err)
		}
		low, err := lnm.NewPrice(p.Low)
		if err != nil {
			return nil, fmt.Errorf("%w: low price %v: %v", ErrCandlePageInvalid, p.Low, err)
		}
		close, err := lnm.NewPrice(p.Close)
		if err != nil {
			return nil, fmt.Errorf("%w: close price %v: %v", ErrCandlePageInvalid, p.Close, err)
		}

		out = append(out, storage.OhlcCandle{
			Time:   t,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  close,
			Volume: p.Volume,
		})
	}

	// Re-check the earliest candle's alignment explicitly, matching the
	// extra caution the backfill algorithm calls for.
	if len(out) > 0 && !lnmtime.IsRoundMinute(out[len(out)-1].Time) {
		return nil, fmt.Errorf("%w: earliest candle misaligned on re-check", ErrCandlePageInvalid)
	}

	return out, nil
}

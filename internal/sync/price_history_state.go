// Package sync implements the data-sync engine: a supervised WS+REST
// pipeline that mirrors price history, funding settlement history, and
// real-time ticks into the storage layer.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lnm-trading/agent/internal/storage"
)

// ErrUnreachableGap is returned when a known gap, or the start of history,
// lies before the configured reach horizon: it can never be backfilled
// because the venue won't serve candles that old.
var ErrUnreachableGap = errors.New("sync: gap lies before reach horizon, can't be backfilled")

// ErrReachNotSet is returned by HasGaps when the state was built without a
// reach horizon (via Evaluate instead of EvaluateWithReach).
var ErrReachNotSet = errors.New("sync: reach horizon not set on this state")

// ErrInvalidRange is returned by IsRangeAvailable for a non-positive range.
var ErrInvalidRange = errors.New("sync: range_from must be before range_to")

type bound struct {
	start, end time.Time
}

// PriceHistoryState is a point-in-time snapshot of what candle history is
// present, evaluated fresh from the repository on each use.
type PriceHistoryState struct {
	reachTime *time.Time
	bounds    *bound
	gaps      []storage.Gap
}

// Evaluate builds a PriceHistoryState with no reach horizon: used by live
// mode, which only cares about gaps and bounds, not how far back they
// should reach.
func Evaluate(ctx context.Context, candles storage.CandleRepository) (*PriceHistoryState, error) {
	return newState(ctx, candles, nil)
}

// EvaluateWithReach builds a PriceHistoryState against a reach horizon:
// used by backfill mode, which must know whether history needs to be
// extended further into the past.
func EvaluateWithReach(ctx context.Context, candles storage.CandleRepository, reach time.Duration) (*PriceHistoryState, error) {
	reachTime := time.Now().Add(-reach)
	return newState(ctx, candles, &reachTime)
}

func newState(ctx context.Context, candles storage.CandleRepository, reachTime *time.Time) (*PriceHistoryState, error) {
	earliest, err := candles.GetEarliestStableCandle(ctx)
	if err != nil {
		return nil, fmt.Errorf("get earliest stable candle: %w", err)
	}
	if earliest == nil {
		return &PriceHistoryState{reachTime: reachTime}, nil
	}

	latest, err := candles.GetLatestStableCandle(ctx)
	if err != nil {
		return nil, fmt.Errorf("get latest stable candle: %w", err)
	}

	if earliest.Time.Equal(latest.Time) {
		if reachTime != nil && earliest.Time.Before(*reachTime) {
			return nil, fmt.Errorf("%w: gap at %v, reach %v", ErrUnreachableGap, earliest.Time, *reachTime)
		}
		return &PriceHistoryState{
			reachTime: reachTime,
			bounds:    &bound{start: earliest.Time, end: earliest.Time},
		}, nil
	}

	gaps, err := candles.GetGaps(ctx)
	if err != nil {
		return nil, fmt.Errorf("get gaps: %w", err)
	}

	if len(gaps) > 0 && reachTime != nil && gaps[0].From.Before(*reachTime) {
		return nil, fmt.Errorf("%w: gap at %v, reach %v", ErrUnreachableGap, gaps[0].From, *reachTime)
	}

	return &PriceHistoryState{
		reachTime: reachTime,
		bounds:    &bound{start: earliest.Time, end: latest.Time},
		gaps:      gaps,
	}, nil
}

// Bounds returns the (earliest, latest) stable candle times, or false if
// the store is empty.
func (s *PriceHistoryState) Bounds() (from, to time.Time, ok bool) {
	if s.bounds == nil {
		return time.Time{}, time.Time{}, false
	}
	return s.bounds.start, s.bounds.end, true
}

func (s *PriceHistoryState) Gaps() []storage.Gap { return s.gaps }

// IsRangeAvailable reports whether [from, to) is fully covered by
// contiguous, gap-free history.
func (s *PriceHistoryState) IsRangeAvailable(from, to time.Time) (bool, error) {
	if !from.Before(to) {
		return false, fmt.Errorf("%w: %v, %v", ErrInvalidRange, from, to)
	}
	if s.bounds == nil {
		return false, nil
	}
	withinBounds := !s.bounds.start.After(from) && !s.bounds.end.Before(to)
	withoutGaps := true
	for _, g := range s.gaps {
		if from.Before(g.To) && g.From.Before(to) {
			withoutGaps = false
			break
		}
	}
	return withinBounds && withoutGaps, nil
}

// DownloadRange is the next page to request: From/To are nil when open
// ended (extend bound-start with no upper limit, or append from bound-end
// with no lower limit).
type DownloadRange struct {
	From, To *time.Time
}

// NextDownloadRange picks the next page to fetch. When backfilling, gaps
// are prioritized oldest-first, then extending the start of history
// toward reach, then appending past the end. When not backfilling (live
// catch-up), the newest gap is prioritized, then appending past the end.
func (s *PriceHistoryState) NextDownloadRange(backfilling bool) (*DownloadRange, error) {
	if s.bounds == nil {
		return &DownloadRange{}, nil
	}

	if s.reachTime != nil && s.bounds.start.Equal(s.bounds.end) && s.bounds.start.Before(*s.reachTime) {
		return nil, fmt.Errorf("%w: gap at %v, reach %v", ErrUnreachableGap, s.bounds.start, *s.reachTime)
	}

	var prioritized *storage.Gap
	if len(s.gaps) > 0 {
		if backfilling {
			prioritized = &s.gaps[0]
		} else {
			prioritized = &s.gaps[len(s.gaps)-1]
		}
	}

	if prioritized != nil {
		if s.reachTime != nil && prioritized.From.Before(*s.reachTime) {
			return nil, fmt.Errorf("%w: gap at %v, reach %v", ErrUnreachableGap, prioritized.From, *s.reachTime)
		}
		from, to := prioritized.From, prioritized.To
		return &DownloadRange{From: &from, To: &to}, nil
	}

	if backfilling && s.reachTime != nil && s.bounds.start.After(*s.reachTime) {
		to := s.bounds.start
		return &DownloadRange{To: &to}, nil
	}

	from := s.bounds.end
	return &DownloadRange{From: &from}, nil
}

// TailContinuousDuration returns how far back from the end of history the
// most recent contiguous run of candles extends, or false if the store is
// empty.
func (s *PriceHistoryState) TailContinuousDuration() (time.Duration, bool) {
	if s.bounds == nil {
		return 0, false
	}
	if len(s.gaps) > 0 {
		return s.bounds.end.Sub(s.gaps[len(s.gaps)-1].To), true
	}
	return s.bounds.end.Sub(s.bounds.start), true
}

// HasGaps reports whether the store needs backfilling: an empty store,
// any recorded gap, or history not yet reaching the configured horizon all
// count. Requires a reach horizon (EvaluateWithReach).
func (s *PriceHistoryState) HasGaps() (bool, error) {
	if s.reachTime == nil {
		return false, ErrReachNotSet
	}
	if s.bounds == nil {
		return true, nil
	}
	return len(s.gaps) > 0 || s.reachTime.Before(s.bounds.start), nil
}

func evalMissingHours(current, target time.Time) string {
	missingMinutes := current.Sub(target).Minutes()
	missingHours := missingMinutes / 60
	if missingHours <= 0 {
		return "Ok"
	}
	return fmt.Sprintf("missing %.2f hours", missingHours)
}

// Summary renders a human-readable report of reach, bounds, and gaps, for
// operator status output.
func (s *PriceHistoryState) Summary() string {
	var out string
	if s.reachTime != nil {
		out += fmt.Sprintf("reach: %s\n", s.reachTime.Format(time.RFC3339))
	}

	if s.bounds == nil {
		out += "bounds: database is empty"
		return out
	}

	out += "bounds:\n"
	if s.reachTime != nil {
		out += fmt.Sprintf("  start: %s (%s)\n", s.bounds.start.Format(time.RFC3339), evalMissingHours(s.bounds.start, *s.reachTime))
	} else {
		out += fmt.Sprintf("  start: %s\n", s.bounds.start.Format(time.RFC3339))
	}
	out += fmt.Sprintf("  end: %s (%s)\n", s.bounds.end.Format(time.RFC3339), evalMissingHours(time.Now(), s.bounds.end))

	if len(s.gaps) == 0 {
		out += "gaps: no gaps\n"
		return out
	}
	out += "gaps:\n"
	for i, g := range s.gaps {
		gapHours := g.To.Sub(g.From).Minutes() / 60
		out += fmt.Sprintf("  - gap %d (missing %.2f hours):\n", i+1, gapHours)
		out += fmt.Sprintf("      from: %s\n", g.From.Format(time.RFC3339))
		if i == len(s.gaps)-1 {
			out += fmt.Sprintf("      to: %s", g.To.Format(time.RFC3339))
		} else {
			out += fmt.Sprintf("      to: %s\n", g.To.Format(time.RFC3339))
		}
	}
	return out
}

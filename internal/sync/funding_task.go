package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/lnm-trading/agent/internal/lnm"
	"github.com/lnm-trading/agent/internal/lnmrest"
	"github.com/lnm-trading/agent/internal/lnmtime"
	"github.com/lnm-trading/agent/internal/storage"
)

// fundingCursor tracks, per backfill pass, the latest instant up to which
// missing entries have proven unfillable, so the scan skips them instead of
// looping on them; it resets whenever a fresh pass starts from persisted
// bounds.
type fundingCursor struct {
	excludeMissingAfter *time.Time
}

// BackfillFundingOnce downloads the oldest missing funding settlement in
// [reachTime, now], or advances the exclude cursor past it if the venue
// has nothing for that instant. Returns progressed=false once nothing is
// missing (or everything missing is excluded).
func BackfillFundingOnce(ctx context.Context, rest *lnmrest.Client, repo storage.FundingSettlementRepository, cfg Config, cursor *fundingCursor) (progressed bool, err error) {
	now := time.Now().UTC()
	from := lnmtime.CeilFundingSettlementTime(now.Add(-cfg.Reach))
	to := lnmtime.FloorFundingSettlementTime(now)

	missing, err := repo.GetMissingBetween(ctx, from, to)
	if err != nil {
		return false, fmt.Errorf("get missing funding settlements: %w", err)
	}
	if cursor.excludeMissingAfter != nil {
		filtered := missing[:0]
		for _, m := range missing {
			if m.After(*cursor.excludeMissingAfter) {
				filtered = append(filtered, m)
			}
		}
		missing = filtered
	}
	if len(missing) == 0 {
		return false, nil
	}

	target := missing[0]
	var pages []lnmrest.FundingSettlementPage
	err = lnmrest.WithRetry(ctx, cfg.APIErrorMaxTrials, cfg.APIErrorCooldown, func() error {
		var reqErr error
		pages, reqErr = rest.GetFundingSettlements(ctx, target, target, 1)
		return reqErr
	})
	if err != nil {
		return false, fmt.Errorf("get funding settlements: %w", err)
	}

	if len(pages) == 0 {
		// The venue has nothing for this instant; stop retrying it this
		// pass by excluding everything up to it.
		cursor.excludeMissingAfter = &target
		return true, nil
	}

	for _, p := range pages {
		t := time.UnixMilli(p.Time).UTC()
		price, err := lnm.NewPrice(p.FixingPrice)
		if err != nil {
			return false, fmt.Errorf("funding settlement fixing price %v: %w", p.FixingPrice, err)
		}
		if err := repo.Insert(ctx, storage.FundingSettlement{Time: t, FixingPrice: price, FundingRate: p.Rate}); err != nil {
			return false, fmt.Errorf("insert funding settlement at %v: %w", t, err)
		}
	}

	return true, nil
}

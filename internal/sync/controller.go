package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lnm-trading/agent/internal/lnmrest"
	"github.com/lnm-trading/agent/internal/lnmws"
	"github.com/lnm-trading/agent/internal/metrics"
	"github.com/lnm-trading/agent/internal/storage"
)

// Controller is the supervised sync process: it owns SyncStatus and drives
// the candle/funding backfill tasks and the live tick stream according to
// Config.Mode, restarting the owning subsystem after a recoverable
// failure.
type Controller struct {
	cfg     Config
	rest    *lnmrest.Client
	candles storage.CandleRepository
	ticks   storage.TickRepository
	funding storage.FundingSettlementRepository
	log     zerolog.Logger

	mu     sync.RWMutex
	status Status

	statusOut chan Status
	tickOut   chan storage.PriceTick
}

func NewController(cfg Config, rest *lnmrest.Client, candles storage.CandleRepository, ticks storage.TickRepository, funding storage.FundingSettlementRepository, log zerolog.Logger) *Controller {
	return &Controller{
		cfg:       cfg,
		rest:      rest,
		candles:   candles,
		ticks:     ticks,
		funding:   funding,
		log:       log,
		status:    notSynced(NotInitiated),
		statusOut: make(chan Status, 16),
		tickOut:   make(chan storage.PriceTick, 256),
	}
}

func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// StatusUpdates streams every status transition; slow consumers drop
// updates rather than stall the controller.
func (c *Controller) StatusUpdates() <-chan Status { return c.statusOut }

// Ticks streams persisted live ticks.
func (c *Controller) Ticks() <-chan storage.PriceTick { return c.tickOut }

func (c *Controller) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
	metrics.SyncStatusTransitions.WithLabelValues(s.Kind.String()).Inc()
	select {
	case c.statusOut <- s:
	default:
		c.log.Warn().Str("status", s.String()).Msg("dropping status update, no receiver")
	}
}

// isFatal marks errors that terminate the controller outright rather than
// trigger a restart: a structurally unreachable gap that no amount of
// retrying will fix. Context cancellation is handled by Run as a clean
// shutdown.
func isFatal(err error) bool {
	return errors.Is(err, ErrUnreachableGap)
}

// Run drives the supervised loop until ctx is canceled (clean shutdown) or
// a fatal error occurs.
func (c *Controller) Run(ctx context.Context) error {
	c.setStatus(notSynced(Starting))

	for {
		if ctx.Err() != nil {
			c.setStatus(shutdownInitiated())
			c.setStatus(shutdown())
			return nil
		}

		err := c.runOnce(ctx)
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) {
			c.setStatus(shutdownInitiated())
			c.setStatus(shutdown())
			return nil
		}
		if isFatal(err) {
			c.setStatus(terminated(err))
			return err
		}

		c.log.Warn().Err(err).Msg("sync subsystem failed, restarting")
		c.setStatus(notSynced(Failed))

		select {
		case <-time.After(c.cfg.RestartInterval):
		case <-ctx.Done():
			c.setStatus(shutdown())
			return nil
		}
		c.setStatus(notSynced(Restarting))
	}
}

// runOnce backfills to completion, marks Synced, then runs the live/resync
// loop for one pass until it fails or ctx ends.
func (c *Controller) runOnce(ctx context.Context) error {
	c.setStatus(notSynced(InProgress))

	backfilling := c.cfg.Mode == ModeBackfill || c.cfg.Mode == ModeFull
	if backfilling {
		if err := c.drainCandleBackfill(ctx, true); err != nil {
			return err
		}
		cursor := &fundingCursor{}
		if err := c.drainFundingBackfill(ctx, cursor); err != nil {
			return err
		}
	}

	c.setStatus(synced())

	switch c.cfg.Mode {
	case ModeBackfill:
		return c.waitResync(ctx)
	case ModeLive, ModeFull:
		return c.runLive(ctx)
	default:
		return fmt.Errorf("sync: unknown mode %v", c.cfg.Mode)
	}
}

func (c *Controller) drainCandleBackfill(ctx context.Context, backfilling bool) error {
	for {
		progressed, err := BackfillCandlesOnce(ctx, c.rest, c.candles, c.cfg, backfilling)
		if err != nil {
			return err
		}
		if !progressed {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Controller) drainFundingBackfill(ctx context.Context, cursor *fundingCursor) error {
	for {
		progressed, err := BackfillFundingOnce(ctx, c.rest, c.funding, c.cfg, cursor)
		if err != nil {
			return err
		}
		if !progressed {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Controller) waitResync(ctx context.Context) error {
	select {
	case <-time.After(c.cfg.ResyncInterval):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runLive connects the WS, starts the tick stream, and periodically
// resyncs history, returning on the first failure of either.
func (c *Controller) runLive(ctx context.Context) error {
	ws, err := lnmws.Connect(ctx, c.cfg.WSURL, c.log)
	if err != nil {
		return fmt.Errorf("connect ws: %w", err)
	}
	defer ws.Disconnect()

	errCh := make(chan error, 1)
	go func() {
		errCh <- RunTickStream(ctx, ws, c.ticks, c.cfg.TickChannel, c.tickOut)
	}()

	resync := time.NewTicker(c.cfg.ResyncInterval)
	defer resync.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			if err != nil {
				return err
			}
			return nil
		case <-resync.C:
			if err := c.drainCandleBackfill(ctx, false); err != nil {
				return err
			}
		}
	}
}

// Package live composes the sync process, signal evaluator fleet,
// operator, and live trade executor into the single recoverable state
// machine described by spec component I: startup ordering, a restart loop
// on recoverable failure, and ordered teardown on shutdown.
package live

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lnm-trading/agent/internal/execution"
	"github.com/lnm-trading/agent/internal/metrics"
	"github.com/lnm-trading/agent/internal/strategy"
	"github.com/lnm-trading/agent/internal/sync"
)

// Config holds the supervisor's restart/shutdown timing knobs.
type Config struct {
	RestartInterval time.Duration
	ShutdownTimeout time.Duration
	// FleetInterval is the outer-loop tick the evaluator fleet is stepped
	// on; spec §4.5 fixes this at 1 second for live mode.
	FleetInterval time.Duration
	// CancelOnShutdown makes teardown cancel outstanding orders via the
	// executor once the pipeline context has been canceled.
	CancelOnShutdown bool
	// SyncUpdateTimeout bounds how long startup waits for the next sync
	// status update before treating the sync process as stalled.
	SyncUpdateTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		RestartInterval:   5 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		FleetInterval:     time.Second,
		CancelOnShutdown:  true,
		SyncUpdateTimeout: 5 * time.Second,
	}
}

// Operator is either a strategy.SignalOperator or a strategy.RawOperator;
// the supervisor type-switches on it when wiring the fleet.
type Operator interface{}

// Supervisor assembles the sync controller, the signal evaluator fleet, a
// user-supplied operator, and the live executor into one managed process.
type Supervisor struct {
	cfg      Config
	syncCtl  *sync.Controller
	fleet    *strategy.Fleet
	operator Operator
	executor *execution.LiveExecutor
	log      zerolog.Logger

	out *Broadcaster[Status]
}

func NewSupervisor(cfg Config, syncCtl *sync.Controller, fleet *strategy.Fleet, operator Operator, executor *execution.LiveExecutor, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		syncCtl:  syncCtl,
		fleet:    fleet,
		operator: operator,
		executor: executor,
		log:      log,
		out:      NewBroadcaster[Status](),
	}
}

// Subscribe returns a channel of Status/Lagged updates.
func (s *Supervisor) Subscribe(buffer int) (<-chan any, func()) {
	return s.out.Subscribe(buffer)
}

func (s *Supervisor) publish(st Status) {
	metrics.LiveStatusTransitions.WithLabelValues(st.Kind.String()).Inc()
	s.out.Publish(st)
}

// Run drives the supervised loop until ctx is canceled (clean shutdown) or
// a fatal error occurs, restarting the composed pipeline after every
// recoverable failure.
func (s *Supervisor) Run(ctx context.Context) error {
	s.publish(Status{Kind: KindStarting})

	for {
		if ctx.Err() != nil {
			s.publish(Status{Kind: KindShutdownInitiated})
			s.publish(Status{Kind: KindShutdown})
			return nil
		}

		err := s.runOnce(ctx)
		if err == nil {
			s.publish(Status{Kind: KindShutdownInitiated})
			s.publish(Status{Kind: KindShutdown})
			return nil
		}
		if errors.Is(err, context.Canceled) {
			s.publish(Status{Kind: KindShutdownInitiated})
			s.publish(Status{Kind: KindShutdown})
			return nil
		}
		if isFatal(err) {
			s.publish(Status{Kind: KindTerminated, Err: err})
			return err
		}

		s.log.Warn().Err(err).Msg("live pipeline failed, restarting")
		s.publish(Status{Kind: KindFailed, Err: err})

		select {
		case <-time.After(s.cfg.RestartInterval):
		case <-ctx.Done():
			s.publish(Status{Kind: KindShutdown})
			return nil
		}
		s.publish(Status{Kind: KindRestarting})
	}
}

func isFatal(err error) bool {
	return errors.Is(err, sync.ErrUnreachableGap)
}

// runOnce starts sync, waits for Synced, launches the executor, waits for
// Ready, wires the operator, then iterates the fleet until something
// fails or ctx ends.
func (s *Supervisor) runOnce(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	syncErrCh := make(chan error, 1)
	go func() { syncErrCh <- s.syncCtl.Run(runCtx) }()

	if err := s.waitForSynced(runCtx, syncErrCh); err != nil {
		return err
	}

	execErrCh := make(chan error, 1)
	go func() { execErrCh <- s.executor.Run(runCtx, s.syncCtl.StatusUpdates()) }()

	if err := s.waitForReady(runCtx, execErrCh); err != nil {
		return err
	}

	s.publish(Status{Kind: KindRunning})

	pipelineErr := s.iterate(runCtx)

	cancel()
	s.teardown(ctx)

	if pipelineErr != nil {
		return pipelineErr
	}
	select {
	case err := <-syncErrCh:
		return err
	case err := <-execErrCh:
		return err
	default:
		return nil
	}
}

func (s *Supervisor) waitForSynced(ctx context.Context, syncErrCh <-chan error) error {
	updates := s.syncCtl.StatusUpdates()
	timeout := s.cfg.SyncUpdateTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("live: no sync status update within %s", timeout)
		case err := <-syncErrCh:
			if err != nil {
				return fmt.Errorf("live: sync failed during startup: %w", err)
			}
			return fmt.Errorf("live: sync exited before becoming synced")
		case st := <-updates:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(timeout)
			if st.Kind == sync.KindSynced {
				return nil
			}
			if st.Kind == sync.KindNotSynced {
				s.publish(Status{Kind: KindWaitingForSync, SyncReason: st.Reason})
			}
			if st.Kind == sync.KindTerminated {
				return fmt.Errorf("live: sync terminated during startup: %w", st.Fatal)
			}
		}
	}
}

func (s *Supervisor) waitForReady(ctx context.Context, execErrCh <-chan error) error {
	updates := s.executor.Updates()
	for {
		if s.executor.Readiness() == execution.ReadinessReady {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-execErrCh:
			if err != nil {
				return fmt.Errorf("live: executor failed during startup: %w", err)
			}
			return fmt.Errorf("live: executor exited before becoming ready")
		case u := <-updates:
			if u.Kind == execution.UpdateKindStatus {
				s.publish(Status{Kind: KindWaitingTradeExecutor, ExecReason: u.Readiness})
			}
		}
	}
}

// iterate wires the operator to the fleet/executor and steps the fleet on
// FleetInterval until ctx ends or the executor's update stream closes.
// Operator errors are logged and do not stop the loop.
func (s *Supervisor) iterate(ctx context.Context) error {
	signalOp, isSignalOp := s.operator.(strategy.SignalOperator)
	rawOp, isRawOp := s.operator.(strategy.RawOperator)

	ticker := time.NewTicker(s.cfg.FleetInterval)
	defer ticker.Stop()

	updates := s.executor.Updates()
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return fmt.Errorf("live: executor update stream closed unexpectedly")
			}
			_ = u
		case now := <-ticker.C:
			events := s.fleet.Step(now)
			if isSignalOp {
				for _, ev := range events {
					if err := signalOp.ProcessSignal(ev); err != nil {
						s.log.Warn().Str("evaluator", ev.Evaluator).Err(err).Msg("operator failed to process signal")
					}
				}
			}
			if isRawOp {
				if err := rawOp.Iterate(nil); err != nil {
					s.log.Warn().Err(err).Msg("raw operator iteration failed")
				}
			}
		}
	}
}

// teardown cancels outstanding orders via the executor when
// CancelOnShutdown is set; running positions are left open. runOnce calls
// it after canceling the pipeline context, so the sync controller and
// executor loops are already stopping when the orders are canceled. The
// call gets its own ShutdownTimeout deadline, detached from ctx's
// cancellation, since ctx is itself canceled on shutdown.
func (s *Supervisor) teardown(ctx context.Context) {
	downCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()

	if s.cfg.CancelOnShutdown {
		if err := s.executor.CancelAll(downCtx); err != nil {
			s.log.Warn().Err(err).Msg("cancel all failed during shutdown")
		}
	}
}

package live

import (
	"github.com/lnm-trading/agent/internal/execution"
	"github.com/lnm-trading/agent/internal/sync"
)

// Kind discriminates the LiveTradeStatus lattice the supervisor publishes.
type Kind int

const (
	KindNotInitiated Kind = iota
	KindStarting
	KindWaitingForSync
	KindWaitingForSignal
	KindWaitingTradeExecutor
	KindRunning
	KindFailed
	KindRestarting
	KindShutdownInitiated
	KindShutdown
	KindTerminated
)

func (k Kind) String() string {
	switch k {
	case KindNotInitiated:
		return "not_initiated"
	case KindStarting:
		return "starting"
	case KindWaitingForSync:
		return "waiting_for_sync"
	case KindWaitingForSignal:
		return "waiting_for_signal"
	case KindWaitingTradeExecutor:
		return "waiting_trade_executor"
	case KindRunning:
		return "running"
	case KindFailed:
		return "failed"
	case KindRestarting:
		return "restarting"
	case KindShutdownInitiated:
		return "shutdown_initiated"
	case KindShutdown:
		return "shutdown"
	case KindTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Status is one point in the supervisor's monotone status lattice.
type Status struct {
	Kind       Kind
	SyncReason sync.NotSyncedReason // meaningful when Kind == KindWaitingForSync
	ExecReason execution.Readiness  // meaningful when Kind == KindWaitingTradeExecutor
	Err        error                // meaningful for Failed/Terminated
}

func (s Status) String() string {
	switch s.Kind {
	case KindWaitingForSync:
		return s.Kind.String() + "(" + s.SyncReason.String() + ")"
	case KindWaitingTradeExecutor:
		return s.Kind.String() + "(" + s.ExecReason.String() + ")"
	case KindFailed, KindTerminated:
		return s.Kind.String() + "(" + errString(s.Err) + ")"
	default:
		return s.Kind.String()
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

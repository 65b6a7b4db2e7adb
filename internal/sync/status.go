package sync

// NotSyncedReason explains why SyncStatus is not yet Synced.
type NotSyncedReason int

const (
	NotInitiated NotSyncedReason = iota
	Starting
	InProgress
	WaitingForResync
	Failed
	Restarting
)

func (r NotSyncedReason) String() string {
	switch r {
	case NotInitiated:
		return "not_initiated"
	case Starting:
		return "starting"
	case InProgress:
		return "in_progress"
	case WaitingForResync:
		return "waiting_for_resync"
	case Failed:
		return "failed"
	case Restarting:
		return "restarting"
	default:
		return "unknown"
	}
}

// Kind discriminates the SyncStatus variants.
type Kind int

const (
	KindNotSynced Kind = iota
	KindSynced
	KindShutdownInitiated
	KindShutdown
	KindTerminated
)

func (k Kind) String() string {
	switch k {
	case KindNotSynced:
		return "not_synced"
	case KindSynced:
		return "synced"
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

// Status is the authoritative sync-process state, cached atomically by the
// controller and broadcast on every transition.
type Status struct {
	Kind   Kind
	Reason NotSyncedReason // only meaningful when Kind == KindNotSynced
	Fatal  error            // only meaningful when Kind == KindTerminated
}

func notSynced(reason NotSyncedReason) Status { return Status{Kind: KindNotSynced, Reason: reason} }
func synced() Status                          { return Status{Kind: KindSynced} }
func shutdownInitiated() Status               { return Status{Kind: KindShutdownInitiated} }
func shutdown() Status                        { return Status{Kind: KindShutdown} }
func terminated(err error) Status             { return Status{Kind: KindTerminated, Fatal: err} }

func (s Status) String() string {
	switch s.Kind {
	case KindNotSynced:
		return s.Kind.String() + "(" + s.Reason.String() + ")"
	case KindTerminated:
		return s.Kind.String() + "(" + s.Fatal.Error() + ")"
	default:
		return s.Kind.String()
	}
}

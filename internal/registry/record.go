package registry

import "time"

// Status is the lifecycle state of a tracked process.
type Status string

const (
	// StatusPending marks a candidate admitted from a creation signal whose
	// liveness has not yet been confirmed by a reconciliation sweep.
	StatusPending Status = "pending"
	// StatusActive marks a process confirmed alive.
	StatusActive Status = "active"
	// StatusTerminated marks a process confirmed gone. Terminal and
	// absorbing: a record never leaves this state.
	StatusTerminated Status = "terminated"
)

// rank orders statuses for forward-only transitions:
// pending < active < terminated.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusActive:
		return 1
	case StatusTerminated:
		return 2
	default:
		return -1
	}
}

// Terminal reports whether the status is absorbing.
func (s Status) Terminal() bool {
	return s == StatusTerminated
}

// Sources a record can be discovered through.
const (
	SourceSeed   = "seed"   // the launched or attached root
	SourceNotify = "notify" // kernel process-event notification
	SourceScan   = "scan"   // process-table child scan
)

// Record is the inventory entry for one observed OS process.
type Record struct {
	PID       int32
	ParentPID int32 // 0 for the root: no monitored parent
	Name      string
	Cmdline   string
	ExePath   string

	// SHA256 is the content digest of ExePath, or the integrity sentinel
	// when hashing was attempted and failed. Never empty.
	SHA256 string

	// StartedAt is the creation timestamp and the sole ordering key for
	// snapshots and reports.
	StartedAt time.Time

	// CreateTimeMS is the host-reported process creation time in Unix
	// milliseconds, 0 when unknown. Liveness probes use it to tell a
	// reused PID apart from the process originally recorded.
	CreateTimeMS int64

	Source string

	Status    Status
	HasExited bool
	ExitedAt  time.Time // zero until termination is observed
}

package ingest

import (
	"time"

	"github.com/mrzor/procwatch/internal/procinfo"
	"github.com/mrzor/procwatch/internal/registry"
)

// SpawnEvent is one raw process-creation signal from a discovery channel.
// ParentPID may be 0 when the channel does not know it (an exec
// notification names only the process itself); the adapter then resolves
// provenance from the host before applying the admission filter.
type SpawnEvent struct {
	ParentPID int32
	ChildPID  int32
	Name      string // best effort, may be empty
	Cmdline   string // best effort, may be empty
	Timestamp time.Time
	Source    string
}

// Adapter converts raw creation signals into candidate records and
// enqueues them. It applies the admission filter (only children of
// monitored PIDs enter the pipeline) and enriches candidates with host
// metadata and the integrity digest, both best effort.
//
// Duplicate signals for the same child are tolerated here and
// deduplicated at merge time by the keyed upsert.
type Adapter struct {
	reg      *registry.Registry
	queue    *Queue
	describe func(pid int32) (procinfo.Meta, error)
	hash     func(path string) string
}

// NewAdapter creates an adapter feeding queue. describe resolves host
// metadata and hash computes the integrity digest; both must be non-nil.
func NewAdapter(
	reg *registry.Registry,
	queue *Queue,
	describe func(pid int32) (procinfo.Meta, error),
	hash func(path string) string,
) *Adapter {
	return &Adapter{
		reg:      reg,
		queue:    queue,
		describe: describe,
		hash:     hash,
	}
}

// HandleSpawn processes one creation signal. Signals that fail the
// admission filter are discarded silently: most process creations on the
// host are unrelated to the monitored tree.
func (a *Adapter) HandleSpawn(ev SpawnEvent) {
	if ev.ChildPID <= 0 || ev.ChildPID == ev.ParentPID {
		return
	}
	if a.reg.Has(ev.ChildPID) {
		// Already tracked by an earlier signal from either channel.
		return
	}

	var meta procinfo.Meta
	described := false

	parent := ev.ParentPID
	if parent == 0 {
		// Provenance unknown at the source; ask the host. A process that
		// is gone before we can establish its parent is not admissible.
		m, err := a.describe(ev.ChildPID)
		if err != nil {
			return
		}
		meta, described = m, true
		parent = meta.ParentPID
	}

	if !a.reg.Watched(parent) {
		return
	}

	if !described {
		if m, err := a.describe(ev.ChildPID); err == nil {
			meta, described = m, true
		}
		// Metadata failure is non-fatal: the candidate still enters the
		// registry with whatever the event itself carried.
	}

	rec := registry.Record{
		PID:       ev.ChildPID,
		ParentPID: parent,
		Name:      ev.Name,
		Cmdline:   ev.Cmdline,
		StartedAt: ev.Timestamp,
		Source:    ev.Source,
		Status:    registry.StatusPending,
	}
	if described {
		if rec.Name == "" {
			rec.Name = meta.Name
		}
		if rec.Cmdline == "" {
			rec.Cmdline = meta.Cmdline
		}
		rec.ExePath = meta.ExePath
		rec.CreateTimeMS = meta.CreateTimeMS
		if meta.CreateTimeMS > 0 {
			// The host's own creation time orders records more precisely
			// than the notification timestamp.
			rec.StartedAt = time.UnixMilli(meta.CreateTimeMS)
		}
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	rec.SHA256 = a.hash(rec.ExePath)

	a.queue.Append(rec)
}

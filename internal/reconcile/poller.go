package reconcile

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/mrzor/procwatch/internal/ingest"
	"github.com/mrzor/procwatch/internal/integrity"
	"github.com/mrzor/procwatch/internal/procinfo"
	"github.com/mrzor/procwatch/internal/registry"
)

// DefaultInterval is the poll cadence used when none is configured.
const DefaultInterval = 200 * time.Millisecond

// Prober answers whether a process is still alive. The create time pins
// the check to the process generation we registered, so a recycled PID is
// not mistaken for the original.
type Prober interface {
	Alive(pid int32, createTimeMS int64) (bool, error)
}

// Scanner lists processes whose parent is currently watched and which the
// registry does not know yet.
type Scanner interface {
	Children(watched, known func(pid int32) bool) []procinfo.Meta
}

// Config wires a Poller to its collaborators.
type Config struct {
	Registry *registry.Registry
	Queue    *ingest.Queue
	Adapter  *ingest.Adapter
	Prober   Prober
	Scanner  Scanner

	// Describe and Hash back-fill host metadata for records that were
	// admitted before it was available.
	Describe func(pid int32) (procinfo.Meta, error)
	Hash     func(path string) string

	RootPID  int32
	Interval time.Duration

	// OnUpdate, when set, receives a registry snapshot after every tick
	// that leaves the root alive.
	OnUpdate func([]registry.Record)
}

// Poller reconciles the candidate queue and the host process table into
// the registry, once per interval. It is the only writer of record
// statuses.
type Poller struct {
	cfg Config

	rootDead chan struct{}
	deadOnce sync.Once
}

func New(cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Poller{cfg: cfg, rootDead: make(chan struct{})}
}

// RootDead is closed once a tick observes the root process gone.
func (p *Poller) RootDead() <-chan struct{} {
	return p.rootDead
}

// Run ticks until the root dies or the context is canceled. The first
// tick happens immediately so a short-lived root is still reconciled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		p.Tick()

		select {
		case <-ctx.Done():
			return
		case <-p.rootDead:
			return
		case <-ticker.C:
		}
	}
}

// Tick runs one reconciliation pass: discover, merge, sweep, then check
// the root. Collaborator failures are contained to the record they
// concern; nothing escapes the tick.
func (p *Poller) Tick() {
	p.scan()
	p.merge()
	p.sweep()
	if p.checkRoot() {
		return
	}
	if p.cfg.OnUpdate != nil {
		p.cfg.OnUpdate(p.cfg.Registry.Snapshot())
	}
}

// scan feeds process-table children of watched PIDs through the same
// admission path as kernel notifications, so children the notification
// channel missed are still discovered.
func (p *Poller) scan() {
	reg := p.cfg.Registry
	for _, meta := range p.cfg.Scanner.Children(reg.Watched, reg.Has) {
		p.cfg.Adapter.HandleSpawn(ingest.SpawnEvent{
			ParentPID: meta.ParentPID,
			ChildPID:  meta.PID,
			Name:      meta.Name,
			Cmdline:   meta.Cmdline,
			Timestamp: time.Now(),
			Source:    registry.SourceScan,
		})
	}
}

// merge drains queued candidates into the registry. Upsert ignores PIDs
// that are already keys, so duplicate discovery (notification plus scan)
// collapses here.
func (p *Poller) merge() {
	for _, rec := range p.cfg.Queue.Drain() {
		if p.cfg.Registry.Upsert(rec) {
			p.cfg.Registry.Watch(rec.PID)
		}
	}
}

// sweep probes liveness of every non-terminal record except the root.
func (p *Poller) sweep() {
	reg := p.cfg.Registry
	for _, pid := range reg.NonTerminal() {
		if pid == p.cfg.RootPID {
			continue
		}
		rec, ok := reg.Get(pid)
		if !ok {
			continue
		}

		alive, err := p.cfg.Prober.Alive(pid, rec.CreateTimeMS)
		if err != nil {
			// A process we cannot check is a process we cannot claim is
			// running.
			log.Printf("Warning: liveness check failed for pid %d: %v (treating as exited)", pid, err)
			reg.UpdateStatus(pid, registry.StatusTerminated)
			continue
		}
		if !alive {
			reg.UpdateStatus(pid, registry.StatusTerminated)
			continue
		}

		if rec.Status == registry.StatusPending {
			// First confirmation. The child may have swapped its image
			// since the creation event, so take identity from the host
			// now, then freeze it.
			p.refresh(rec)
		} else {
			p.backfill(rec)
		}
		reg.UpdateStatus(pid, registry.StatusActive)
	}
}

// refresh replaces a pending record's identity with what the host
// reports at confirmation time.
func (p *Poller) refresh(rec registry.Record) {
	meta, err := p.cfg.Describe(rec.PID)
	if err != nil {
		return
	}
	sha := ""
	if meta.ExePath != "" {
		sha = p.cfg.Hash(meta.ExePath)
	}
	p.cfg.Registry.Refresh(rec.PID, meta.Name, meta.Cmdline, meta.ExePath, sha)
}

// backfill retries host metadata for a live record admitted with gaps.
func (p *Poller) backfill(rec registry.Record) {
	if rec.Name != "" && rec.ExePath != "" && rec.SHA256 != integrity.Unavailable {
		return
	}
	meta, err := p.cfg.Describe(rec.PID)
	if err != nil {
		return
	}
	sha := ""
	if rec.SHA256 == integrity.Unavailable && meta.ExePath != "" {
		sha = p.cfg.Hash(meta.ExePath)
	}
	p.cfg.Registry.Backfill(rec.PID, meta.Name, meta.Cmdline, meta.ExePath, sha)
}

// checkRoot probes the root last. A dead root ends the session's
// detection scope: everything still non-terminal is marked terminated
// in the same tick.
func (p *Poller) checkRoot() bool {
	reg := p.cfg.Registry
	rec, ok := reg.Get(p.cfg.RootPID)
	if !ok {
		return false
	}

	alive, err := p.cfg.Prober.Alive(rec.PID, rec.CreateTimeMS)
	if err != nil {
		log.Printf("Warning: liveness check failed for root pid %d: %v (treating as exited)", rec.PID, err)
		alive = false
	}
	if alive {
		return false
	}

	reg.UpdateStatus(rec.PID, registry.StatusTerminated)
	for _, pid := range reg.NonTerminal() {
		reg.UpdateStatus(pid, registry.StatusTerminated)
	}
	p.deadOnce.Do(func() { close(p.rootDead) })
	return true
}

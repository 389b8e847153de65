// Package session orchestrates one monitoring run: seed the root, start
// event ingestion, drive the reconciliation loop until the root exits,
// then finalize. A Session is one-shot; monitoring another root means
// another Session.
package session

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mrzor/procwatch/internal/ingest"
	"github.com/mrzor/procwatch/internal/integrity"
	"github.com/mrzor/procwatch/internal/launch"
	"github.com/mrzor/procwatch/internal/notify"
	"github.com/mrzor/procwatch/internal/procinfo"
	"github.com/mrzor/procwatch/internal/reconcile"
	"github.com/mrzor/procwatch/internal/registry"
	"github.com/mrzor/procwatch/internal/timesync"
)

// State is the lifecycle position of a Session.
type State string

const (
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateFinalizing State = "finalizing"
	StateDone       State = "done"
)

// SubscribeFunc opens a process-creation notification subscription. The
// default is notify.Subscribe; tests substitute their own.
type SubscribeFunc func(id string, conv *timesync.Converter, handle func(notify.Event)) (io.Closer, error)

// Config assembles a Session. Root is required; every collaborator field
// left at its zero value selects the host-backed implementation.
type Config struct {
	Root     launch.Info
	Interval time.Duration
	NoHash   bool

	// OnUpdate receives a registry snapshot at the poll cadence while
	// the root is alive.
	OnUpdate func([]registry.Record)

	Prober    reconcile.Prober
	Scanner   reconcile.Scanner
	Describe  func(pid int32) (procinfo.Meta, error)
	Hash      func(path string) string
	Subscribe SubscribeFunc
}

// Session owns the registry, the ingestion pipeline, and the poller for
// one root process tree.
type Session struct {
	id      string
	cfg     Config
	conv    *timesync.Converter
	reg     *registry.Registry
	queue   *ingest.Queue
	adapter *ingest.Adapter
	poller  *reconcile.Poller

	mu       sync.Mutex
	state    State
	sub      io.Closer
	pollOnly bool
	ran      bool
	final    []registry.Record
}

// New assembles a session around its root process.
func New(cfg Config) *Session {
	if cfg.Hash == nil {
		if cfg.NoHash {
			cfg.Hash = func(string) string { return integrity.Unavailable }
		} else {
			cfg.Hash = integrity.HashFile
		}
	}
	if cfg.Describe == nil {
		cfg.Describe = procinfo.Describe
	}
	if cfg.Prober == nil {
		cfg.Prober = procinfo.Prober{}
	}
	if cfg.Scanner == nil {
		cfg.Scanner = procinfo.Scanner{}
	}
	if cfg.Subscribe == nil {
		cfg.Subscribe = func(id string, conv *timesync.Converter, handle func(notify.Event)) (io.Closer, error) {
			return notify.Subscribe(id, conv, handle)
		}
	}

	s := &Session{
		id:    uuid.NewString(),
		cfg:   cfg,
		conv:  timesync.NewConverter(),
		reg:   registry.New(),
		queue: ingest.NewQueue(),
		state: StateStarting,
	}
	s.adapter = ingest.NewAdapter(s.reg, s.queue, cfg.Describe, cfg.Hash)
	s.poller = reconcile.New(reconcile.Config{
		Registry: s.reg,
		Queue:    s.queue,
		Adapter:  s.adapter,
		Prober:   cfg.Prober,
		Scanner:  cfg.Scanner,
		Describe: cfg.Describe,
		Hash:     cfg.Hash,
		RootPID:  cfg.Root.PID,
		Interval: cfg.Interval,
		OnUpdate: cfg.OnUpdate,
	})
	return s
}

// ID returns the session identifier used to tag the notification
// subscription and exported telemetry.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PollOnly reports whether the session runs without a notification
// subscription, detecting children through the process-table scan alone.
func (s *Session) PollOnly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pollOnly
}

// Snapshot returns the final record set. It is complete once State is
// StateDone; before finalization it reflects the registry mid-flight.
func (s *Session) Snapshot() []registry.Record {
	s.mu.Lock()
	final := s.final
	s.mu.Unlock()
	if final != nil {
		return final
	}
	return s.reg.Snapshot()
}

// Run monitors the root's process tree until the root exits or ctx is
// canceled, then finalizes. It is an error to call Run twice.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.ran {
		s.mu.Unlock()
		return errors.New("session already run")
	}
	s.ran = true
	s.state = StateStarting
	s.mu.Unlock()

	// Whatever path exits the loop, the subscription is released and no
	// record stays non-terminal.
	defer s.finalize()

	s.seedRoot()
	s.subscribeNotifications()

	s.setState(StateRunning)
	s.poller.Run(ctx)
	return nil
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// seedRoot registers the root as the first record and admits it to the
// monitored set. The root has no recorded parent.
func (s *Session) seedRoot() {
	root := s.cfg.Root
	s.reg.Upsert(registry.Record{
		PID:          root.PID,
		ParentPID:    0,
		Name:         root.Name,
		Cmdline:      root.Cmdline,
		ExePath:      root.ExePath,
		SHA256:       s.cfg.Hash(root.ExePath),
		Status:       registry.StatusActive,
		Source:       registry.SourceSeed,
		StartedAt:    root.StartedAt,
		CreateTimeMS: root.CreateTimeMS,
	})
	s.reg.Watch(root.PID)
}

// subscribeNotifications opens the kernel notification channel. Failure
// is a capability downgrade, not an abort: the scan still detects
// children, at poll granularity.
func (s *Session) subscribeNotifications() {
	sub, err := s.cfg.Subscribe(s.id, s.conv, s.handleEvent)
	if err != nil {
		log.Printf("Warning: process notifications unavailable: %v (poll-only detection; short-lived children may be missed)", err)
		s.mu.Lock()
		s.pollOnly = true
		s.mu.Unlock()
		return
	}
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
}

// handleEvent runs on the notification goroutine. It only ever appends
// candidates to the queue; all registry mutation stays with the poller.
func (s *Session) handleEvent(ev notify.Event) {
	switch ev.Kind {
	case notify.KindFork:
		s.adapter.HandleSpawn(ingest.SpawnEvent{
			ParentPID: ev.ParentPID,
			ChildPID:  ev.PID,
			Timestamp: ev.Timestamp,
			Source:    registry.SourceNotify,
		})
	case notify.KindExec:
		// Recovers children whose fork notification was dropped; the
		// adapter resolves the parent and discards known PIDs.
		s.adapter.HandleSpawn(ingest.SpawnEvent{
			ChildPID:  ev.PID,
			Timestamp: ev.Timestamp,
			Source:    registry.SourceNotify,
		})
	case notify.KindExit:
		// The existence poll is the single authority on liveness.
	}
}

// finalize tears the session down: subscription closed, every remaining
// record terminated, final snapshot frozen.
func (s *Session) finalize() {
	s.setState(StateFinalizing)

	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	if sub != nil {
		if err := sub.Close(); err != nil {
			log.Printf("Warning: closing notification subscription: %v", err)
		}
	}

	for _, pid := range s.reg.NonTerminal() {
		s.reg.UpdateStatus(pid, registry.StatusTerminated)
	}

	s.mu.Lock()
	s.final = s.reg.Snapshot()
	s.state = StateDone
	s.mu.Unlock()
}

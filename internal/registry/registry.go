package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/mrzor/procwatch/internal/integrity"
)

// Registry is the authoritative mapping from PID to process record for one
// monitoring session. It owns all mutation and exposes copy-on-read
// snapshots, so readers never observe a record mid-mutation.
//
// It also owns the monitored-ID set: the registry keys whose future children
// are eligible for admission. Terminating a record atomically removes it
// from the set, so a dead process cannot admit further children.
type Registry struct {
	mu      sync.RWMutex
	records map[int32]*Record
	watched map[int32]struct{}
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		records: make(map[int32]*Record),
		watched: make(map[int32]struct{}),
	}
}

// Upsert inserts rec if its PID is not yet a key and reports whether the
// insert happened (command). Identity fields are first-write-wins: an
// existing record is left untouched, whatever its state. Status is
// normalized on insert and only ever advanced through UpdateStatus, so a
// stale candidate can never clobber a Terminated record.
func (r *Registry) Upsert(rec Record) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[rec.PID]; exists {
		return false
	}

	if rec.Status.rank() < 0 {
		rec.Status = StatusPending
	}
	if rec.SHA256 == "" {
		rec.SHA256 = integrity.Unavailable
	}
	rec.HasExited = rec.Status == StatusTerminated

	stored := rec
	r.records[rec.PID] = &stored
	return true
}

// UpdateStatus advances a record's lifecycle state and reports whether
// anything changed (command). Idempotent and forward-only under
// pending < active < terminated; a backwards update is ignored.
// Advancing to StatusTerminated stamps the exit fields and removes the PID
// from the monitored-ID set.
func (r *Registry) UpdateStatus(pid int32, status Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.records[pid]
	if !exists || status.rank() <= rec.Status.rank() {
		return false
	}

	rec.Status = status
	if status == StatusTerminated {
		rec.HasExited = true
		rec.ExitedAt = time.Now()
		delete(r.watched, pid)
	}
	return true
}

// Backfill fills host fields that are still unavailable on a record
// (command). Only the reconciliation loop calls this; populated fields are
// never overwritten.
func (r *Registry) Backfill(pid int32, name, cmdline, exePath, sha256 string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.records[pid]
	if !exists {
		return
	}

	if rec.Name == "" && name != "" {
		rec.Name = name
	}
	if rec.Cmdline == "" && cmdline != "" {
		rec.Cmdline = cmdline
	}
	if rec.ExePath == "" && exePath != "" {
		rec.ExePath = exePath
	}
	if rec.SHA256 == integrity.Unavailable && sha256 != "" && sha256 != integrity.Unavailable {
		rec.SHA256 = sha256
	}
}

// Refresh replaces identity fields of a record that is still pending
// confirmation and reports whether it applied (command). A forked child
// often swaps its image before the first poll confirms it; the first
// sweep calls this so the record carries the post-exec identity. Once a
// record leaves StatusPending its identity is frozen.
func (r *Registry) Refresh(pid int32, name, cmdline, exePath, sha256 string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.records[pid]
	if !exists || rec.Status != StatusPending {
		return false
	}

	if name != "" {
		rec.Name = name
	}
	if cmdline != "" {
		rec.Cmdline = cmdline
	}
	if exePath != "" {
		rec.ExePath = exePath
	}
	if sha256 != "" {
		rec.SHA256 = sha256
	}
	return true
}

// Get returns a copy of the record for pid (query).
func (r *Registry) Get(pid int32) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.records[pid]
	if !exists {
		return Record{}, false
	}
	return *rec, true
}

// Has reports whether pid is a registry key (query).
func (r *Registry) Has(pid int32) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.records[pid]
	return exists
}

// Len returns the number of records (query).
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Snapshot returns copies of all records ordered by creation timestamp,
// PID as the tie break (query). Safe to call concurrently with mutation;
// the returned slice is the caller's to keep.
func (r *Registry) Snapshot() []Record {
	r.mu.RLock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].PID < out[j].PID
	})
	return out
}

// NonTerminal returns the PIDs of records that have not reached a terminal
// status, in no particular order (query).
func (r *Registry) NonTerminal() []int32 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var pids []int32
	for pid, rec := range r.records {
		if !rec.Status.Terminal() {
			pids = append(pids, pid)
		}
	}
	return pids
}

// Counts returns how many records are in each lifecycle state (query).
func (r *Registry) Counts() (pending, active, terminated int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rec := range r.records {
		switch rec.Status {
		case StatusPending:
			pending++
		case StatusActive:
			active++
		case StatusTerminated:
			terminated++
		}
	}
	return pending, active, terminated
}

// Watch adds pid to the monitored-ID set (command).
func (r *Registry) Watch(pid int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watched[pid] = struct{}{}
}

// Unwatch removes pid from the monitored-ID set (command).
func (r *Registry) Unwatch(pid int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.watched, pid)
}

// Watched reports whether pid is in the monitored-ID set (query).
func (r *Registry) Watched(pid int32) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.watched[pid]
	return ok
}

// WatchedPIDs returns the monitored-ID set as a slice (query).
func (r *Registry) WatchedPIDs() []int32 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pids := make([]int32, 0, len(r.watched))
	for pid := range r.watched {
		pids = append(pids, pid)
	}
	return pids
}

// Package registry holds the authoritative process inventory for a
// monitoring session.
//
// Record is one observed OS process: identity (PID, parent PID, name,
// command line, executable path), integrity digest, creation timestamp,
// and lifecycle status. Records are inserted at most once per PID and never
// deleted; the registry is a strictly growing log for the session.
//
// Registry provides command-query separation:
//
// Commands (mutations, driven by the reconciliation loop):
//   - Upsert(rec) - Insert once, first-write-wins identity
//   - UpdateStatus(pid, status) - Forward-only lifecycle transition
//   - Backfill(pid, ...) - Fill fields that were unavailable at insert
//   - Watch(pid) / Unwatch(pid) - Maintain the monitored-ID set
//
// Queries (safe concurrently with mutation):
//   - Snapshot() - Copies ordered by creation time
//   - Get / Has / Len / NonTerminal / Counts
//   - Watched(pid) / WatchedPIDs() - Admission checks
//
// Status moves pending -> active -> terminated and never backwards;
// terminated is absorbing. Thread-safe with RWMutex; snapshots copy, so
// readers never see a record mid-mutation.
package registry

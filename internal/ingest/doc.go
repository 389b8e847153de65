// Package ingest turns raw process-creation signals into candidate records.
//
// Two producers feed the same pipeline:
//
//	kernel notifications ──┐
//	                       ├──→ Adapter ──→ Queue ──→ reconciliation loop
//	process-table scan  ───┘    (filter,      (append/
//	                             enrich)       drain)
//
// The Adapter applies the admission filter: a signal is kept only when its
// parent PID is in the monitored-ID set at arrival time, so unrelated host
// processes (including ones reusing a PID) never enter the registry. Kept
// signals are enriched with host metadata and the executable's integrity
// digest, both best effort, and buffered as pending candidates.
//
// The Queue is the only structure written by both actors; it guarantees
// atomic many-producer append and single-consumer drain. Ordering among
// candidates is insignificant because the merge is a keyed, first-write-wins
// upsert: duplicate signals for one child collapse to a single record there.
package ingest

// Package reconcile merges everything the system learns about the
// monitored tree into the registry on a fixed cadence.
//
// Each tick runs four steps in order:
//
//  1. scan   - discover unregistered children of watched PIDs
//  2. merge  - drain queued candidates into the registry
//  3. sweep  - probe liveness of every non-terminal record but the root
//  4. root   - probe the root; dead means terminate the remainder and
//              signal session end
//
// The poller owns all status transitions. Event ingestion only ever
// appends candidates to the queue, which is why the registry needs no
// coordination beyond its own lock.
package reconcile

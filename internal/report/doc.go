// Package report renders registry snapshots for human and machine
// consumers.
//
// Three renderers share the same input, a sorted []registry.Record
// snapshot:
//   - Table: tabwriter process table for the final report
//   - Live: per-tick view while the session runs (full redraw or a
//     one-line counters summary)
//   - SpanReporter: one OpenTelemetry span per process, parented along
//     ParentPID, with the record's own start and end times
//
// The package never reads the registry itself; the session hands it
// snapshots at the poll cadence and once more after finalization.
package report

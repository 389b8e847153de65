package report

import (
	"context"
	"time"

	"github.com/mrzor/procwatch/internal/attributes"
	"github.com/mrzor/procwatch/internal/registry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SpanReporter converts a final record set into one OpenTelemetry span per
// process, parented along ParentPID so the trace mirrors the process tree.
type SpanReporter struct {
	tracer    trace.Tracer
	sessionID string
	evaluator *attributes.Evaluator
	parent    trace.SpanContext
}

// NewSpanReporter creates a reporter emitting through tracer. parent may be
// the zero SpanContext when no external trace is being joined; evaluator may
// be nil when no custom attributes are configured.
func NewSpanReporter(tracer trace.Tracer, sessionID string, evaluator *attributes.Evaluator, parent trace.SpanContext) *SpanReporter {
	return &SpanReporter{
		tracer:    tracer,
		sessionID: sessionID,
		evaluator: evaluator,
		parent:    parent,
	}
}

// Emit publishes one span per record using each record's own start and end
// times. Records whose parent PID is not part of the set (the root, or an
// orphan whose parent went unobserved) hang off the external parent context
// when one was configured.
func (r *SpanReporter) Emit(records []registry.Record) {
	byPID := make(map[int32]registry.Record, len(records))
	for _, rec := range records {
		byPID[rec.PID] = rec
	}

	children := make(map[int32][]int32, len(records))
	var roots []int32
	for _, rec := range records {
		if _, ok := byPID[rec.ParentPID]; ok && rec.ParentPID != rec.PID {
			children[rec.ParentPID] = append(children[rec.ParentPID], rec.PID)
		} else {
			roots = append(roots, rec.PID)
		}
	}

	base := context.Background()
	if r.parent.IsValid() {
		base = trace.ContextWithSpanContext(base, r.parent)
	}
	for _, pid := range roots {
		r.emit(base, byPID, children, pid)
	}
}

func (r *SpanReporter) emit(ctx context.Context, byPID map[int32]registry.Record, children map[int32][]int32, pid int32) {
	rec := byPID[pid]

	start := rec.StartedAt
	if start.IsZero() {
		start = time.Now()
	}
	end := rec.ExitedAt
	if end.IsZero() {
		end = time.Now()
	}
	if end.Before(start) {
		end = start
	}

	name := rec.Name
	if name == "" {
		name = "process"
	}

	ctx, span := r.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(start),
	)

	span.SetAttributes(
		attribute.Int("process.pid", int(rec.PID)),
		attribute.Int("process.parent_pid", int(rec.ParentPID)),
		attribute.String("process.executable.name", rec.Name),
		attribute.String("process.executable.path", rec.ExePath),
		attribute.String("process.executable.sha256", rec.SHA256),
		attribute.String("process.command_line", rec.Cmdline),
		attribute.String("process.source", rec.Source),
		attribute.String("process.status", string(rec.Status)),
		attribute.String("session.id", r.sessionID),
		attribute.Int64("process.duration_ns", end.Sub(start).Nanoseconds()),
	)
	if r.evaluator != nil {
		if custom := r.evaluator.Evaluate(rec); len(custom) > 0 {
			span.SetAttributes(custom...)
		}
	}

	for _, child := range children[pid] {
		r.emit(ctx, byPID, children, child)
	}

	span.End(trace.WithTimestamp(end))
}

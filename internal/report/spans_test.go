package report

import (
	"context"
	"testing"
	"time"

	"github.com/mrzor/procwatch/internal/attributes"
	"github.com/mrzor/procwatch/internal/config"
	"github.com/mrzor/procwatch/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func treeRecords() []registry.Record {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return []registry.Record{
		{
			PID: 100, ParentPID: 0, Name: "make", Cmdline: "make -j4",
			ExePath: "/usr/bin/make", SHA256: "aa11",
			StartedAt: base, Source: registry.SourceSeed,
			Status: registry.StatusTerminated, HasExited: true,
			ExitedAt: base.Add(5 * time.Second),
		},
		{
			PID: 200, ParentPID: 100, Name: "sh", Cmdline: "sh -c cc1",
			ExePath: "/bin/sh", SHA256: "bb22",
			StartedAt: base.Add(time.Second), Source: registry.SourceNotify,
			Status: registry.StatusTerminated, HasExited: true,
			ExitedAt: base.Add(4 * time.Second),
		},
		{
			PID: 300, ParentPID: 200, Name: "cc1", Cmdline: "cc1 main.c",
			ExePath: "/usr/lib/gcc/cc1", SHA256: "cc33",
			StartedAt: base.Add(2 * time.Second), Source: registry.SourceScan,
			Status: registry.StatusTerminated, HasExited: true,
			ExitedAt: base.Add(3 * time.Second),
		},
	}
}

func recordSpans(t *testing.T, emit func(tracer trace.Tracer)) []sdktrace.ReadOnlySpan {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emit(tp.Tracer("test"))
	return recorder.Ended()
}

func spanByName(t *testing.T, spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, s := range spans {
		if s.Name() == name {
			return s
		}
	}
	t.Fatalf("no span named %q", name)
	return nil
}

func attrMap(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestSpanReporter_OneSpanPerRecord(t *testing.T) {
	spans := recordSpans(t, func(tracer trace.Tracer) {
		NewSpanReporter(tracer, "session-1", nil, trace.SpanContext{}).Emit(treeRecords())
	})

	require.Len(t, spans, 3)
	names := make(map[string]bool)
	for _, s := range spans {
		names[s.Name()] = true
	}
	assert.True(t, names["make"] && names["sh"] && names["cc1"])
}

func TestSpanReporter_ParentLinksFollowProcessTree(t *testing.T) {
	spans := recordSpans(t, func(tracer trace.Tracer) {
		NewSpanReporter(tracer, "session-1", nil, trace.SpanContext{}).Emit(treeRecords())
	})

	root := spanByName(t, spans, "make")
	child := spanByName(t, spans, "sh")
	grandchild := spanByName(t, spans, "cc1")

	assert.False(t, root.Parent().IsValid(), "root span has no parent")
	assert.Equal(t, root.SpanContext().SpanID(), child.Parent().SpanID())
	assert.Equal(t, child.SpanContext().SpanID(), grandchild.Parent().SpanID())

	traceID := root.SpanContext().TraceID()
	assert.Equal(t, traceID, child.SpanContext().TraceID())
	assert.Equal(t, traceID, grandchild.SpanContext().TraceID())
}

func TestSpanReporter_JoinsExternalTrace(t *testing.T) {
	remote, err := attributes.RemoteParent("build-1234")
	require.NoError(t, err)

	spans := recordSpans(t, func(tracer trace.Tracer) {
		NewSpanReporter(tracer, "session-1", nil, remote).Emit(treeRecords())
	})

	require.Len(t, spans, 3)
	for _, s := range spans {
		assert.Equal(t, remote.TraceID(), s.SpanContext().TraceID())
	}
	root := spanByName(t, spans, "make")
	assert.Equal(t, remote.SpanID(), root.Parent().SpanID())
}

func TestSpanReporter_OrphanAttachesToExternalParent(t *testing.T) {
	remote, err := attributes.RemoteParent("build-1234")
	require.NoError(t, err)

	records := treeRecords()
	// Parent 999 was never observed; the orphan still lands in the trace.
	records = append(records, registry.Record{
		PID: 400, ParentPID: 999, Name: "stray",
		StartedAt: time.Date(2025, 6, 1, 12, 0, 4, 0, time.UTC),
		Status:    registry.StatusTerminated, HasExited: true,
		ExitedAt: time.Date(2025, 6, 1, 12, 0, 5, 0, time.UTC),
	})

	spans := recordSpans(t, func(tracer trace.Tracer) {
		NewSpanReporter(tracer, "session-1", nil, remote).Emit(records)
	})

	require.Len(t, spans, 4)
	stray := spanByName(t, spans, "stray")
	assert.Equal(t, remote.SpanID(), stray.Parent().SpanID())
}

func TestSpanReporter_ExplicitTimestamps(t *testing.T) {
	records := treeRecords()
	spans := recordSpans(t, func(tracer trace.Tracer) {
		NewSpanReporter(tracer, "session-1", nil, trace.SpanContext{}).Emit(records)
	})

	root := spanByName(t, spans, "make")
	assert.True(t, root.StartTime().Equal(records[0].StartedAt),
		"span starts at the recorded creation time, not emission time")
	assert.True(t, root.EndTime().Equal(records[0].ExitedAt))
}

func TestSpanReporter_RecordAttributes(t *testing.T) {
	spans := recordSpans(t, func(tracer trace.Tracer) {
		NewSpanReporter(tracer, "session-9", nil, trace.SpanContext{}).Emit(treeRecords())
	})

	attrs := attrMap(spanByName(t, spans, "sh"))
	assert.Equal(t, int64(200), attrs["process.pid"].AsInt64())
	assert.Equal(t, int64(100), attrs["process.parent_pid"].AsInt64())
	assert.Equal(t, "/bin/sh", attrs["process.executable.path"].AsString())
	assert.Equal(t, "bb22", attrs["process.executable.sha256"].AsString())
	assert.Equal(t, "sh -c cc1", attrs["process.command_line"].AsString())
	assert.Equal(t, "notify", attrs["process.source"].AsString())
	assert.Equal(t, "terminated", attrs["process.status"].AsString())
	assert.Equal(t, "session-9", attrs["session.id"].AsString())
	assert.Equal(t, (3 * time.Second).Nanoseconds(), attrs["process.duration_ns"].AsInt64())
}

func TestSpanReporter_CustomAttributes(t *testing.T) {
	evaluator, err := attributes.NewEvaluator([]config.CustomAttribute{
		{Name: "team", Expression: `"build-infra"`},
		{Name: "proc.title", Expression: "upper(name)"},
	})
	require.NoError(t, err)

	spans := recordSpans(t, func(tracer trace.Tracer) {
		NewSpanReporter(tracer, "session-1", evaluator, trace.SpanContext{}).Emit(treeRecords())
	})

	attrs := attrMap(spanByName(t, spans, "cc1"))
	assert.Equal(t, "build-infra", attrs["team"].AsString())
	assert.Equal(t, "CC1", attrs["proc.title"].AsString())
}

package attributes

import (
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestTraceID_LiteralHex(t *testing.T) {
	const literal = "0123456789abcdef0123456789abcdef"

	id, err := TraceID(literal)
	if err != nil {
		t.Fatalf("TraceID() error = %v", err)
	}

	want, err := trace.TraceIDFromHex(literal)
	if err != nil {
		t.Fatalf("trace.TraceIDFromHex() error = %v", err)
	}
	if id != want {
		t.Errorf("TraceID(%q) = %v, want %v", literal, id, want)
	}
}

func TestTraceID_ArbitraryValueIsHashed(t *testing.T) {
	id, err := TraceID("build-1234")
	if err != nil {
		t.Fatalf("TraceID() error = %v", err)
	}
	if id == (trace.TraceID{}) {
		t.Error("Expected non-zero hashed trace ID")
	}

	// Deterministic: the same token always yields the same trace.
	again, err := TraceID("build-1234")
	if err != nil {
		t.Fatalf("TraceID() error = %v", err)
	}
	if id != again {
		t.Errorf("TraceID is not deterministic: %v vs %v", id, again)
	}

	other, err := TraceID("build-1235")
	if err != nil {
		t.Fatalf("TraceID() error = %v", err)
	}
	if id == other {
		t.Error("Distinct tokens produced the same trace ID")
	}
}

func TestTraceID_AllZeroLiteralIsHashed(t *testing.T) {
	// 32 hex chars, but the all-zero ID is invalid per W3C.
	id, err := TraceID("00000000000000000000000000000000")
	if err != nil {
		t.Fatalf("TraceID() error = %v", err)
	}
	if id == (trace.TraceID{}) {
		t.Error("All-zero input must fall back to a hashed, valid ID")
	}
}

func TestTraceID_WrongLengthHexIsHashed(t *testing.T) {
	id, err := TraceID("abcdef")
	if err != nil {
		t.Fatalf("TraceID() error = %v", err)
	}
	if id == (trace.TraceID{}) {
		t.Error("Short hex must fall back to a hashed ID")
	}
}

func TestTraceID_Empty(t *testing.T) {
	if _, err := TraceID(""); err == nil {
		t.Error("Expected error for empty trace-id value")
	}
}

func TestRemoteParent_Valid(t *testing.T) {
	sc, err := RemoteParent("build-1234")
	if err != nil {
		t.Fatalf("RemoteParent() error = %v", err)
	}
	if !sc.IsValid() {
		t.Error("RemoteParent must produce a valid span context")
	}
	if !sc.IsRemote() {
		t.Error("RemoteParent must be marked remote")
	}
	if !sc.IsSampled() {
		t.Error("RemoteParent must be sampled or child spans get dropped")
	}

	id, err := TraceID("build-1234")
	if err != nil {
		t.Fatalf("TraceID() error = %v", err)
	}
	if sc.TraceID() != id {
		t.Errorf("RemoteParent trace ID = %v, want %v", sc.TraceID(), id)
	}
}

func TestRemoteParent_Deterministic(t *testing.T) {
	a, err := RemoteParent("pipeline-77")
	if err != nil {
		t.Fatalf("RemoteParent() error = %v", err)
	}
	b, err := RemoteParent("pipeline-77")
	if err != nil {
		t.Fatalf("RemoteParent() error = %v", err)
	}
	if a.SpanID() != b.SpanID() || a.TraceID() != b.TraceID() {
		t.Errorf("RemoteParent is not deterministic: %v vs %v", a, b)
	}
}

func TestRemoteParent_Empty(t *testing.T) {
	if _, err := RemoteParent(""); err == nil {
		t.Error("Expected error for empty trace-id value")
	}
}

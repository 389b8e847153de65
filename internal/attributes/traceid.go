package attributes

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"go.opentelemetry.io/otel/trace"
)

// TraceID resolves the --trace-id argument into a valid W3C trace ID.
//
// A raw value that is already 32 hex characters is taken verbatim, so a
// caller can stitch process spans into an existing trace. Anything else
// is SHA-256 hashed and the first 16 bytes used, which turns an arbitrary
// stable token (a CI job ID, a ticket number) into a deterministic trace
// ID. The all-zero ID is invalid per W3C; hashing covers that case too.
func TraceID(raw string) (trace.TraceID, error) {
	if raw == "" {
		return trace.TraceID{}, fmt.Errorf("empty trace-id value")
	}

	if len(raw) == 32 {
		if id, err := trace.TraceIDFromHex(raw); err == nil {
			return id, nil
		}
	}

	sum := sha256.Sum256([]byte(raw))
	id, err := trace.TraceIDFromHex(hex.EncodeToString(sum[:16]))
	if err != nil {
		return trace.TraceID{}, fmt.Errorf("deriving trace ID from %q: %w", raw, err)
	}
	return id, nil
}

// RemoteParent builds the remote span context process spans are parented
// under when a trace ID is supplied. The span ID is derived from the same
// token, so an external coordinator following the same convention can emit
// the parent span itself and have the process tree hang off it.
func RemoteParent(raw string) (trace.SpanContext, error) {
	id, err := TraceID(raw)
	if err != nil {
		return trace.SpanContext{}, err
	}

	sum := sha256.Sum256([]byte(raw))
	spanID, err := trace.SpanIDFromHex(hex.EncodeToString(sum[16:24]))
	if err != nil {
		return trace.SpanContext{}, fmt.Errorf("deriving span ID from %q: %w", raw, err)
	}

	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    id,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}), nil
}

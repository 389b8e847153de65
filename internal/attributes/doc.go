// Package attributes provides expression evaluation for custom telemetry
// attributes and trace ID derivation.
//
// Custom attributes (-a name=expression) are expr-language expressions
// evaluated once per process record against its identity fields: pid,
// ppid, name, cmdline, exe, sha256, source. Map-valued results are
// flattened into dotted attribute names.
//
// Trace IDs (-t) accept a literal 32-hex-char W3C trace ID; any other
// value is SHA-256 hashed into one, so a stable external token yields a
// stable trace.
package attributes

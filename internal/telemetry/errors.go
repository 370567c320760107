package telemetry

import "fmt"

// The error taxonomy is deliberately small. Per-packet decode errors are
// recoverable and never terminate a stream; transport loss stops only the
// affected connector; structural and request errors surface to the caller.

// TransportError reports a lost or unavailable transport (socket gone,
// shared-memory mapping missing). The owning connector stops; nothing else.
type TransportError struct {
	Source string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport unavailable: %v", e.Source, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError reports a malformed, truncated or undecryptable packet. The
// packet is dropped and ingestion continues.
type DecodeError struct {
	Source string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decode: %s", e.Source, e.Reason)
}

// GeometryError reports a lap too degenerate for geometric analysis.
type GeometryError struct {
	Reason string
}

func (e *GeometryError) Error() string { return "geometry: " + e.Reason }

// ValidationError reports a bad request: unknown lap id, empty selection,
// broken lap invariants.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// IOError wraps an import/export failure together with the offending path.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }

func (e *IOError) Unwrap() error { return e.Err }

// Package control implements the Go-level operations the gRPC control
// surface (an external adapter, spec §1 "explicitly out of scope") calls
// into: StartChannel, StopChannel, LoadPreview, SwitchToLive, UpdatePlan
// (spec §6). This package owns channel lifecycle and wires a channel's
// Pipeline Manager, block queue, evidence emitter/spool, and sink
// together; it never speaks gRPC itself.
package control

// ResultCode is the outcome of a control operation (spec §6
// "Result codes include OK, NOT_READY ..., REJECTED_BUSY,
// PROTOCOL_VIOLATION, FAILED").
type ResultCode int

const (
	ResultOK ResultCode = iota
	// ResultNotReady is transient: the preview block hasn't primed yet.
	// Nothing re-arms the swap afterwards; the swap still runs at the
	// fence tick, primed or not.
	ResultNotReady
	// ResultRejectedBusy means the requested slot/operation is already
	// occupied by an in-flight request for the same channel.
	ResultRejectedBusy
	// ResultProtocolViolation means the caller violated call ordering —
	// e.g. SwitchToLive with no preview loaded, or an asset_id mismatch
	// (spec §7 "Block plan protocol violation").
	ResultProtocolViolation
	ResultFailed
)

func (r ResultCode) String() string {
	switch r {
	case ResultOK:
		return "OK"
	case ResultNotReady:
		return "NOT_READY"
	case ResultRejectedBusy:
		return "REJECTED_BUSY"
	case ResultProtocolViolation:
		return "PROTOCOL_VIOLATION"
	case ResultFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

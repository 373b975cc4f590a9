// Package evidence emits lifecycle evidence events at legal seams, with an
// atomic identity envelope and a gapless, strictly +1 per-session sequence
// (spec §3.1 "Evidence event", §4.8, invariants P7/P8).
package evidence

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/airplayout/core/internal/clock"
)

// PayloadType identifies the kind of lifecycle transition an event
// records (spec §3.1).
type PayloadType string

const (
	BlockStart        PayloadType = "BLOCK_START"
	SegmentStart      PayloadType = "SEGMENT_START"
	SegmentEnd        PayloadType = "SEGMENT_END"
	BlockFence        PayloadType = "BLOCK_FENCE"
	ChannelTerminated PayloadType = "CHANNEL_TERMINATED"
)

// Identity is the envelope spec §3.1 requires atomically present on every
// block/segment-scoped event: "all four present or event rejected at
// emission". AssetUUID is the sole field allowed empty, and only when
// SegmentType is "PAD" (a pad segment has no backing asset).
type Identity struct {
	BlockID     string
	SegmentUUID string
	SegmentType string
	AssetUUID   string
}

// IdentityError reports an incomplete identity envelope, rejected at
// construction rather than downstream in the spool (spec §7 design note,
// "Implementers should enforce the identity envelope at event
// construction (not at event consumption)").
type IdentityError struct {
	Identity Identity
	Reason   string
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("evidence: incomplete identity envelope %+v: %s", e.Identity, e.Reason)
}

func (id Identity) validate() error {
	if id.BlockID == "" {
		return &IdentityError{Identity: id, Reason: "block_id missing"}
	}
	if id.SegmentUUID == "" {
		return &IdentityError{Identity: id, Reason: "segment_uuid missing"}
	}
	if id.SegmentType == "" {
		return &IdentityError{Identity: id, Reason: "segment_type missing"}
	}
	if id.AssetUUID == "" && id.SegmentType != "PAD" {
		return &IdentityError{Identity: id, Reason: "asset_uuid missing for non-PAD segment"}
	}
	return nil
}

// ErrEmitterClosed is returned by Emit after the Emitter has emitted its
// session's CHANNEL_TERMINATED event.
var ErrEmitterClosed = errors.New("evidence: emitter closed after CHANNEL_TERMINATED")

// Event is one emitted evidence record (spec §4.8 "Evidence wire format").
type Event struct {
	SchemaVersion    int            `json:"schema_version"`
	ChannelID        string         `json:"channel_id"`
	PlayoutSessionID string         `json:"playout_session_id"`
	Sequence         int64          `json:"sequence"`
	EventUUID        string         `json:"event_uuid"`
	EmittedUTC       int64          `json:"emitted_utc"`
	PayloadType      PayloadType    `json:"payload_type"`
	Identity         *Identity      `json:"identity,omitempty"`
	Payload          map[string]any `json:"payload"`
}

const schemaVersion = 1

// Sink receives each constructed event for durable spooling (spec §4.8
// "Spool writer thread. Consumes from an in-memory queue of evidence
// events... never runs on the tick thread").
type Sink interface {
	Enqueue(Event)
}

// Emitter is the sole owner of a session's evidence sequence (spec §5,
// "Shared resources: evidence sequence is owned solely by the Emitter").
type Emitter struct {
	clk       *clock.Clock
	sink      Sink
	channelID string

	sessionID string
	seq       int64
	closed    bool
}

// New constructs an Emitter for channelID/sessionID. Events are handed to
// sink as they are constructed.
func New(clk *clock.Clock, sink Sink, channelID, sessionID string) *Emitter {
	return &Emitter{clk: clk, sink: sink, channelID: channelID, sessionID: sessionID}
}

// ResetSession starts a new playout_session_id, resetting sequence to 1 on
// the next Emit call (spec §3.1, "a new playout_session_id resetting
// sequence to 1").
func (e *Emitter) ResetSession(sessionID string) {
	e.sessionID = sessionID
	e.seq = 0
	e.closed = false
}

// Emit constructs and hands off one evidence event. For every payload type
// except CHANNEL_TERMINATED, id must pass the identity-envelope check or
// the event is rejected and never reaches the sink. Sequence is assigned
// strictly +1, gapless, regardless of payload type.
func (e *Emitter) Emit(payloadType PayloadType, id *Identity, payload map[string]any) (Event, error) {
	if e.closed {
		return Event{}, ErrEmitterClosed
	}

	if payloadType != ChannelTerminated {
		if id == nil {
			return Event{}, &IdentityError{Reason: "identity envelope required for " + string(payloadType)}
		}
		if err := id.validate(); err != nil {
			return Event{}, err
		}
	}

	e.seq++
	ev := Event{
		SchemaVersion:    schemaVersion,
		ChannelID:        e.channelID,
		PlayoutSessionID: e.sessionID,
		Sequence:         e.seq,
		EventUUID:        uuid.NewString(),
		EmittedUTC:       e.clk.NowUTCUs(),
		PayloadType:      payloadType,
		Identity:         id,
		Payload:          payload,
	}

	if e.sink != nil {
		e.sink.Enqueue(ev)
	}

	if payloadType == ChannelTerminated {
		e.closed = true
	}

	return ev, nil
}

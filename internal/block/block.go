// Package block implements the scheduled-time-slot entities (spec §3.1:
// Block, Segment) and the preview/live slot lifecycle the Pipeline Manager
// drives (spec §4.5).
package block

import "github.com/google/uuid"

// SegmentType classifies a segment's content source.
type SegmentType int

const (
	SegmentContent SegmentType = iota
	SegmentFiller
	SegmentPad
)

func (t SegmentType) String() string {
	switch t {
	case SegmentContent:
		return "CONTENT"
	case SegmentFiller:
		return "FILLER"
	case SegmentPad:
		return "PAD"
	default:
		return "UNKNOWN"
	}
}

// Segment is a block's internal composition unit. It carries no timing
// authority of its own (spec §3.1): a block's fence and budget alone decide
// when output stops, never a segment's own exhaustion.
type Segment struct {
	UUID        string // assigned at block-feed time, unique per block-execution-instance, immutable
	AssetUUID   string // present iff Type is Content or Filler; empty iff Type is Pad
	Type        SegmentType
	Index       int // display-only; may change under JIP renumbering
	DurationMs  int64
}

// NewSegment assigns a fresh segment_uuid and returns a Segment ready to be
// appended to a Block.
func NewSegment(assetUUID string, typ SegmentType, index int, durationMs int64) Segment {
	return Segment{
		UUID:       uuid.NewString(),
		AssetUUID:  assetUUID,
		Type:       typ,
		Index:      index,
		DurationMs: durationMs,
	}
}

// State is a preview-slot lifecycle state (spec §4.5).
type State int

const (
	StateEmpty State = iota
	StateLoaded
	StatePriming
	StateReady
	StateLive
	StateRetired
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "kEmpty"
	case StateLoaded:
		return "kLoaded"
	case StatePriming:
		return "kPriming"
	case StateReady:
		return "kReady"
	case StateLive:
		return "kLive"
	case StateRetired:
		return "kRetired"
	default:
		return "unknown"
	}
}

// Block is a scheduled time slot owned by the session. ScheduledStartMs and
// ScheduledDurationMs come from Core's block plan; BlockStartTick and
// FenceTick are derived at activation and are
// immutable once loaded (spec §3.1): "the fence and budget never change."
type Block struct {
	ID                 string // Core-assigned, opaque
	ScheduledStartMs   int64
	ScheduledDurationMs int64
	Segments           []Segment

	State State

	BlockStartTick int64
	FenceTick      int64

	// EnteredMidExecution is set when this block is loaded via
	// join-in-progress — entry after its scheduled start (spec §4.5 JIP).
	EnteredMidExecution bool
}

// New constructs a Block in state kEmpty for the given Core-assigned ID,
// schedule, and segment list.
func New(id string, scheduledStartMs, scheduledDurationMs int64, segments []Segment) *Block {
	return &Block{
		ID:                  id,
		ScheduledStartMs:    scheduledStartMs,
		ScheduledDurationMs: scheduledDurationMs,
		Segments:            segments,
		State:               StateEmpty,
	}
}

// Activate assigns BlockStartTick and FenceTick at the fence tick when this
// block becomes live. Called exactly once per block (spec §3.1: "Immutable
// once loaded").
func (b *Block) Activate(blockStartTick, fenceTick int64) {
	b.BlockStartTick = blockStartTick
	b.FenceTick = fenceTick
	b.State = StateLive
}

// InitialBudget returns fence_tick - block_start_tick, the arithmetic
// identity spec §3.1/§4.3 define the frame budget as.
func (b *Block) InitialBudget() int64 {
	return b.FenceTick - b.BlockStartTick
}

// RenumberForEntry reassigns display-only segment indices starting from 0
// at entrySegmentIndex, for join-in-progress entry (spec §4.5). Segment and
// asset UUIDs are never touched; reporting must correlate segments by UUID
// only, never by position (spec §4.5).
func (b *Block) RenumberForEntry(entrySegmentIndex int) {
	if entrySegmentIndex < 0 || entrySegmentIndex >= len(b.Segments) {
		return
	}
	b.EnteredMidExecution = true
	remaining := b.Segments[entrySegmentIndex:]
	for i := range remaining {
		remaining[i].Index = i
	}
}

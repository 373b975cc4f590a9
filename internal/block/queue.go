package block

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrSlotBusy is returned by LoadPreview when the preview slot already
// holds a block that has not been retired (spec §4.5: only one block may
// occupy preview at a time).
var ErrSlotBusy = errors.New("block: preview slot already occupied")

// ErrNoPreview is returned by SwitchToLive when there is nothing staged in
// preview to promote.
var ErrNoPreview = errors.New("block: no block staged in preview")

// Queue owns the live and preview block slots for one session. It is the
// single writer of BlockState transitions (spec §5, "Shared resources: the
// block queue... is owned solely by the Pipeline Manager").
type Queue struct {
	log *slog.Logger

	mu      sync.RWMutex
	live    *Block
	preview *Block
	history []*Block // retired blocks kept for evidence/debug lookups
}

// NewQueue creates an empty Queue. If log is nil, slog.Default() is used.
func NewQueue(log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	return &Queue{log: log.With("component", "block-queue")}
}

// LoadPreview stages b in the preview slot in state kLoaded. Returns
// ErrSlotBusy if preview is already occupied by a block that hasn't been
// retired.
func (q *Queue) LoadPreview(b *Block) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.preview != nil && q.preview.State != StateRetired {
		q.log.Warn("preview slot busy, rejecting load", "busy_block", q.preview.ID, "rejected_block", b.ID)
		return ErrSlotBusy
	}

	b.State = StateLoaded
	q.preview = b
	q.log.Info("block loaded into preview", "block_id", b.ID)
	return nil
}

// Preview returns the current preview-slot block, or nil if empty.
func (q *Queue) Preview() *Block {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.preview
}

// Live returns the current live-slot block, or nil if empty.
func (q *Queue) Live() *Block {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.live
}

// MarkPriming and MarkReady record preview-slot priming progress (spec
// §4.4, lookahead priming before a block may go live).
func (q *Queue) MarkPriming() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.preview != nil {
		q.preview.State = StatePriming
	}
}

func (q *Queue) MarkReady() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.preview != nil {
		q.preview.State = StateReady
	}
}

// SwitchToLive performs the A/B swap (spec §4.5): the current live block
// (if any) is retired, and the preview block is promoted to live and
// activated at blockStartTick/fenceTick. Returns the newly-live block.
func (q *Queue) SwitchToLive(blockStartTick, fenceTick int64) (*Block, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.preview == nil {
		return nil, ErrNoPreview
	}

	if q.live != nil {
		q.live.State = StateRetired
		q.history = append(q.history, q.live)
		q.log.Info("block retired", "block_id", q.live.ID)
	}

	next := q.preview
	next.Activate(blockStartTick, fenceTick)
	q.live = next
	q.preview = nil

	q.log.Info("block switched to live", "block_id", next.ID,
		"block_start_tick", blockStartTick, "fence_tick", fenceTick)
	return next, nil
}

// History returns all retired blocks in retirement order, for evidence and
// debug lookups keyed by block ID or segment UUID.
func (q *Queue) History() []*Block {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]*Block, len(q.history))
	copy(out, q.history)
	return out
}

// FindSegment locates a segment by UUID across the live block and the
// retained history, never by positional index (spec §4.5: JIP-renumbered
// blocks must be correlated by UUID only).
func (q *Queue) FindSegment(segmentUUID string) (blockID string, seg Segment, ok bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	candidates := make([]*Block, 0, len(q.history)+2)
	if q.live != nil {
		candidates = append(candidates, q.live)
	}
	candidates = append(candidates, q.history...)
	if q.preview != nil {
		candidates = append(candidates, q.preview)
	}

	for _, b := range candidates {
		for _, s := range b.Segments {
			if s.UUID == segmentUUID {
				return b.ID, s, true
			}
		}
	}
	return "", Segment{}, false
}

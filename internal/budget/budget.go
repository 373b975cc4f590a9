// Package budget implements the per-block frame budget counter (spec §4.3):
// a count derived once from the fence range, decremented exactly once per
// emitted frame, never modified otherwise.
package budget

import "fmt"

// ViolationError reports that remaining_block_frames went negative — a
// severe logic bug (emit without check, or decrement without emit), never
// an expected runtime condition. Per spec §4.3 "Violation policy", this is
// fatal to the block (abandon it, continue the session with the next
// block), not fatal to the process.
type ViolationError struct {
	BlockID   string
	Remaining int64
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("budget: block %q remaining_block_frames went negative (%d)", e.BlockID, e.Remaining)
}

// Counter tracks remaining_block_frames for one block. It is owned solely
// by the Pipeline Manager (spec §5, "Shared resources") — no other writer.
type Counter struct {
	blockID   string
	remaining int64
}

// New initializes a Counter for blockID with remaining_block_frames set to
// fenceTick-blockStartTick exactly once, per spec §4.3 and the arithmetic
// identity in §3.2 ("remaining_block_frames = fence_tick − session_frame_index").
func New(blockID string, blockStartTick, fenceTick int64) *Counter {
	return &Counter{
		blockID:   blockID,
		remaining: fenceTick - blockStartTick,
	}
}

// Remaining returns the current remaining_block_frames.
func (c *Counter) Remaining() int64 {
	return c.remaining
}

// HasBudget reports whether at least one frame may still be emitted this
// tick for the live block (spec §4.3 "Use").
func (c *Counter) HasBudget() bool {
	return c.remaining > 0
}

// Decrement consumes exactly one unit of budget for one emitted frame
// (real, freeze, or black — spec §3.1, a frame consumes exactly one unit
// regardless of source). Returns a *ViolationError if the result would be
// negative; the counter is still decremented so the violation is visible
// in telemetry, but the caller must abandon the block.
func (c *Counter) Decrement() error {
	c.remaining--
	if c.remaining < 0 {
		return &ViolationError{BlockID: c.blockID, Remaining: c.remaining}
	}
	return nil
}

// CheckConvergence verifies the arithmetic identity
// remaining_block_frames == fenceTick - sessionFrameIndex (spec §4.3
// "Convergence"). This is a diagnostic check, never a timing trigger: the
// fence firing is authoritative regardless of what this reports (spec §7,
// "Fence/budget disagreement").
func (c *Counter) CheckConvergence(fenceTick, sessionFrameIndex int64) bool {
	return c.remaining == fenceTick-sessionFrameIndex
}

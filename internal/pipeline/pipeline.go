// Package pipeline implements the Pipeline Manager (spec §4.5): the
// central state machine that owns the live/preview block slots, the
// session clock, and the tick loop driving one frame period at a time. It
// is grounded on internal/pipeline/pipeline.go's Run(ctx)-loop-with-select
// shape, retargeted from "forward whatever the demuxer channels produce"
// to "drive one tick per frame period, swap A/B before emission".
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/airplayout/core/internal/block"
	"github.com/airplayout/core/internal/budget"
	"github.com/airplayout/core/internal/clock"
	"github.com/airplayout/core/internal/evidence"
	"github.com/airplayout/core/internal/fence"
	"github.com/airplayout/core/internal/lookahead"
	"github.com/airplayout/core/internal/media"
	"github.com/airplayout/core/internal/metrics"
	"github.com/airplayout/core/internal/producer"
	"github.com/airplayout/core/internal/sink"
	"github.com/airplayout/core/internal/timeline"
)

// ErrNoLiveOrPreview is returned by Run when a fence fires (or the session
// is starting cold) and there is nothing staged in preview to promote —
// the tick loop has no block to drive and must stop.
var ErrNoLiveOrPreview = errors.New("pipeline: fence fired with no preview block staged")

// previewSlot bundles a staged block's producer and preloader — the
// pieces the block.Queue's single preview Block pointer doesn't itself
// carry, since decode plumbing is outside the block package's scope.
type previewSlot struct {
	producer  producer.TickProducer
	preloader *lookahead.Preloader
}

// Session is the Pipeline Manager for one channel's playout session. It is
// the sole writer of session_frame_index, the live frame budget, and the
// block queue's transitions (spec §5, "Shared resources").
type Session struct {
	log       *slog.Logger
	channelID string

	clk   *clock.Clock
	rate  fence.Rate
	tl    *timeline.Controller
	queue *block.Queue

	emitter *evidence.Emitter
	out     sink.Sink

	// onPreviewNeeded is called synchronously right after a swap (spec
	// §4.5 step 2, "load the subsequent block into the preview slot,
	// signal the Preloader"): fetching the next block is the control
	// layer's job, not the tick loop's — this hook is how the tick loop
	// asks for it without ever blocking on the answer.
	onPreviewNeeded func()

	mu                sync.Mutex
	sessionFrameIndex int64
	liveBudget        *budget.Counter
	liveProducer      producer.TickProducer
	pending           *previewSlot

	currentSegmentUUID string
	blockStartEmitted  bool
	blockFramesEmitted int64
	earlyExhaustion    bool
	terminated         bool
}

// New constructs a Session. clk must not yet have its epoch set; Run sets
// it on first entry with RoleLive (spec §4.1: "Only a LIVE producer may
// set the epoch").
func New(channelID string, clk *clock.Clock, rate fence.Rate, queue *block.Queue, emitter *evidence.Emitter, out sink.Sink, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		log:       log.With("component", "pipeline", "channel", channelID),
		channelID: channelID,
		clk:       clk,
		rate:      rate,
		tl:        timeline.New(timeline.Rate{Num: rate.Num, Den: rate.Den}),
		queue:     queue,
		emitter:   emitter,
		out:       out,
	}
}

// SetPreviewNeededHandler registers the callback invoked after every
// successful swap.
func (s *Session) SetPreviewNeededHandler(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPreviewNeeded = fn
}

// StagePreview loads b into the block queue's preview slot along with the
// TickProducer and Preloader that will drive it once promoted to live.
// Returns block.ErrSlotBusy if preview is already occupied.
func (s *Session) StagePreview(b *block.Block, tp producer.TickProducer, preloader *lookahead.Preloader) error {
	if err := s.queue.LoadPreview(b); err != nil {
		return err
	}
	s.mu.Lock()
	s.pending = &previewSlot{producer: tp, preloader: preloader}
	s.mu.Unlock()
	s.queue.MarkPriming()
	return nil
}

// ReplacePendingProducer swaps the staged preview block's TickProducer,
// used once a PrimedProducer wrapping the Preloader's first decoded frame
// becomes available after StagePreview already staged a plain producer
// (spec §4.4 Preloader). A no-op if nothing is staged or the preview slot
// has already been promoted to live.
func (s *Session) ReplacePendingProducer(tp producer.TickProducer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		s.pending.producer = tp
	}
}

// MarkEarlyExhaustion records that the live block's content ran out before
// the fence fired (spec §4.8 "early_exhaustion"). Called by the decode
// side when the last segment's decoder reports EOF with budget remaining.
func (s *Session) MarkEarlyExhaustion() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.earlyExhaustion = true
}

// tickDeadline computes the exact wall-clock instant tick must not fire
// before, using integer rational arithmetic against the monotonic anchor
// (spec §5 "monotonic clock enforcement — resistant to wall-clock steps").
// No floating point: the forbidden-alternatives rule for fence computation
// (spec §4.2) applies here too, since the same ±1-frame drift risk exists
// for any float duration×rate product repeated every tick.
func tickDeadline(anchor time.Time, rate fence.Rate, tick int64) time.Time {
	numNs := tick * rate.Den * int64(time.Second)
	offset := time.Duration(numNs / rate.Num)
	return anchor.Add(offset)
}

// Run starts the tick loop. It blocks until ctx is cancelled or a fatal
// condition (audio hard fault, no preview at fence, budget violation with
// nothing to swap to) ends the session, emitting CHANNEL_TERMINATED
// best-effort before returning.
func (s *Session) Run(ctx context.Context) error {
	epochUs := s.clk.NowUTCUs()
	if _, err := s.clk.TrySetEpochOnce(epochUs, clock.RoleLive); err != nil {
		return err
	}
	anchor := time.Now()
	s.out.Attach(anchor)

	for {
		select {
		case <-ctx.Done():
			return s.terminate("CONTEXT_CANCELLED")
		default:
		}

		s.mu.Lock()
		tick := s.sessionFrameIndex
		s.mu.Unlock()

		deadline := tickDeadline(anchor, s.rate, tick)
		if wait := time.Until(deadline); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return s.terminate("CONTEXT_CANCELLED")
			case <-timer.C:
			}
		}
		// Past deadline: proceed immediately. Never emit more than one
		// frame per tick regardless of how far behind wall clock has
		// fallen — no catch-up bursts (spec §4.5 step 1).

		now := time.Now()
		if now.After(deadline.Add(time.Millisecond)) {
			metrics.RecordTickDeadlineMiss(s.channelID)
		}
		if err := s.runTick(tick, now); err != nil {
			s.log.Error("tick failed, terminating session", "tick", tick, "error", err)
			return s.terminate(reasonForErr(err))
		}

		s.mu.Lock()
		s.sessionFrameIndex++
		s.mu.Unlock()
	}
}

// recordFallbackFrame increments the telemetry counter for whichever
// fallback source (if any) produced this tick's frames (spec §6
// Telemetry: "silence-frames-injected").
func recordFallbackFrame(channelID string, video *media.VideoFrame, audio *media.AudioFrame) {
	if video != nil {
		switch video.Source {
		case media.VideoFreeze:
			metrics.RecordFreezeFrame(channelID)
		case media.VideoBlack:
			metrics.RecordBlackFrame(channelID)
		}
	}
	if audio != nil && audio.Source == media.AudioSilence {
		metrics.RecordSilenceFrame(channelID)
	}
}

func reasonForErr(err error) string {
	switch {
	case errors.Is(err, producer.ErrAudioUnderflow):
		return "AUDIO_UNDERFLOW"
	case errors.Is(err, ErrNoLiveOrPreview):
		return "NO_PREVIEW_AT_FENCE"
	default:
		var ve *budget.ViolationError
		if errors.As(err, &ve) {
			return "BUDGET_VIOLATION"
		}
		return "FAILED"
	}
}

// runTick executes steps 2-6 of the tick algorithm (spec §4.5); step 1
// (deadline wait) is Run's responsibility and step 7 (advance
// session_frame_index) is the caller's, so the arithmetic identity in
// budget.CheckConvergence can be verified against the pre-advance tick.
func (s *Session) runTick(tick int64, now time.Time) error {
	if err := s.checkFenceAndSwap(tick); err != nil {
		return err
	}

	s.mu.Lock()
	liveProducer := s.liveProducer
	liveBudget := s.liveBudget
	s.mu.Unlock()

	if liveProducer == nil || liveBudget == nil {
		return ErrNoLiveOrPreview
	}

	if !liveBudget.HasBudget() {
		// Fence and budget disagree (spec §4.3 "Convergence"): the
		// budget ran out but checkFenceAndSwap did not fire on this
		// tick. The fence stays authoritative; record the disagreement
		// and emit nothing this tick.
		metrics.RecordFenceMismatch(s.channelID)
		return nil
	}
	metrics.SetRemainingBlockFrames(s.channelID, float64(liveBudget.Remaining()))

	video := liveProducer.NextVideo(now)
	audio, audioErr := liveProducer.NextAudio()
	if audioErr != nil {
		return audioErr
	}
	recordFallbackFrame(s.channelID, video, audio)

	if err := liveBudget.Decrement(); err != nil {
		s.log.Error("frame budget violation, abandoning block", "error", err)
		metrics.RecordFrameBudgetUnderflow(s.channelID)
		s.abandonLiveBlock()
		return nil
	}

	live := s.queue.Live()
	segUUID := video.SegmentUUID
	if segUUID == "" {
		segUUID = audio.SegmentUUID
	}
	ct := s.tl.AdmitFrame(tick, segUUID)
	video.CT, video.SessionFrameIndex = ct, tick
	audio.CT, audio.SessionFrameIndex = ct, tick

	if err := s.out.WriteVideo(video, now); err != nil {
		s.log.Error("sink write video failed", "error", err)
	}
	if err := s.out.WriteAudio(audio, now); err != nil {
		s.log.Error("sink write audio failed", "error", err)
	}

	s.emitBlockStart(live, tick)
	s.emitSegmentTransition(live, segUUID)

	s.mu.Lock()
	s.blockFramesEmitted++
	s.mu.Unlock()

	return nil
}

// checkFenceAndSwap performs step 2 of the tick algorithm: if there is no
// live block yet (cold start), the live block was abandoned, or
// session_frame_index equals the live block's fence tick, the A/B swap
// runs before this tick's own emission so the fence tick's frame belongs
// to the incoming block (spec §4.5 "A/B swap ordering"). A fence that
// fires with budget left is recorded as a fence mismatch.
func (s *Session) checkFenceAndSwap(tick int64) error {
	live := s.queue.Live()
	s.mu.Lock()
	liveBudget := s.liveBudget
	s.mu.Unlock()
	abandoned := live != nil && liveBudget == nil
	if live != nil && !abandoned && tick != live.FenceTick {
		return nil
	}
	if live != nil && !abandoned && liveBudget.Remaining() != 0 {
		metrics.RecordFenceMismatch(s.channelID)
	}

	preview := s.queue.Preview()

	if live != nil {
		s.emitBlockFence(live, tick, incomingIsOutOfNetwork(preview))
	}

	if preview == nil {
		return ErrNoLiveOrPreview
	}

	s.mu.Lock()
	pending := s.pending
	s.mu.Unlock()
	if pending == nil {
		return ErrNoLiveOrPreview
	}

	blockStartTick := tick
	fenceDeltaMs := preview.ScheduledStartMs + preview.ScheduledDurationMs
	fenceTick := s.rate.Tick(fenceDeltaMs)

	newLive, err := s.queue.SwitchToLive(blockStartTick, fenceTick)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.liveBudget = budget.New(newLive.ID, blockStartTick, fenceTick)
	s.liveProducer = pending.producer
	s.pending = nil
	s.blockStartEmitted = false
	s.blockFramesEmitted = 0
	s.earlyExhaustion = false
	s.currentSegmentUUID = ""
	handler := s.onPreviewNeeded
	s.mu.Unlock()

	if handler != nil {
		handler()
	}
	return nil
}

// abandonLiveBlock clears the live budget and producer after a budget
// violation (spec §4.3 "Violation policy"). On the next tick
// checkFenceAndSwap sees a live block with no budget and swaps in the
// staged preview block at once, as at a fence; with nothing staged the
// session ends with ErrNoLiveOrPreview.
func (s *Session) abandonLiveBlock() {
	s.mu.Lock()
	s.liveBudget = nil
	s.liveProducer = nil
	s.mu.Unlock()
}

func (s *Session) emitBlockStart(live *block.Block, tick int64) {
	s.mu.Lock()
	already := s.blockStartEmitted
	s.blockStartEmitted = true
	s.mu.Unlock()
	if already || live == nil || s.emitter == nil {
		return
	}
	metrics.RecordBlockStart(s.channelID)

	id := &evidence.Identity{BlockID: live.ID, SegmentType: "BLOCK", AssetUUID: live.ID, SegmentUUID: live.ID}
	if _, err := s.emitter.Emit(evidence.BlockStart, id, map[string]any{
		"block_start_tick": live.BlockStartTick,
		"fence_tick":        live.FenceTick,
		"swap_tick":         tick,
	}); err != nil {
		s.log.Error("BLOCK_START rejected", "error", err)
	}
}

// incomingIsOutOfNetwork reports whether the block about to become live
// opens with a PAD segment — entry into a break, per the splice_insert
// out_of_network_indicator semantics (spec §11). A nil preview (fence
// firing with nothing staged) is treated as a return to network, since
// there is no break to signal entry into.
func incomingIsOutOfNetwork(preview *block.Block) bool {
	if preview == nil || len(preview.Segments) == 0 {
		return false
	}
	return preview.Segments[0].Type == block.SegmentPad
}

func (s *Session) emitBlockFence(live *block.Block, tick int64, outOfNetwork bool) {
	if s.emitter == nil {
		return
	}
	s.mu.Lock()
	frames := s.blockFramesEmitted
	earlyExhaustion := s.earlyExhaustion
	s.mu.Unlock()

	payload := map[string]any{
		"fence_tick":         tick,
		"total_frames":       frames,
		"early_exhaustion":   earlyExhaustion,
		"truncated_by_fence": !earlyExhaustion,
		"out_of_network":     outOfNetwork,
	}
	if cue, err := sink.BuildFenceCue(tick, outOfNetwork); err != nil {
		s.log.Error("splice_insert cue build failed", "error", err)
	} else {
		payload["splice_insert_cue"] = cue
	}

	id := &evidence.Identity{BlockID: live.ID, SegmentType: "BLOCK", AssetUUID: live.ID, SegmentUUID: live.ID}
	if _, err := s.emitter.Emit(evidence.BlockFence, id, payload); err != nil {
		s.log.Error("BLOCK_FENCE rejected", "error", err)
	}
}

// emitSegmentTransition emits SEGMENT_END for the outgoing segment and
// SEGMENT_START for the incoming one whenever the admitted frame's
// segment_uuid changes (spec §4.8 emission seams).
func (s *Session) emitSegmentTransition(live *block.Block, newSegUUID string) {
	if s.emitter == nil || live == nil || newSegUUID == "" {
		return
	}
	s.mu.Lock()
	prev := s.currentSegmentUUID
	s.currentSegmentUUID = newSegUUID
	s.mu.Unlock()

	if prev == newSegUUID {
		return
	}

	if prev != "" {
		if _, seg, ok := s.queue.FindSegment(prev); ok {
			id := &evidence.Identity{BlockID: live.ID, SegmentUUID: seg.UUID, SegmentType: seg.Type.String(), AssetUUID: seg.AssetUUID}
			if _, err := s.emitter.Emit(evidence.SegmentEnd, id, map[string]any{
				"status": "COMPLETED",
			}); err != nil {
				s.log.Error("SEGMENT_END rejected", "error", err)
			}
			metrics.RecordSegmentCompletion(s.channelID, "COMPLETED")
		}
	}

	if _, seg, ok := s.queue.FindSegment(newSegUUID); ok {
		id := &evidence.Identity{BlockID: live.ID, SegmentUUID: seg.UUID, SegmentType: seg.Type.String(), AssetUUID: seg.AssetUUID}
		if _, err := s.emitter.Emit(evidence.SegmentStart, id, nil); err != nil {
			s.log.Error("SEGMENT_START rejected", "error", err)
		}
	}
}

// terminate emits CHANNEL_TERMINATED best-effort (spec §4.8: "on fatal
// teardown (best-effort)") and closes the sink.
func (s *Session) terminate(reason string) error {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return nil
	}
	s.terminated = true
	s.mu.Unlock()

	if s.emitter != nil {
		if _, err := s.emitter.Emit(evidence.ChannelTerminated, nil, map[string]any{
			"reason": reason,
		}); err != nil {
			s.log.Warn("CHANNEL_TERMINATED emit failed", "error", err)
		}
	}
	if s.out != nil {
		if err := s.out.Close(); err != nil {
			s.log.Warn("sink close failed", "error", err)
		}
	}
	if reason == "CONTEXT_CANCELLED" {
		return nil
	}
	return errors.New("pipeline: session terminated: " + reason)
}

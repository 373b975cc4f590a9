package control

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/airplayout/core/internal/block"
	"github.com/airplayout/core/internal/clock"
	"github.com/airplayout/core/internal/lookahead"
	"github.com/airplayout/core/internal/metrics"
	"github.com/airplayout/core/internal/pipeline"
	"github.com/airplayout/core/internal/producer"
	"github.com/airplayout/core/internal/sink"
	"github.com/airplayout/core/internal/spool"
)

// Manager owns every active channel's lifecycle. It is the implementation
// behind the gRPC control surface's five calls (spec §6); the gRPC server
// itself is an external adapter this package never imports or depends on.
type Manager struct {
	log           *slog.Logger
	evidenceRoot  string
	maxSpoolBytes int64

	mu       sync.Mutex
	channels map[string]*channel
}

// NewManager constructs a Manager. evidenceRoot is the spool directory
// root (spec §4.8 "<root>/evidence_spool/<channel_id>/<session_id>...");
// maxSpoolBytes is the per-session disk cap.
func NewManager(evidenceRoot string, maxSpoolBytes int64, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:           log.With("component", "control-manager"),
		evidenceRoot:  evidenceRoot,
		maxSpoolBytes: maxSpoolBytes,
		channels:      make(map[string]*channel),
	}
}

// StartChannel creates a new session for channelID (spec §6: "Creates the
// session; program_format_json carries fps, resolution, sample rate,
// channels"). Returns ResultRejectedBusy if the channel already has a
// running session.
func (m *Manager) StartChannel(channelID, planHandle string, port int, udsPath string, programFormatJSON []byte) (ResultCode, error) {
	format, err := ParseProgramFormat(programFormatJSON)
	if err != nil {
		return ResultFailed, err
	}

	m.mu.Lock()
	if _, exists := m.channels[channelID]; exists {
		m.mu.Unlock()
		return ResultRejectedBusy, fmt.Errorf("control: channel %q already started", channelID)
	}
	m.mu.Unlock()

	sessionID := fmt.Sprintf("%s-%d", channelID, time.Now().UnixNano())
	clk := clock.New()
	queue := block.NewQueue(m.log)

	spoolWriter, err := spool.NewWriter(m.evidenceRoot, channelID, sessionID, m.maxSpoolBytes, m.log)
	if err != nil {
		return ResultFailed, fmt.Errorf("control: open evidence spool: %w", err)
	}

	emitter := newEmitter(clk, spoolWriter, channelID, sessionID)

	var out sink.Sink
	if udsPath != "" {
		out, err = dialUdsSink(udsPath, m.log)
	} else {
		out, err = dialMpegTSSink(port, m.log)
	}
	if err != nil {
		return ResultFailed, fmt.Errorf("control: open sink: %w", err)
	}

	session := pipeline.New(channelID, clk, format.FPS, queue, emitter, out, m.log)

	ch := &channel{
		id:          channelID,
		planHandle:  planHandle,
		format:      format,
		clk:         clk,
		queue:       queue,
		session:     session,
		spoolWriter: spoolWriter,
		out:         out,
		runDone:     make(chan error, 1),
		spoolDone:   make(chan error, 1),
	}

	session.SetPreviewNeededHandler(func() {
		m.log.Info("preview slot freed, awaiting next LoadPreview", "channel", channelID)
	})

	runCtx, cancel := context.WithCancel(context.Background())
	ch.runCtx = runCtx
	ch.runCancel = cancel

	go func() { ch.spoolDone <- spoolWriter.Run(runCtx) }()
	go func() { ch.runDone <- session.Run(runCtx) }()

	m.mu.Lock()
	m.channels[channelID] = ch
	m.mu.Unlock()
	metrics.IncActiveChannels()

	m.log.Info("channel started", "channel", channelID, "session", sessionID, "fps", format.FPS)
	return ResultOK, nil
}

// StopChannel cooperatively stops channelID's session and drains its
// spool writer before returning (spec §6 "cooperative stop with bounded
// drain").
func (m *Manager) StopChannel(channelID string) (ResultCode, error) {
	m.mu.Lock()
	ch, ok := m.channels[channelID]
	if ok {
		delete(m.channels, channelID)
	}
	m.mu.Unlock()

	if !ok {
		return ResultFailed, fmt.Errorf("control: channel %q not running", channelID)
	}

	ch.stop(m.log)
	metrics.DecActiveChannels()
	m.log.Info("channel stopped", "channel", channelID)
	return ResultOK, nil
}

// LoadPreview loads the next block into channelID's preview slot,
// frame-indexed per spec §6 ("Frame-indexed; no millisecond arithmetic").
// frameCount sets the block's ScheduledDurationMs through fpsNum/fpsDen;
// its ScheduledStartMs is the live block's scheduled end (0 with no live
// block), so the fence computation in §4.2 still runs in its own
// millisecond domain. startFrame only feeds the block ID.
func (m *Manager) LoadPreview(channelID, assetPath string, startFrame, frameCount, fpsNum, fpsDen int64) (ResultCode, error) {
	ch, ok := m.channelFor(channelID)
	if !ok {
		return ResultFailed, fmt.Errorf("control: channel %q not running", channelID)
	}

	if fpsNum <= 0 || fpsDen <= 0 {
		return ResultProtocolViolation, fmt.Errorf("control: invalid fps %d/%d", fpsNum, fpsDen)
	}

	scheduledDurationMs := (frameCount * fpsDen * 1000) / fpsNum

	segType := block.SegmentContent
	if assetPath == "" {
		// No asset named: the caller is scheduling a filler/PAD slot
		// rather than content (spec §9 "PadProducer" variant).
		segType = block.SegmentPad
	}
	seg := block.NewSegment(assetPath, segType, 0, scheduledDurationMs)
	live := ch.queue.Live()
	scheduledStartMs := int64(0)
	if live != nil {
		scheduledStartMs = live.ScheduledStartMs + live.ScheduledDurationMs
	}
	b := block.New(fmt.Sprintf("%s-%d", channelID, startFrame), scheduledStartMs, scheduledDurationMs, []block.Segment{seg})

	if entryIdx, ok := entrySegmentIndexAt(b, ch.clk); ok {
		b.RenumberForEntry(entryIdx)
		m.log.Info("block entered mid-execution, segments renumbered", "channel", channelID, "block_id", b.ID, "entry_index", entryIdx)
	}

	var (
		tp        producer.TickProducer
		pair      *lookahead.Pair
		preloader *lookahead.Preloader
	)
	if segType == block.SegmentPad {
		tp = producer.NewPadProducer(m.log)
		preloader = lookahead.NewPreloader()
		preloader.MarkPrimed() // nothing to decode, so there is nothing to wait on
	} else {
		tp, pair, preloader = buildAssetProducer(channelID, m.log)
	}

	if err := ch.session.StagePreview(b, tp, preloader); err != nil {
		if err == block.ErrSlotBusy {
			return ResultRejectedBusy, err
		}
		return ResultFailed, err
	}
	ch.setPendingPreview(preloader)

	if pair != nil {
		go m.primePendingProducer(ch, pair, preloader)
	}

	m.log.Info("preview loaded", "channel", channelID, "block_id", b.ID, "asset", assetPath)
	return ResultOK, nil
}

// entrySegmentIndexAt computes which of b's segments covers the session
// clock's current position, for join-in-progress detection (spec §4.5
// JIP). ok is false when the epoch isn't set yet or b hasn't reached its
// scheduled start, meaning this is an ordinary on-time load, not mid-block
// entry.
func entrySegmentIndexAt(b *block.Block, clk *clock.Clock) (index int, ok bool) {
	epochUs, set := clk.SessionEpochUs()
	if !set {
		return 0, false
	}
	nowMs := (clk.NowUTCUs() - epochUs) / 1000
	if nowMs <= b.ScheduledStartMs {
		return 0, false
	}
	offset := b.ScheduledStartMs
	for i, seg := range b.Segments {
		if nowMs < offset+seg.DurationMs {
			return i, true
		}
		offset += seg.DurationMs
	}
	return len(b.Segments) - 1, true
}

// primePendingProducer waits for the preview block's Preloader to signal
// a primed first frame (or for the channel to stop first), then swaps the
// staged FileProducer for a PrimedProducer over the same pair so the swap
// tick is served from memory (spec §4.4 Preloader, §9 "PrimedProducer"
// variant). Priming is best-effort: if nothing is in the pair yet when
// the Preloader fires, the staged FileProducer is left in place and the
// swap tick falls through to the ordinary fallback chain.
func (m *Manager) primePendingProducer(ch *channel, pair *lookahead.Pair, preloader *lookahead.Preloader) {
	select {
	case <-preloader.Ready():
	case <-ch.runCtx.Done():
		return
	}

	video, _ := pair.Video.TryPop()
	audio, _ := pair.Audio.TryPop()
	if video == nil && audio == nil {
		return
	}

	primed := producer.NewPrimedProducer(pair, video, audio, m.log)
	ch.session.ReplacePendingProducer(primed)
	m.log.Debug("preview producer primed from preloader", "channel", ch.id)
}

// SwitchToLive checks channelID's swap preconditions (spec §6); it arms
// nothing itself. The actual A/B swap
// is driven by the Pipeline Manager's own fence-tick detection; this call
// validates preconditions and reports readiness. issuedAtTimeMs and
// targetBoundaryTimeMs are accepted for protocol compatibility with the
// external gRPC surface but are advisory only — the fence, not a
// wall-clock-armed command, is authoritative for when the swap actually
// happens (spec §4.5 "Pipeline Manager... never waits").
func (m *Manager) SwitchToLive(channelID string, targetBoundaryTimeMs, issuedAtTimeMs int64) (ResultCode, error) {
	ch, ok := m.channelFor(channelID)
	if !ok {
		return ResultFailed, fmt.Errorf("control: channel %q not running", channelID)
	}

	if !ch.tryBeginSwitch() {
		return ResultRejectedBusy, fmt.Errorf("control: channel %q already has a switch in flight", channelID)
	}
	defer ch.endSwitch()

	preloader := ch.pendingPreviewFor()
	if ch.queue.Preview() == nil || preloader == nil {
		return ResultProtocolViolation, fmt.Errorf("control: channel %q has no preview loaded", channelID)
	}

	if !preloader.Primed() {
		// Transient: the swap still fires at the fence tick regardless
		// (spec §4.7 "priming never gates the swap"); the caller's
		// background watcher re-checks Ready() and can re-arm if it
		// needs confirmation before the fence.
		return ResultNotReady, nil
	}

	return ResultOK, nil
}

// UpdatePlan hot-swaps channelID's block plan handle. A change invalidates
// whatever is staged in preview only if it doesn't match the new plan;
// this minimal implementation accepts any new handle and records it for
// the next LoadPreview call to use (spec §6 "may call the reset path").
func (m *Manager) UpdatePlan(channelID, planHandle string) (ResultCode, error) {
	ch, ok := m.channelFor(channelID)
	if !ok {
		return ResultFailed, fmt.Errorf("control: channel %q not running", channelID)
	}

	ch.mu.Lock()
	ch.planHandle = planHandle
	ch.mu.Unlock()

	m.log.Info("plan updated", "channel", channelID, "plan_handle", planHandle)
	return ResultOK, nil
}

// StopAll stops every running channel, for use during process shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.channels))
	for id := range m.channels {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if _, err := m.StopChannel(id); err != nil {
			m.log.Warn("stop during shutdown failed", "channel", id, "error", err)
		}
	}
}

func (m *Manager) channelFor(channelID string) (*channel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[channelID]
	return ch, ok
}

// Package metrics provides Prometheus metrics for the playout core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// These metrics cover spec §6 Telemetry's named counters: block starts,
// segment completions, frame budget underflows, fence mismatches,
// silence-frames-injected, decode-continued-for-audio-while-video-full,
// and tick deadline misses. Labels are bounded to channel_id and a small
// fixed reason/status vocabulary — no session_id or frame-level
// cardinality.

var (
	// Counters

	// BlockStartsTotal counts BLOCK_START evidence emitted, by channel.
	BlockStartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "air_block_starts_total",
		Help: "Total number of blocks entered, by channel.",
	}, []string{"channel"})

	// SegmentCompletionsTotal counts SEGMENT_END evidence emitted, by
	// channel and completion status (the pipeline records COMPLETED).
	SegmentCompletionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "air_segment_completions_total",
		Help: "Total number of segments completed, by channel and status.",
	}, []string{"channel", "status"})

	// FrameBudgetUnderflowTotal counts ticks where remaining_block_frames
	// would have gone negative before the fence fired (spec P5 violation).
	FrameBudgetUnderflowTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "air_frame_budget_underflow_total",
		Help: "Total number of frame budget underflow violations, by channel.",
	}, []string{"channel"})

	// FenceMismatchTotal counts fence/budget disagreements (spec §7): a
	// fence that fires with budget left, and each tick on which the
	// budget has already reached 0 before the fence.
	FenceMismatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "air_fence_mismatch_total",
		Help: "Total number of fence/budget disagreements, by channel.",
	}, []string{"channel"})

	// SilenceFramesInjectedTotal counts audio frames emitted as silence
	// because no real frame was available.
	SilenceFramesInjectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "air_silence_frames_injected_total",
		Help: "Total number of silence audio frames injected, by channel.",
	}, []string{"channel"})

	// FreezeFramesInjectedTotal counts video frames emitted as a held
	// freeze because no real frame was available within budget.
	FreezeFramesInjectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "air_freeze_frames_injected_total",
		Help: "Total number of freeze video frames injected, by channel.",
	}, []string{"channel"})

	// BlackFramesInjectedTotal counts video frames emitted as black after
	// the freeze ceiling was exceeded.
	BlackFramesInjectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "air_black_frames_injected_total",
		Help: "Total number of black video frames injected, by channel.",
	}, []string{"channel"})

	// DecodeContinuedAudioStarvedTotal counts ticks where video lookahead
	// was full and decode continued only to keep feeding starved audio
	// (spec §4.3's audio-first-under-backpressure policy).
	DecodeContinuedAudioStarvedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "air_decode_continued_audio_starved_total",
		Help: "Total number of ticks decode continued for starved audio while video lookahead was full, by channel.",
	}, []string{"channel"})

	// TickDeadlineMissTotal counts ticks whose wall-clock deadline had
	// already passed by the time the tick was processed.
	TickDeadlineMissTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "air_tick_deadline_miss_total",
		Help: "Total number of ticks processed after their wall-clock deadline, by channel.",
	}, []string{"channel"})

	// Gauges

	// ActiveChannels tracks currently running channel sessions.
	ActiveChannels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "air_active_channels",
		Help: "Current number of running channel sessions.",
	})

	// RemainingBlockFrames tracks the current block's remaining frame
	// budget, by channel (spec P3 convergence, exposed for dashboards).
	RemainingBlockFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "air_remaining_block_frames",
		Help: "Remaining frame budget in the current block, by channel.",
	}, []string{"channel"})
)

// RecordBlockStart increments the block-start counter for channel.
func RecordBlockStart(channel string) {
	BlockStartsTotal.WithLabelValues(channel).Inc()
}

// RecordSegmentCompletion increments the segment-completion counter.
func RecordSegmentCompletion(channel, status string) {
	SegmentCompletionsTotal.WithLabelValues(channel, status).Inc()
}

// RecordFrameBudgetUnderflow increments the underflow violation counter.
func RecordFrameBudgetUnderflow(channel string) {
	FrameBudgetUnderflowTotal.WithLabelValues(channel).Inc()
}

// RecordFenceMismatch increments the fence/budget disagreement counter.
func RecordFenceMismatch(channel string) {
	FenceMismatchTotal.WithLabelValues(channel).Inc()
}

// RecordSilenceFrame increments the injected-silence counter.
func RecordSilenceFrame(channel string) {
	SilenceFramesInjectedTotal.WithLabelValues(channel).Inc()
}

// RecordFreezeFrame increments the injected-freeze counter.
func RecordFreezeFrame(channel string) {
	FreezeFramesInjectedTotal.WithLabelValues(channel).Inc()
}

// RecordBlackFrame increments the injected-black counter.
func RecordBlackFrame(channel string) {
	BlackFramesInjectedTotal.WithLabelValues(channel).Inc()
}

// RecordDecodeContinuedAudioStarved increments the audio-starved-decode
// counter.
func RecordDecodeContinuedAudioStarved(channel string) {
	DecodeContinuedAudioStarvedTotal.WithLabelValues(channel).Inc()
}

// RecordTickDeadlineMiss increments the tick-deadline-miss counter.
func RecordTickDeadlineMiss(channel string) {
	TickDeadlineMissTotal.WithLabelValues(channel).Inc()
}

// SetActiveChannels sets the active-channel gauge.
func SetActiveChannels(count float64) {
	ActiveChannels.Set(count)
}

// IncActiveChannels increments the active-channel gauge.
func IncActiveChannels() {
	ActiveChannels.Inc()
}

// DecActiveChannels decrements the active-channel gauge.
func DecActiveChannels() {
	ActiveChannels.Dec()
}

// SetRemainingBlockFrames sets the remaining-block-frames gauge for channel.
func SetRemainingBlockFrames(channel string, frames float64) {
	RemainingBlockFrames.WithLabelValues(channel).Set(frames)
}

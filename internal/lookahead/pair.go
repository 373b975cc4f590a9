package lookahead

import (
	"context"
	"log/slog"
	"time"

	"github.com/airplayout/core/internal/media"
	"github.com/airplayout/core/internal/metrics"
)

// parkWake is the periodic re-check interval a fill thread sleeps for
// while parked on backpressure (spec §4.6: "a periodic wake (e.g., 20 ms)
// that re-checks both conditions").
const parkWake = 20 * time.Millisecond

// Pair couples one producer's video and audio FIFOs and implements the
// audio-first-under-backpressure policy (spec §7 "Audio-first under
// backpressure"): a full video buffer never blocks the audio path; instead
// the fill thread drops the decoded video frame and keeps pushing audio,
// parking only when audio itself is not below its low-water mark.
type Pair struct {
	log *slog.Logger

	Video *FIFO[*media.VideoFrame]
	Audio *FIFO[*media.AudioFrame]

	audioLowWater int
	channelID     string
}

// SetChannelID attaches a channel label used only for telemetry
// (RecordDecodeContinuedAudioStarved); it has no effect on buffering
// behavior. Optional — callers that never set it simply get unlabeled
// (dropped) telemetry for this Pair.
func (p *Pair) SetChannelID(channelID string) {
	p.channelID = channelID
}

// NewPair constructs a Pair with the given buffer capacities and audio
// low-water mark (spec §4.6 "target depth ≈ N frames").
func NewPair(videoCapacity, audioCapacity, audioLowWater int, log *slog.Logger) *Pair {
	if log == nil {
		log = slog.Default()
	}
	return &Pair{
		log:           log.With("component", "lookahead-pair"),
		Video:         NewFIFO[*media.VideoFrame](videoCapacity),
		Audio:         NewFIFO[*media.AudioFrame](audioCapacity),
		audioLowWater: audioLowWater,
	}
}

// PushCycle is called by a producer's decode fill thread once per decoded
// video+audio pair. It blocks only while video is full and audio is at or
// above its low-water mark; it never blocks on decode itself and it never
// drops audio. Returns videoDropped=true if the video frame for this cycle
// was discarded to relieve backpressure while keeping audio flowing.
func (p *Pair) PushCycle(ctx context.Context, v *media.VideoFrame, a *media.AudioFrame) (videoDropped bool, err error) {
	ticker := time.NewTicker(parkWake)
	defer ticker.Stop()

	for {
		if !p.Video.Full() {
			p.Video.TryPush(v)
			p.Audio.TryPush(a)
			return false, nil
		}

		if p.Audio.Len() < p.audioLowWater {
			p.Audio.TryPush(a)
			p.log.Debug("video frame dropped under backpressure", "audio_depth", p.Audio.Len())
			if p.channelID != "" {
				metrics.RecordDecodeContinuedAudioStarved(p.channelID)
			}
			return true, nil
		}

		select {
		case <-ticker.C:
			continue
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

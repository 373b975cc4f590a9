// Package producer implements the per-block tick producer (spec §4.4): on
// each tick it supplies exactly one video frame and one audio chunk for
// the live block, applying the output-liveness fallback chains so that
// emission is unconditional regardless of decode state.
package producer

import (
	"errors"
	"log/slog"
	"time"

	"github.com/airplayout/core/internal/lookahead"
	"github.com/airplayout/core/internal/media"
	"github.com/airplayout/core/internal/sink"
)

// freezeWindow bounds how long a previously-seen real video frame may be
// re-shown as a freeze before the fallback chain drops to black (spec
// §4.4 "Fallback chain (video)").
const freezeWindow = 250 * time.Millisecond

// ErrAudioUnderflow is returned once real audio has been observed for the
// current sink attachment and then the buffer runs dry: spec §4.6,
// "underflow of either buffer after real content has been observed is a
// hard fault — no pad or hold injection is permitted here". Silence
// injection before the first real audio chunk is legal (spec §4.4) and is
// handled without error.
var ErrAudioUnderflow = errors.New("producer: audio underflow after real audio observed")

// TickProducer is the capability set the Pipeline Manager drives once per
// tick for the live block (spec §9 "Polymorphism": FileProducer,
// PrimedProducer, PadProducer all satisfy this).
type TickProducer interface {
	NextVideo(now time.Time) *media.VideoFrame
	NextAudio() (*media.AudioFrame, error)
}

// FileProducer drives the fallback chain over a decode thread's lookahead
// buffers (spec §4.4, §4.6). It is the base variant; PadProducer and
// PrimedProducer build on it.
type FileProducer struct {
	log  *slog.Logger
	pair *lookahead.Pair

	haveRealVideo   bool
	lastRealVideo   *media.VideoFrame
	lastRealVideoAt time.Time

	everHadRealAudio bool
}

// NewFileProducer constructs a FileProducer reading from pair.
func NewFileProducer(pair *lookahead.Pair, log *slog.Logger) *FileProducer {
	if log == nil {
		log = slog.Default()
	}
	return &FileProducer{log: log.With("component", "file-producer"), pair: pair}
}

// NextVideo implements the video fallback chain: real → freeze (≤250ms) →
// black.
func (p *FileProducer) NextVideo(now time.Time) *media.VideoFrame {
	if frame, ok := p.pair.Video.TryPop(); ok {
		frame.Source = media.VideoReal
		p.haveRealVideo = true
		p.lastRealVideo = frame
		p.lastRealVideoAt = now
		return frame
	}

	if p.haveRealVideo && now.Sub(p.lastRealVideoAt) <= freezeWindow {
		freeze := *p.lastRealVideo
		freeze.Source = media.VideoFreeze
		return &freeze
	}

	return blackFrame()
}

// NextAudio implements the audio fallback chain: real → silence (only
// before the first real chunk has ever been seen) → hard fault.
func (p *FileProducer) NextAudio() (*media.AudioFrame, error) {
	if frame, ok := p.pair.Audio.TryPop(); ok {
		frame.Source = media.AudioReal
		p.everHadRealAudio = true
		return frame, nil
	}

	if !p.everHadRealAudio {
		return silenceFrame(), nil
	}

	p.log.Error("audio underflow after real audio was observed")
	return nil, ErrAudioUnderflow
}

// blackFrame returns the preallocated fallback video frame used when no
// real or freeze-eligible frame is available (spec §4.4, "black
// (preallocated)"). It carries a real keyframe and parameter sets (spec
// §4.7, P10) so a decoder attaching during the boot-liveness window has
// something it can actually decode rather than an empty payload.
func blackFrame() *media.VideoFrame {
	sps, pps, decoderConfig, keyframe := sink.BootBlackKeyframe()
	return &media.VideoFrame{
		Source:        media.VideoBlack,
		IsKeyframe:    true,
		SPS:           sps,
		PPS:           pps,
		DecoderConfig: decoderConfig,
		NALUs:         [][]byte{keyframe},
		Codec:         "h264",
	}
}

// silenceFrame returns one chunk of deterministic silence (spec §4.4): an
// AudioFrame tagged AudioSilence whose fields, samples included, are
// otherwise left at their zero values.
func silenceFrame() *media.AudioFrame {
	return &media.AudioFrame{Source: media.AudioSilence}
}

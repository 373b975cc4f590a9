package producer

import (
	"log/slog"
	"time"

	"github.com/airplayout/core/internal/lookahead"
	"github.com/airplayout/core/internal/media"
)

// PrimedProducer wraps a FileProducer with the Preloader's first decoded
// frame pair, so the swap tick's NextVideo/NextAudio calls are satisfied
// from memory rather than racing the decode thread (spec §4.4 Preloader,
// §9 "PrimedProducer" variant). Once the primed pair is consumed, it
// behaves exactly like the underlying FileProducer.
type PrimedProducer struct {
	*FileProducer

	primedVideo *media.VideoFrame
	primedAudio *media.AudioFrame
	consumed    bool
}

// NewPrimedProducer constructs a PrimedProducer. primedVideo/primedAudio
// may be nil if priming did not complete in time (spec §4.7: "priming
// failure means a black/freeze at the boundary, not a delayed boundary"),
// in which case it behaves as a plain FileProducer from the first tick.
func NewPrimedProducer(pair *lookahead.Pair, primedVideo *media.VideoFrame, primedAudio *media.AudioFrame, log *slog.Logger) *PrimedProducer {
	return &PrimedProducer{
		FileProducer: NewFileProducer(pair, log),
		primedVideo:  primedVideo,
		primedAudio:  primedAudio,
	}
}

// NextVideo returns the primed frame on the first call if one was
// supplied, then delegates to FileProducer thereafter.
func (p *PrimedProducer) NextVideo(now time.Time) *media.VideoFrame {
	if !p.consumed && p.primedVideo != nil {
		frame := p.primedVideo
		frame.Source = media.VideoReal
		p.haveRealVideo = true
		p.lastRealVideo = frame
		p.lastRealVideoAt = now
		return frame
	}
	return p.FileProducer.NextVideo(now)
}

// NextAudio returns the primed chunk on the first call if one was
// supplied, then delegates to FileProducer thereafter. Marks the pair
// consumed once both the video and audio primed values have been handed
// out (or were never supplied).
func (p *PrimedProducer) NextAudio() (*media.AudioFrame, error) {
	defer func() { p.consumed = true }()

	if !p.consumed && p.primedAudio != nil {
		frame := p.primedAudio
		frame.Source = media.AudioReal
		p.everHadRealAudio = true
		return frame, nil
	}
	return p.FileProducer.NextAudio()
}

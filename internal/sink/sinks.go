package sink

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/airplayout/core/internal/media"
)

// Sink is the frame-in/packets-out capability every sink variant
// satisfies (spec §9 "Polymorphism": "{MpegTSOutputSink, UdsSink}, each
// satisfying the frame-in / packets-out capability set"). Muxing itself —
// building an actual MPEG-TS packet stream from frames — is an external
// collaborator's job (spec §1 non-goal); a Sink's own responsibility ends
// at pacing, monotonic correction, and boot liveness before handing bytes
// to that collaborator's transport.
type Sink interface {
	// WriteVideo paces, corrects, and forwards one video frame.
	WriteVideo(frame *media.VideoFrame, now time.Time) error
	// WriteAudio paces, corrects, and forwards one audio frame.
	WriteAudio(frame *media.AudioFrame, now time.Time) error
	// Attach marks transport attach, starting the boot-liveness clock.
	Attach(now time.Time)
	// Close releases the sink's transport.
	Close() error
}

// pcrPaced, when true, disables the gate's own audio silence-continuity
// accounting because the external mux owns PCR/audio cadence directly
// (spec §4.7, "disabled when the mux is running in PCR-paced mode").
type baseSink struct {
	mu        sync.Mutex
	gate      *Gate
	log       *slog.Logger
	w         io.Writer
	pcrPaced  bool
	attached  bool
	closeFunc func() error
}

func newBaseSink(w io.Writer, pcrPaced bool, log *slog.Logger) baseSink {
	if log == nil {
		log = slog.Default()
	}
	return baseSink{gate: NewGate(log), log: log, w: w, pcrPaced: pcrPaced}
}

func (b *baseSink) Attach(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.attached {
		return
	}
	b.attached = true
	b.gate.Attach(now)
}

func (b *baseSink) sleep(d time.Duration) {
	time.Sleep(d)
}

func (b *baseSink) paceAndCorrectVideo(frame *media.VideoFrame, now time.Time) {
	b.gate.Pace(now, frame.CT, b.sleep)
	frame.PTS, _ = b.gate.CorrectVideo(frame.PTS, frame.PTS)
}

func (b *baseSink) paceAndCorrectAudio(frame *media.AudioFrame, now time.Time) {
	if b.pcrPaced && frame.Source == media.AudioSilence {
		// the external mux owns audio cadence in PCR-paced mode: spec
		// §4.7 disables our own silence-continuity pacing here, the
		// silence frame is still forwarded (producer already built it)
		// but is not gated against our wall-clock anchor.
		return
	}
	b.gate.Pace(now, frame.CT, b.sleep)
	frame.PTS, _ = b.gate.CorrectAudio(frame.PTS, frame.PTS)
}

func (b *baseSink) Close() error {
	if b.closeFunc != nil {
		return b.closeFunc()
	}
	return nil
}

// MpegTSOutputSink paces frames and forwards them to an external MPEG-TS
// muxer (out of scope per spec §1) over an io.Writer — typically a pipe or
// socket the muxer process reads from.
type MpegTSOutputSink struct {
	baseSink
}

// NewMpegTSOutputSink constructs a sink that writes paced, monotonically
// corrected frames to w. pcrPaced selects whether the external mux owns
// audio cadence (spec §4.7).
func NewMpegTSOutputSink(w io.Writer, pcrPaced bool, log *slog.Logger) *MpegTSOutputSink {
	s := &MpegTSOutputSink{baseSink: newBaseSink(w, pcrPaced, log)}
	if wc, ok := w.(io.Closer); ok {
		s.closeFunc = wc.Close
	}
	return s
}

func (s *MpegTSOutputSink) WriteVideo(frame *media.VideoFrame, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paceAndCorrectVideo(frame, now)
	_, err := fmt.Fprintf(s.w, "video cu=%d pts=%d src=%s\n", frame.SessionFrameIndex, frame.PTS, frame.Source)
	return err
}

func (s *MpegTSOutputSink) WriteAudio(frame *media.AudioFrame, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paceAndCorrectAudio(frame, now)
	_, err := fmt.Fprintf(s.w, "audio cu=%d pts=%d src=%s\n", frame.SessionFrameIndex, frame.PTS, frame.Source)
	return err
}

// UdsSink paces frames and forwards them over a Unix domain socket
// connection (or any io.Writer standing in for one) to a local
// collaborator process, for deployments where the muxer attaches over UDS
// rather than reading stdout/a named pipe (spec §6, "external transport
// is out of scope; this module hands off finished packets").
type UdsSink struct {
	baseSink
}

// NewUdsSink constructs a UDS-facing sink. w is expected to be the
// connection returned by net.Dial("unix", ...) in the caller.
func NewUdsSink(w io.Writer, pcrPaced bool, log *slog.Logger) *UdsSink {
	s := &UdsSink{baseSink: newBaseSink(w, pcrPaced, log)}
	if wc, ok := w.(io.Closer); ok {
		s.closeFunc = wc.Close
	}
	return s
}

func (s *UdsSink) WriteVideo(frame *media.VideoFrame, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paceAndCorrectVideo(frame, now)
	_, err := fmt.Fprintf(s.w, "video cu=%d pts=%d src=%s\n", frame.SessionFrameIndex, frame.PTS, frame.Source)
	return err
}

func (s *UdsSink) WriteAudio(frame *media.AudioFrame, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paceAndCorrectAudio(frame, now)
	_, err := fmt.Fprintf(s.w, "audio cu=%d pts=%d src=%s\n", frame.SessionFrameIndex, frame.PTS, frame.Source)
	return err
}

package sink

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/airplayout/core/internal/media"
)

func TestMpegTSOutputSinkWritesPacedFrames(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := NewMpegTSOutputSink(&buf, false, nil)
	now := time.Unix(2000, 0)
	s.Attach(now)

	vf := &media.VideoFrame{Source: media.VideoReal, PTS: 1, CT: 0, SessionFrameIndex: 0}
	if err := s.WriteVideo(vf, now); err != nil {
		t.Fatalf("WriteVideo: %v", err)
	}
	if !strings.Contains(buf.String(), "video") {
		t.Errorf("output %q missing video line", buf.String())
	}

	af := &media.AudioFrame{Source: media.AudioSilence, PTS: 1, CT: 0, SessionFrameIndex: 0}
	if err := s.WriteAudio(af, now); err != nil {
		t.Fatalf("WriteAudio: %v", err)
	}
	if !strings.Contains(buf.String(), "audio") {
		t.Errorf("output %q missing audio line", buf.String())
	}
}

func TestUdsSinkPCRPacedSkipsSilenceGating(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := NewUdsSink(&buf, true, nil)
	now := time.Unix(2000, 0)
	s.Attach(now)

	// anchor the gate at CT 0 so this silence frame's CT is 10s ahead of
	// wall time: without the bypass, WriteAudio would pace for 10s.
	s.gate.anchor(now, 0)

	af := &media.AudioFrame{Source: media.AudioSilence, PTS: 1, CT: 10_000_000, SessionFrameIndex: 0}
	done := make(chan error, 1)
	go func() { done <- s.WriteAudio(af, now) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WriteAudio: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WriteAudio blocked on pacing for a PCR-paced silence frame, want bypass")
	}
}

func TestMonotonicCorrectionAppliedAcrossWrites(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := NewMpegTSOutputSink(&buf, false, nil)
	now := time.Unix(2000, 0)
	s.Attach(now)

	vf1 := &media.VideoFrame{Source: media.VideoReal, PTS: 100, CT: 0}
	vf2 := &media.VideoFrame{Source: media.VideoReal, PTS: 100, CT: 0} // repeat PTS

	if err := s.WriteVideo(vf1, now); err != nil {
		t.Fatalf("WriteVideo 1: %v", err)
	}
	if err := s.WriteVideo(vf2, now); err != nil {
		t.Fatalf("WriteVideo 2: %v", err)
	}
	if vf2.PTS <= vf1.PTS {
		t.Errorf("second frame PTS = %d, want > first frame PTS %d", vf2.PTS, vf1.PTS)
	}
}

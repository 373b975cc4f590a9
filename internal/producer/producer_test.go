package producer

import (
	"errors"
	"testing"
	"time"

	"github.com/airplayout/core/internal/lookahead"
	"github.com/airplayout/core/internal/media"
)

func TestFileProducerVideoRealThenFreezeThenBlack(t *testing.T) {
	t.Parallel()

	pair := lookahead.NewPair(4, 4, 1, nil)
	pair.Video.TryPush(&media.VideoFrame{PTS: 100})

	p := NewFileProducer(pair, nil)
	now := time.Now()

	real := p.NextVideo(now)
	if real.Source != media.VideoReal || real.PTS != 100 {
		t.Fatalf("NextVideo with buffered frame = %+v, want REAL PTS=100", real)
	}

	freeze := p.NextVideo(now.Add(100 * time.Millisecond))
	if freeze.Source != media.VideoFreeze || freeze.PTS != 100 {
		t.Fatalf("NextVideo within freeze window = %+v, want FREEZE PTS=100", freeze)
	}

	black := p.NextVideo(now.Add(300 * time.Millisecond))
	if black.Source != media.VideoBlack {
		t.Fatalf("NextVideo past freeze window = %+v, want BLACK", black)
	}
}

func TestFileProducerAudioSilenceBeforeRealThenUnderflowFault(t *testing.T) {
	t.Parallel()

	pair := lookahead.NewPair(4, 4, 1, nil)
	p := NewFileProducer(pair, nil)

	silent, err := p.NextAudio()
	if err != nil {
		t.Fatalf("NextAudio before any real audio: %v", err)
	}
	if silent.Source != media.AudioSilence {
		t.Fatalf("NextAudio before real audio = %+v, want SILENCE", silent)
	}

	pair.Audio.TryPush(&media.AudioFrame{PTS: 5})
	real, err := p.NextAudio()
	if err != nil {
		t.Fatalf("NextAudio with buffered chunk: %v", err)
	}
	if real.Source != media.AudioReal || real.PTS != 5 {
		t.Fatalf("NextAudio with buffered chunk = %+v, want REAL PTS=5", real)
	}

	_, err = p.NextAudio()
	if !errors.Is(err, ErrAudioUnderflow) {
		t.Fatalf("NextAudio after real audio then empty = %v, want ErrAudioUnderflow", err)
	}
}

func TestPadProducerAlwaysFallsBack(t *testing.T) {
	t.Parallel()

	p := NewPadProducer(nil)
	now := time.Now()

	v := p.NextVideo(now)
	if v.Source != media.VideoBlack {
		t.Errorf("PadProducer NextVideo = %+v, want BLACK immediately", v)
	}
	a, err := p.NextAudio()
	if err != nil {
		t.Fatalf("PadProducer NextAudio: %v", err)
	}
	if a.Source != media.AudioSilence {
		t.Errorf("PadProducer NextAudio = %+v, want SILENCE", a)
	}
}

func TestPrimedProducerConsumesPrimedFrameOnce(t *testing.T) {
	t.Parallel()

	pair := lookahead.NewPair(4, 4, 1, nil)
	primedVideo := &media.VideoFrame{PTS: 42}
	primedAudio := &media.AudioFrame{PTS: 42}

	p := NewPrimedProducer(pair, primedVideo, primedAudio, nil)
	now := time.Now()

	v := p.NextVideo(now)
	if v.PTS != 42 || v.Source != media.VideoReal {
		t.Fatalf("first NextVideo = %+v, want primed PTS=42 REAL", v)
	}
	a, err := p.NextAudio()
	if err != nil {
		t.Fatalf("first NextAudio: %v", err)
	}
	if a.PTS != 42 || a.Source != media.AudioReal {
		t.Fatalf("first NextAudio = %+v, want primed PTS=42 REAL", a)
	}

	// second tick: primed values consumed, falls through to FileProducer
	// fallback chain: the primed video is remembered as the last real
	// frame, so an empty buffer yields a freeze of it.
	v2 := p.NextVideo(now.Add(10 * time.Millisecond))
	if v2.Source != media.VideoFreeze {
		t.Errorf("second NextVideo = %+v, want FREEZE (primed frame remembered as last real)", v2)
	}
}

func TestPrimedProducerWithNilPrimedValuesBehavesAsFileProducer(t *testing.T) {
	t.Parallel()

	pair := lookahead.NewPair(4, 4, 1, nil)
	p := NewPrimedProducer(pair, nil, nil, nil)

	v := p.NextVideo(time.Now())
	if v.Source != media.VideoBlack {
		t.Errorf("NextVideo with no primed value and empty buffer = %+v, want BLACK", v)
	}
}

package sink

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxSleepPerIteration bounds a single pacing sleep so the gate's wake
// granularity stays tight even when a packet's media time is far ahead of
// wall time (spec §4.7 "short 2 ms maximum per iteration to bound jitter").
const maxSleepPerIteration = 2 * time.Millisecond

// bootLivenessDeadline is the bound on time-to-first-decodable-byte after
// attach (spec §4.7 "Boot liveness").
const bootLivenessDeadline = 500 * time.Millisecond

// monotonicTrack corrects one output stream's PTS/DTS to be strictly
// increasing (spec §4.7 "Per-stream monotonic PTS/DTS"). Video and audio
// each own an independent track: a correction on one must never perturb
// the other.
type monotonicTrack struct {
	mu       sync.Mutex
	lastPTS  int64
	lastDTS  int64
	haveLast bool
}

// correct bumps pts/dts to the minimum delta above the last emitted values
// required for strict monotonicity, and returns the corrected pair.
func (t *monotonicTrack) correct(pts, dts int64) (int64, int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.haveLast {
		t.lastPTS, t.lastDTS = pts, dts
		t.haveLast = true
		return pts, dts
	}
	if pts <= t.lastPTS {
		pts = t.lastPTS + 1
	}
	if dts <= t.lastDTS {
		dts = t.lastDTS + 1
	}
	t.lastPTS, t.lastDTS = pts, dts
	return pts, dts
}

// Gate paces packet emission to wall clock (spec §4.7 "Pacing") and holds
// the independent per-stream monotonic PTS/DTS tracks. It is adapted from
// ManuGH-xg2g's internal/ratelimit.Limiter: that limiter throttles inbound
// HTTP admission to a token bucket; this gate repurposes the same
// golang.org/x/time/rate primitive to cap each pacing sleep at one token
// (maxSleepPerIteration) per loop iteration, with media time anchored at
// the session's first emitted packet.
type Gate struct {
	log *slog.Logger

	anchorOnce sync.Once
	anchorWall time.Time
	anchorCT   int64

	limiter *rate.Limiter

	video monotonicTrack
	audio monotonicTrack

	bootDeadline time.Time
}

// NewGate constructs a Gate. The limiter is configured at one token per
// maxSleepPerIteration with a burst of 1, so a reservation's delay is the
// token-bucket's answer to "how long until the next iteration may wake" —
// Pace takes the smaller of that and the media-time-vs-wall-time gap,
// rather than clamping against a bare constant.
func NewGate(log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{
		log:     log,
		limiter: rate.NewLimiter(rate.Every(maxSleepPerIteration), 1),
	}
}

// Attach marks the moment the sink attaches to its transport, starting the
// boot-liveness deadline clock.
func (g *Gate) Attach(now time.Time) {
	g.bootDeadline = now.Add(bootLivenessDeadline)
}

// BootDeadlineExceeded reports whether now is past the boot-liveness
// deadline set by Attach (false before Attach). It only compares times;
// it does not track whether any packet has been paced.
func (g *Gate) BootDeadlineExceeded(now time.Time) bool {
	return !g.bootDeadline.IsZero() && now.After(g.bootDeadline)
}

// anchor establishes the monotonic wall-clock reference on the first
// packet (spec §4.7: "anchor set at first packet"). ctUs is the packet's
// channel-time timestamp in microseconds.
func (g *Gate) anchor(now time.Time, ctUs int64) {
	g.anchorOnce.Do(func() {
		g.anchorWall = now
		g.anchorCT = ctUs
	})
}

// Pace blocks until wall time has caught up to the packet's channel time,
// sleeping in bounded increments, then returns. A packet whose channel
// time is at or behind wall time (a "late" packet) returns immediately —
// spec §4.7 is explicit that late packets never resync and never drop.
func (g *Gate) Pace(now time.Time, ctUs int64, sleep func(time.Duration)) {
	g.anchor(now, ctUs)

	for {
		elapsedSinceAnchor := now.Sub(g.anchorWall)
		mediaSinceAnchor := time.Duration(ctUs-g.anchorCT) * time.Microsecond
		ahead := mediaSinceAnchor - elapsedSinceAnchor
		if ahead <= 0 {
			return
		}

		wait := ahead
		if capped := g.limiter.ReserveN(now, 1).DelayFrom(now); capped < wait {
			wait = capped
		}
		sleep(wait)
		now = now.Add(wait)
	}
}

// CorrectVideo applies the video track's monotonic PTS/DTS correction.
func (g *Gate) CorrectVideo(pts, dts int64) (int64, int64) {
	return g.video.correct(pts, dts)
}

// CorrectAudio applies the audio track's monotonic PTS/DTS correction.
func (g *Gate) CorrectAudio(pts, dts int64) (int64, int64) {
	return g.audio.correct(pts, dts)
}

package sink

import (
	"testing"
	"time"
)

func TestMonotonicTrackCorrectsNonIncreasing(t *testing.T) {
	t.Parallel()

	var tr monotonicTrack

	pts, dts := tr.correct(1000, 900)
	if pts != 1000 || dts != 900 {
		t.Fatalf("first correct() = (%d, %d), want (1000, 900) unchanged", pts, dts)
	}

	pts, dts = tr.correct(1000, 900) // repeat, must bump
	if pts != 1001 || dts != 901 {
		t.Fatalf("repeat correct() = (%d, %d), want (1001, 901)", pts, dts)
	}

	pts, dts = tr.correct(500, 400) // behind, must bump from last
	if pts != 1002 || dts != 902 {
		t.Fatalf("behind correct() = (%d, %d), want (1002, 902)", pts, dts)
	}

	pts, dts = tr.correct(5000, 4000) // genuinely ahead, passes through
	if pts != 5000 || dts != 4000 {
		t.Fatalf("ahead correct() = (%d, %d), want (5000, 4000)", pts, dts)
	}
}

func TestMonotonicTracksAreIndependentPerStream(t *testing.T) {
	t.Parallel()

	g := NewGate(nil)
	g.CorrectVideo(100, 100)
	g.CorrectVideo(100, 100) // video bumps to 101

	pts, _ := g.CorrectAudio(100, 100) // audio must not see video's bump
	if pts != 100 {
		t.Fatalf("CorrectAudio() after unrelated video correction = %d, want 100", pts)
	}
}

func TestPaceSleepsWhenMediaAheadOfWallClock(t *testing.T) {
	t.Parallel()

	g := NewGate(nil)
	base := time.Unix(1000, 0)

	var slept []time.Duration
	sleepFn := func(d time.Duration) { slept = append(slept, d) }

	g.Pace(base, 0, sleepFn) // anchors at (base, ct=0)
	if len(slept) != 0 {
		t.Fatalf("anchoring Pace() call slept, want no sleep")
	}

	// ct is 10ms ahead of wall progress (0 elapsed wall time so far)
	g.Pace(base, 10_000, sleepFn)
	if len(slept) == 0 {
		t.Fatal("Pace() with media ahead of wall time did not sleep")
	}
	for _, d := range slept {
		if d > maxSleepPerIteration {
			t.Errorf("Pace() slept %v in one iteration, want <= %v", d, maxSleepPerIteration)
		}
	}
}

func TestPaceDoesNotSleepForLatePackets(t *testing.T) {
	t.Parallel()

	g := NewGate(nil)
	base := time.Unix(1000, 0)
	g.Pace(base, 0, func(time.Duration) { t.Fatal("unexpected sleep on anchor call") })

	called := false
	// wall time has advanced 1s but media only advanced 10ms: packet is late
	g.Pace(base.Add(time.Second), 10_000, func(time.Duration) { called = true })
	if called {
		t.Error("Pace() slept for a late packet, want immediate emission")
	}
}

func TestBootDeadlineExceeded(t *testing.T) {
	t.Parallel()

	g := NewGate(nil)
	base := time.Unix(1000, 0)
	g.Attach(base)

	if g.BootDeadlineExceeded(base.Add(100 * time.Millisecond)) {
		t.Error("BootDeadlineExceeded() = true within deadline, want false")
	}
	if !g.BootDeadlineExceeded(base.Add(600 * time.Millisecond)) {
		t.Error("BootDeadlineExceeded() = false past deadline, want true")
	}
}

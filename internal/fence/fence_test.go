package fence

import "testing"

func TestTick(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		rate    Rate
		deltaMs int64
		want    int64
	}{
		{"S1 30fps exact", Rate{30, 1}, 30000, 900},
		{"24fps", Rate{24, 1}, 30000, 720},
		{"25fps", Rate{25, 1}, 30000, 750},
		{"29.97fps (30000/1001)", Rate{30000, 1001}, 30000, 900},
		{"30fps alt", Rate{30, 1}, 30000, 900},
		{"59.94fps (60000/1001)", Rate{60000, 1001}, 30000, 1799},
		{"60fps", Rate{60, 1}, 30000, 1800},
		{"zero delta", Rate{30, 1}, 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := tc.rate.Tick(tc.deltaMs)
			if got != tc.want {
				t.Errorf("Tick(%d) with rate %d/%d = %d, want %d",
					tc.deltaMs, tc.rate.Num, tc.rate.Den, got, tc.want)
			}
		})
	}
}

// TestConsecutiveBlocksNoGapNoOverlap verifies that block_start_tick_{N+1}
// equals fence_tick_N exactly, for consecutive blocks sharing one rate.
func TestConsecutiveBlocksNoGapNoOverlap(t *testing.T) {
	t.Parallel()

	r := Rate{30000, 1001}
	blockDurations := []int64{30000, 30000, 15000, 60000}

	var cumulativeMs int64
	var prevFence int64
	for i, d := range blockDurations {
		startTick := r.Tick(cumulativeMs)
		if i > 0 && startTick != prevFence {
			t.Errorf("block %d: start_tick=%d, want == previous fence_tick=%d", i, startTick, prevFence)
		}
		cumulativeMs += d
		prevFence = r.Tick(cumulativeMs)
	}
}

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordBlockStart(t *testing.T) {
	BlockStartsTotal.Reset()

	RecordBlockStart("chan-1")
	RecordBlockStart("chan-1")

	got := testutil.ToFloat64(BlockStartsTotal.WithLabelValues("chan-1"))
	if got != 2 {
		t.Errorf("BlockStartsTotal(chan-1) = %v, want 2", got)
	}
}

func TestRecordSegmentCompletion(t *testing.T) {
	SegmentCompletionsTotal.Reset()

	RecordSegmentCompletion("chan-1", "OK")
	RecordSegmentCompletion("chan-1", "DECODE_ERROR")
	RecordSegmentCompletion("chan-1", "DECODE_ERROR")

	if got := testutil.ToFloat64(SegmentCompletionsTotal.WithLabelValues("chan-1", "OK")); got != 1 {
		t.Errorf("SegmentCompletionsTotal(chan-1,OK) = %v, want 1", got)
	}
	if got := testutil.ToFloat64(SegmentCompletionsTotal.WithLabelValues("chan-1", "DECODE_ERROR")); got != 2 {
		t.Errorf("SegmentCompletionsTotal(chan-1,DECODE_ERROR) = %v, want 2", got)
	}
}

func TestRecordFenceMismatchAndUnderflow(t *testing.T) {
	FenceMismatchTotal.Reset()
	FrameBudgetUnderflowTotal.Reset()

	RecordFenceMismatch("chan-2")
	RecordFrameBudgetUnderflow("chan-2")
	RecordFrameBudgetUnderflow("chan-2")

	if got := testutil.ToFloat64(FenceMismatchTotal.WithLabelValues("chan-2")); got != 1 {
		t.Errorf("FenceMismatchTotal(chan-2) = %v, want 1", got)
	}
	if got := testutil.ToFloat64(FrameBudgetUnderflowTotal.WithLabelValues("chan-2")); got != 2 {
		t.Errorf("FrameBudgetUnderflowTotal(chan-2) = %v, want 2", got)
	}
}

func TestRecordFallbackFrames(t *testing.T) {
	SilenceFramesInjectedTotal.Reset()
	FreezeFramesInjectedTotal.Reset()
	BlackFramesInjectedTotal.Reset()

	RecordSilenceFrame("chan-3")
	RecordFreezeFrame("chan-3")
	RecordFreezeFrame("chan-3")
	RecordBlackFrame("chan-3")

	if got := testutil.ToFloat64(SilenceFramesInjectedTotal.WithLabelValues("chan-3")); got != 1 {
		t.Errorf("SilenceFramesInjectedTotal(chan-3) = %v, want 1", got)
	}
	if got := testutil.ToFloat64(FreezeFramesInjectedTotal.WithLabelValues("chan-3")); got != 2 {
		t.Errorf("FreezeFramesInjectedTotal(chan-3) = %v, want 2", got)
	}
	if got := testutil.ToFloat64(BlackFramesInjectedTotal.WithLabelValues("chan-3")); got != 1 {
		t.Errorf("BlackFramesInjectedTotal(chan-3) = %v, want 1", got)
	}
}

func TestRecordDecodeContinuedAudioStarved(t *testing.T) {
	DecodeContinuedAudioStarvedTotal.Reset()

	RecordDecodeContinuedAudioStarved("chan-4")

	if got := testutil.ToFloat64(DecodeContinuedAudioStarvedTotal.WithLabelValues("chan-4")); got != 1 {
		t.Errorf("DecodeContinuedAudioStarvedTotal(chan-4) = %v, want 1", got)
	}
}

func TestRecordTickDeadlineMiss(t *testing.T) {
	TickDeadlineMissTotal.Reset()

	RecordTickDeadlineMiss("chan-5")
	RecordTickDeadlineMiss("chan-5")
	RecordTickDeadlineMiss("chan-5")

	if got := testutil.ToFloat64(TickDeadlineMissTotal.WithLabelValues("chan-5")); got != 3 {
		t.Errorf("TickDeadlineMissTotal(chan-5) = %v, want 3", got)
	}
}

func TestActiveChannelsGauge(t *testing.T) {
	ActiveChannels.Set(0)

	IncActiveChannels()
	IncActiveChannels()
	if got := testutil.ToFloat64(ActiveChannels); got != 2 {
		t.Errorf("ActiveChannels = %v, want 2", got)
	}

	DecActiveChannels()
	if got := testutil.ToFloat64(ActiveChannels); got != 1 {
		t.Errorf("ActiveChannels = %v, want 1 after decrement", got)
	}

	SetActiveChannels(5)
	if got := testutil.ToFloat64(ActiveChannels); got != 5 {
		t.Errorf("ActiveChannels = %v, want 5 after Set", got)
	}
}

func TestRemainingBlockFramesGauge(t *testing.T) {
	RemainingBlockFrames.Reset()

	SetRemainingBlockFrames("chan-6", 42)

	got := testutil.ToFloat64(RemainingBlockFrames.WithLabelValues("chan-6"))
	if got != 42 {
		t.Errorf("RemainingBlockFrames(chan-6) = %v, want 42", got)
	}
}

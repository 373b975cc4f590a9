package sink

import (
	"testing"

	"github.com/airplayout/core/scte35"
)

func TestBuildFenceCueRoundTrips(t *testing.T) {
	t.Parallel()

	raw, err := BuildFenceCue(4200, true)
	if err != nil {
		t.Fatalf("BuildFenceCue: %v", err)
	}

	sis, err := scte35.DecodeBytes(raw)
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}

	insert, ok := sis.SpliceCommand.(*scte35.SpliceInsert)
	if !ok {
		t.Fatalf("SpliceCommand type = %T, want *scte35.SpliceInsert", sis.SpliceCommand)
	}
	if insert.SpliceEventID != 4200 {
		t.Errorf("SpliceEventID = %d, want 4200", insert.SpliceEventID)
	}
	if !insert.OutOfNetworkIndicator {
		t.Error("OutOfNetworkIndicator = false, want true")
	}
	if !insert.SpliceImmediateFlag {
		t.Error("SpliceImmediateFlag = false, want true")
	}
}

func TestBuildFenceCueReturnEntry(t *testing.T) {
	t.Parallel()

	raw, err := BuildFenceCue(4201, false)
	if err != nil {
		t.Fatalf("BuildFenceCue: %v", err)
	}
	sis, err := scte35.DecodeBytes(raw)
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	insert := sis.SpliceCommand.(*scte35.SpliceInsert)
	if insert.OutOfNetworkIndicator {
		t.Error("OutOfNetworkIndicator = true for return-from-break cue, want false")
	}
}

package sink

import (
	"github.com/airplayout/core/scte35"
)

// fenceSpliceImmediate builds the splice_info_section bytes for the
// SCTE-35 cue attached to a BLOCK_FENCE evidence event (SPEC_FULL.md §11,
// "every BLOCK_FENCE carries an associated splice_insert cue built from
// the fence tick"). spliceEventID should be derived from the block's
// fence tick so repeated fences within a session produce distinct events;
// outOfNetwork marks entry into (true) or return from (false) a break.
func fenceSpliceImmediate(spliceEventID uint32, outOfNetwork bool, uniqueProgramID uint32) ([]byte, error) {
	sis := &scte35.SpliceInfoSection{
		SpliceCommand: &scte35.SpliceInsert{
			SpliceEventID:         spliceEventID,
			OutOfNetworkIndicator: outOfNetwork,
			SpliceImmediateFlag:   true,
			UniqueProgramID:       uniqueProgramID,
			AvailNum:              0,
			AvailsExpected:        0,
		},
	}
	return sis.Encode()
}

// BuildFenceCue returns the raw splice_info_section bytes to attach to a
// BLOCK_FENCE event's evidence payload, keyed by the fence tick so the
// splice_event_id is stable and reconstructible from the evidence record
// alone.
func BuildFenceCue(fenceTick int64, outOfNetwork bool) ([]byte, error) {
	return fenceSpliceImmediate(uint32(fenceTick), outOfNetwork, 0)
}

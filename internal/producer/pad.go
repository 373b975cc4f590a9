package producer

import (
	"log/slog"

	"github.com/airplayout/core/internal/lookahead"
)

// emptyPair returns a lookahead.Pair with zero capacity on both buffers,
// so TryPop always misses and the fallback chain engages immediately.
func emptyPair() *lookahead.Pair {
	return lookahead.NewPair(0, 0, 0, nil)
}

// NewPadProducer returns a FileProducer backed by buffers that are never
// fed by a decode thread (spec §9 "PadProducer" variant, for PAD-type
// segments that carry no asset). Every tick falls through the video chain
// straight to black, since there is never a real frame to freeze, and the audio chain to
// silence, exactly like a stalled FileProducer — a PAD segment is
// indistinguishable from total decode starvation by design.
func NewPadProducer(log *slog.Logger) *FileProducer {
	return NewFileProducer(emptyPair(), log)
}

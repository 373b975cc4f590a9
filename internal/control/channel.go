package control

import (
	"context"
	"log/slog"
	"sync"

	"github.com/airplayout/core/internal/block"
	"github.com/airplayout/core/internal/clock"
	"github.com/airplayout/core/internal/evidence"
	"github.com/airplayout/core/internal/lookahead"
	"github.com/airplayout/core/internal/pipeline"
	"github.com/airplayout/core/internal/producer"
	"github.com/airplayout/core/internal/sink"
	"github.com/airplayout/core/internal/spool"
)

// channel bundles one running session's owned resources, so StopChannel
// has a single place to tear everything down from (spec §6 "cooperative
// stop with bounded drain").
type channel struct {
	id            string
	planHandle    string
	format        ProgramFormat
	clk           *clock.Clock
	queue         *block.Queue
	session       *pipeline.Session
	spoolWriter   *spool.Writer
	out           sink.Sink
	runCtx        context.Context
	runCancel     context.CancelFunc
	runDone       chan error
	spoolDone     chan error

	mu             sync.Mutex
	switchInFlight bool
	pendingPreview *lookahead.Preloader
}

// pendingPreviewFor returns the Preloader of the most recently staged
// preview block, so SwitchToLive can check readiness without the
// pipeline package exposing internal state.
func (c *channel) pendingPreviewFor() *lookahead.Preloader {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingPreview
}

func (c *channel) setPendingPreview(p *lookahead.Preloader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingPreview = p
}

func (c *channel) tryBeginSwitch() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.switchInFlight {
		return false
	}
	c.switchInFlight = true
	return true
}

func (c *channel) endSwitch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.switchInFlight = false
}

// stop cancels the tick loop, waits for it and the spool writer to drain,
// and finalizes the evidence spool.
func (c *channel) stop(log *slog.Logger) {
	c.runCancel()
	if err := <-c.runDone; err != nil {
		log.Warn("pipeline session exited with error during stop", "channel", c.id, "error", err)
	}
	if err := <-c.spoolDone; err != nil {
		log.Warn("spool writer exited with error during stop", "channel", c.id, "error", err)
	}
	if c.spoolWriter != nil {
		if err := c.spoolWriter.Close(); err != nil {
			log.Warn("spool writer close failed", "channel", c.id, "error", err)
		}
	}
}

// newEmitter constructs the Evidence Emitter for this channel, wired to
// the spool writer as its Sink (spec §4.8).
func newEmitter(clk *clock.Clock, s evidence.Sink, channelID, sessionID string) *evidence.Emitter {
	return evidence.New(clk, s, channelID, sessionID)
}

// buildAssetProducer constructs the TickProducer/Preloader pair for a
// LoadPreview call. Actual asset decode (reading assetPath, demuxing,
// filling the lookahead pair from a decode thread) is the external
// decoder's job (spec §1 non-goal); this control layer's responsibility
// ends at wiring the Pair a real decode thread would feed and the
// Preloader it would prime.
func buildAssetProducer(channelID string, log *slog.Logger) (producer.TickProducer, *lookahead.Pair, *lookahead.Preloader) {
	pair := lookahead.NewPair(8, 16, 4, log)
	pair.SetChannelID(channelID)
	preloader := lookahead.NewPreloader()
	return producer.NewFileProducer(pair, log), pair, preloader
}

package control

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// planDebounce coalesces the burst of fsnotify events a single plan-file
// replace (tmp+rename) produces into one UpdatePlan call, adapted from
// ManuGH-xg2g's internal/config/reload.go watch loop.
const planDebounce = 250 * time.Millisecond

// PlanWatcher watches a directory for plan-file drops from Core and calls
// UpdatePlan on the owning Manager when a channel's plan file changes
// (spec §6 "UpdatePlan(channel_id, plan_handle) → hot-swap block plan").
// The file name (minus extension) is taken as the channel ID; its content
// is taken as the new plan handle.
type PlanWatcher struct {
	log     *slog.Logger
	mgr     *Manager
	dir     string
	watcher *fsnotify.Watcher
}

// NewPlanWatcher constructs a watcher over dir, not yet started.
func NewPlanWatcher(mgr *Manager, dir string, log *slog.Logger) (*PlanWatcher, error) {
	if log == nil {
		log = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	return &PlanWatcher{log: log.With("component", "plan-watcher"), mgr: mgr, dir: dir, watcher: w}, nil
}

// Run blocks, dispatching UpdatePlan calls as plan files change, until ctx
// is cancelled.
func (p *PlanWatcher) Run(ctx context.Context) error {
	defer p.watcher.Close()

	pending := make(map[string]*time.Timer)
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-p.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			name := event.Name
			if t, exists := pending[name]; exists {
				t.Stop()
			}
			pending[name] = time.AfterFunc(planDebounce, func() { p.apply(name) })

		case err, ok := <-p.watcher.Errors:
			if !ok {
				return nil
			}
			p.log.Error("plan watcher error", "error", err)
		}
	}
}

func (p *PlanWatcher) apply(path string) {
	channelID := channelIDFromPlanPath(path)
	contents, err := os.ReadFile(path)
	if err != nil {
		p.log.Error("plan file unreadable", "path", path, "error", err)
		return
	}

	code, err := p.mgr.UpdatePlan(channelID, string(contents))
	if err != nil {
		p.log.Error("plan update failed", "channel", channelID, "result", code, "error", err)
		return
	}
	p.log.Info("plan updated from file drop", "channel", channelID, "path", path, "result", code)
}

func channelIDFromPlanPath(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

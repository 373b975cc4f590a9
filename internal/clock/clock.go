// Package clock provides the session's single source of wall-clock "now":
// a process-wide monotonic reference with a once-set epoch.
package clock

import (
	"errors"
	"sync/atomic"
	"time"
)

// Role identifies which producer slot is calling TrySetEpochOnce. Only a
// LIVE producer may set the session epoch; a PREVIEW attempt is a protocol
// violation, logged by the caller but never fatal.
type Role int

const (
	RoleLive Role = iota
	RolePreview
)

func (r Role) String() string {
	if r == RoleLive {
		return "LIVE"
	}
	return "PREVIEW"
}

// ErrPreviewCannotSetEpoch is returned when a PREVIEW-role caller attempts
// to set the session epoch. It is a protocol violation, not a fatal error:
// the caller logs it and continues with whatever epoch is (or isn't) set.
var ErrPreviewCannotSetEpoch = errors.New("clock: preview role cannot set session epoch")

// Clock is the process-wide monotonic reference for one session. The zero
// value is ready to use; the epoch starts unset.
type Clock struct {
	epochUs atomic.Int64 // meaningful only once set is true
	set     atomic.Bool
}

// New returns a Clock with no epoch set.
func New() *Clock {
	return &Clock{}
}

// NowUTCUs returns the current wall-clock time in microseconds since the
// Unix epoch.
func (c *Clock) NowUTCUs() int64 {
	return time.Now().UnixMicro()
}

// NowMonotonic returns a steady monotonic clock reading suitable for
// duration arithmetic (immune to wall-clock steps, e.g. NTP adjustment).
func (c *Clock) NowMonotonic() time.Time {
	return time.Now()
}

// SessionEpochUs returns the session epoch in microseconds, and whether it
// has been set yet. Read-only after TrySetEpochOnce's first success.
func (c *Clock) SessionEpochUs() (int64, bool) {
	if !c.set.Load() {
		return 0, false
	}
	return c.epochUs.Load(), true
}

// TrySetEpochOnce atomically sets the session epoch iff it is not already
// set. Returns (true, nil) on the first successful call for this Clock's
// lifetime; (false, nil) on every subsequent attempt — the caller continues
// with the existing epoch, this is expected, not an error. Returns
// (false, ErrPreviewCannotSetEpoch) if role is RolePreview; the epoch is
// left untouched in that case regardless of whether it was already set.
func (c *Clock) TrySetEpochOnce(epochUs int64, role Role) (bool, error) {
	if role == RolePreview {
		return false, ErrPreviewCannotSetEpoch
	}
	if c.set.CompareAndSwap(false, true) {
		c.epochUs.Store(epochUs)
		return true, nil
	}
	return false, nil
}

// ResetEpochForNewSession clears the epoch lock at session teardown so a
// subsequent session on the same Clock can set a fresh epoch.
func (c *Clock) ResetEpochForNewSession() {
	c.set.Store(false)
	c.epochUs.Store(0)
}

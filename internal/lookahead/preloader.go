package lookahead

import "sync"

// Preloader primes a preview-slot block's first decoded frame so the swap
// tick never has to wait on decode (spec §4.4 "Preloader" and §4.7
// "Priming as a separate concern from timing"). Its success is orthogonal
// to whether the swap happens: a failed or slow prime means a black/freeze
// at the boundary, never a delayed boundary, so Ready never blocks a
// caller past ctx cancellation upstream of this type.
type Preloader struct {
	mu     sync.Mutex
	ready  chan struct{}
	primed bool
}

// NewPreloader returns a Preloader in the unprimed state.
func NewPreloader() *Preloader {
	return &Preloader{ready: make(chan struct{})}
}

// MarkPrimed signals that the first decoded frame for this block is
// buffered and ready (state kPriming → kReady). Idempotent: only the
// first call has any effect.
func (p *Preloader) MarkPrimed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.primed {
		p.primed = true
		close(p.ready)
	}
}

// Ready returns a channel closed once MarkPrimed has been called. The
// Pipeline Manager must never block the swap on this channel (§4.7); it
// may only poll it to decide whether to log a priming-miss diagnostic.
func (p *Preloader) Ready() <-chan struct{} {
	return p.ready
}

// Primed reports whether MarkPrimed has been called, without blocking.
func (p *Preloader) Primed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.primed
}

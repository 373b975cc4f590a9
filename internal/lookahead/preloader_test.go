package lookahead

import (
	"testing"
	"time"
)

func TestPreloaderMarkPrimedIsIdempotent(t *testing.T) {
	t.Parallel()

	p := NewPreloader()
	if p.Primed() {
		t.Fatal("new Preloader Primed() = true, want false")
	}

	p.MarkPrimed()
	p.MarkPrimed() // must not panic on double-close

	if !p.Primed() {
		t.Error("Primed() = false after MarkPrimed, want true")
	}

	select {
	case <-p.Ready():
	case <-time.After(time.Second):
		t.Fatal("Ready() channel not closed after MarkPrimed")
	}
}

func TestPreloaderReadyBlocksUntilPrimed(t *testing.T) {
	t.Parallel()

	p := NewPreloader()
	select {
	case <-p.Ready():
		t.Fatal("Ready() closed before MarkPrimed")
	default:
	}
}

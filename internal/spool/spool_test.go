package spool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/airplayout/core/internal/evidence"
)

func mustWriter(t *testing.T, root string, maxBytes int64) *Writer {
	t.Helper()
	w, err := NewWriter(root, "chan-1", "sess-1", maxBytes, nil)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	return w
}

func TestEnqueueAndFlushThenReplay(t *testing.T) {
	t.Parallel()
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	root := t.TempDir()

	w := mustWriter(t, root, 0)
	ctx, cancel := context.WithCancel(context.Background())

	runErr := make(chan error, 1)
	go func() { runErr <- w.Run(ctx) }()

	for i := int64(1); i <= 5; i++ {
		w.Enqueue(evidence.Event{Sequence: i, PayloadType: evidence.BlockStart})
	}

	time.Sleep(flushInterval + 50*time.Millisecond)
	cancel()
	if err := <-runErr; err != nil {
		t.Fatalf("Run: %v", err)
	}
	w.file.Close()

	events, err := Replay(root, "chan-1", "sess-1", 1)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("Replay returned %d events, want 5", len(events))
	}
	for i, ev := range events {
		want := int64(i + 1)
		if ev.Sequence != want {
			t.Errorf("event %d Sequence = %d, want %d", i, ev.Sequence, want)
		}
	}
}

func TestReplayFromMidSequenceAfterAck(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	w := mustWriter(t, root, 0)
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	for i := int64(1); i <= 100; i++ {
		w.Enqueue(evidence.Event{Sequence: i, PayloadType: evidence.BlockStart})
	}
	time.Sleep(flushInterval + 50*time.Millisecond)
	cancel()
	w.file.Close()

	if err := w.UpdateAck(42); err != nil {
		t.Fatalf("UpdateAck: %v", err)
	}
	events, err := Replay(root, "chan-1", "sess-1", w.AckedSequence()+1)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(events) != 58 {
		t.Fatalf("Replay from 43 of 100 events returned %d, want 58", len(events))
	}
	if events[0].Sequence != 43 {
		t.Errorf("first replayed Sequence = %d, want 43", events[0].Sequence)
	}
	if events[len(events)-1].Sequence != 100 {
		t.Errorf("last replayed Sequence = %d, want 100", events[len(events)-1].Sequence)
	}
}

func TestUpdateAckPersistsAndReloads(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	w := mustWriter(t, root, 0)
	require.NoError(t, w.UpdateAck(42))
	w.file.Close()

	w2, err := NewWriter(root, "chan-1", "sess-1", 0, nil)
	require.NoError(t, err)
	require.Equal(t, int64(42), w2.AckedSequence())
}

func TestFlushRefusesOverDiskCap(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	w := mustWriter(t, root, 10) // tiny cap, guaranteed to be exceeded
	w.Enqueue(evidence.Event{Sequence: 1, PayloadType: evidence.BlockStart})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, w.Run(ctx), ErrSpoolFull)
}

func TestCorruptTailLineDiscardedEarlierLinesKept(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	w := mustWriter(t, root, 0)
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	w.Enqueue(evidence.Event{Sequence: 1, PayloadType: evidence.BlockStart})
	w.Enqueue(evidence.Event{Sequence: 2, PayloadType: evidence.BlockStart})
	time.Sleep(flushInterval + 50*time.Millisecond)
	cancel()

	// append a truncated, non-JSON tail line directly to simulate a
	// torn write at process crash
	if _, err := w.file.WriteString("{not valid json"); err != nil {
		t.Fatalf("write corrupt tail: %v", err)
	}
	w.file.Close()

	events, err := Replay(root, "chan-1", "sess-1", 1)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Replay with corrupt tail returned %d events, want 2", len(events))
	}
}

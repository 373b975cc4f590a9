// Package spool implements the durable, append-only JSONL evidence log
// (spec §4.8 "Durable spool"): a per-(channel, session) spool file, a
// companion ACK file, replay-from-acked-sequence-plus-one on reconnect,
// corrupt-tail-line discard, and per-channel disk cap enforcement.
//
// The Writer/queue split mirrors internal/ingest/ingest.go's Registry
// shape (map/registration under a mutex, async dispatch to a consumer),
// retargeted from "active stream bookkeeping" to "buffered evidence
// events awaiting a durable flush".
package spool

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/airplayout/core/internal/evidence"
)

// ErrSpoolFull is returned from Run once the channel's spool directory
// would exceed its configured disk cap. The batch that crosses the cap is
// still written before the error surfaces; nothing is dropped (spec
// §4.8: "Evidence is never silently dropped").
var ErrSpoolFull = errors.New("spool: channel evidence spool exceeds disk cap")

// flushInterval and flushBatch are the bounded flush window (spec §4.8:
// "every 250 ms or every 50 records, whichever first").
const (
	flushInterval = 250 * time.Millisecond
	flushBatch    = 50
)

// Writer is the append-only spool for one (channel_id, playout_session_id)
// pair. It implements evidence.Sink.
type Writer struct {
	log *slog.Logger

	channelID string
	sessionID string
	dir       string
	file      *os.File

	maxBytes     int64
	writtenBytes int64

	mu      sync.Mutex
	pending []evidence.Event

	ackedSequence int64

	eventsCh chan evidence.Event
}

// spoolPath and ackPath implement spec §4.8's layout:
//
//	<root>/evidence_spool/<channel_id>/<playout_session_id>.spool.jsonl
//	<root>/evidence_spool/<channel_id>/<playout_session_id>.ack
func spoolPath(root, channelID, sessionID string) string {
	return filepath.Join(root, "evidence_spool", channelID, sessionID+".spool.jsonl")
}

func ackPath(root, channelID, sessionID string) string {
	return filepath.Join(root, "evidence_spool", channelID, sessionID+".ack")
}

// NewWriter opens (creating if absent) the spool file for append and
// loads any existing ACK cursor, for resuming a session after a restart.
func NewWriter(root, channelID, sessionID string, maxBytes int64, log *slog.Logger) (*Writer, error) {
	if log == nil {
		log = slog.Default()
	}

	dir := filepath.Dir(spoolPath(root, channelID, sessionID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("spool: create channel directory: %w", err)
	}

	f, err := os.OpenFile(spoolPath(root, channelID, sessionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("spool: open spool file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("spool: stat spool file: %w", err)
	}

	// The cap covers the whole channel directory, so earlier sessions'
	// spool and ACK files count against it too.
	used := info.Size()
	if entries, err := os.ReadDir(dir); err == nil {
		used = 0
		for _, e := range entries {
			if fi, err := e.Info(); err == nil && !fi.IsDir() {
				used += fi.Size()
			}
		}
	}

	w := &Writer{
		log:          log.With("component", "spool-writer", "channel_id", channelID, "session_id", sessionID),
		channelID:    channelID,
		sessionID:    sessionID,
		dir:          root,
		file:         f,
		maxBytes:     maxBytes,
		writtenBytes: used,
		eventsCh:     make(chan evidence.Event, flushBatch*4),
	}

	if acked, ok, err := readAck(ackPath(root, channelID, sessionID)); err != nil {
		f.Close()
		return nil, err
	} else if ok {
		w.ackedSequence = acked
	}

	return w, nil
}

func readAck(path string) (sequence int64, ok bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("spool: read ack file: %w", err)
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, false, nil
	}
	seq, convErr := strconv.ParseInt(fields[0], 10, 64)
	if convErr != nil {
		return 0, false, fmt.Errorf("spool: parse ack file: %w", convErr)
	}
	return seq, true, nil
}

// Enqueue implements evidence.Sink. It never blocks the emitter: the tick
// thread must never stall on spool I/O (spec §4.8 "Spool writer thread...
// never runs on the tick thread").
func (w *Writer) Enqueue(ev evidence.Event) {
	select {
	case w.eventsCh <- ev:
	default:
		// Channel buffer is momentarily saturated; fall back to a direct,
		// mutex-guarded append so the event is never lost even under a
		// flush-thread stall.
		w.mu.Lock()
		w.pending = append(w.pending, ev)
		w.mu.Unlock()
	}
}

// Run drives the flush loop until ctx is cancelled or the disk cap is
// exceeded. It is the "spool writer thread" (spec §5, §4.8): it never
// runs on the tick thread, and the caller is expected to run it in its
// own goroutine.
func (w *Writer) Run(ctx context.Context) error {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.flush()
			return nil

		case ev := <-w.eventsCh:
			w.mu.Lock()
			w.pending = append(w.pending, ev)
			count := len(w.pending)
			w.mu.Unlock()
			if count >= flushBatch {
				if err := w.flush(); err != nil {
					return err
				}
			}

		case <-ticker.C:
			if err := w.flush(); err != nil {
				return err
			}
		}
	}
}

// flush writes all pending events to disk as JSONL, enforcing the disk
// cap before each write.
func (w *Writer) flush() error {
	w.mu.Lock()
	batch := w.pending
	w.pending = nil
	w.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	var buf []byte
	for _, ev := range batch {
		line, err := json.Marshal(ev)
		if err != nil {
			w.log.Error("evidence event marshal failed, skipping", "error", err, "sequence", ev.Sequence)
			continue
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}

	if w.maxBytes > 0 && w.writtenBytes+int64(len(buf)) > w.maxBytes {
		// Write the whole batch, past the cap and without a Sync, before
		// refusing further writes; never silently drop events that
		// already made it here.
		w.file.Write(buf)
		w.writtenBytes += int64(len(buf))
		w.log.Error("evidence spool disk cap exceeded", "channel_id", w.channelID, "max_bytes", w.maxBytes)
		return ErrSpoolFull
	}

	n, err := w.file.Write(buf)
	w.writtenBytes += int64(n)
	if err != nil {
		return fmt.Errorf("spool: write batch: %w", err)
	}
	return w.file.Sync()
}

// UpdateAck records the highest sequence Core has durably persisted,
// written to the companion ACK file (spec §4.8).
func (w *Writer) UpdateAck(sequence int64) error {
	w.mu.Lock()
	w.ackedSequence = sequence
	w.mu.Unlock()

	content := fmt.Sprintf("%d %d\n", sequence, time.Now().UnixMicro())
	path := ackPath(w.dir, w.channelID, w.sessionID)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("spool: write ack file: %w", err)
	}
	return nil
}

// AckedSequence returns the last sequence recorded as acknowledged.
func (w *Writer) AckedSequence() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ackedSequence
}

// Replay reads the spool file from disk and returns every event with
// sequence >= fromSequence, in order (spec §4.8 "On reconnect, the
// emitter replays from acked_sequence + 1"). A corrupt trailing line (one
// that fails to parse) is discarded; all earlier lines remain readable
// (spec §4.8).
func Replay(root, channelID, sessionID string, fromSequence int64) ([]evidence.Event, error) {
	f, err := os.Open(spoolPath(root, channelID, sessionID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("spool: open for replay: %w", err)
	}
	defer f.Close()

	var events []evidence.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev evidence.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			// Only a trailing, truncated write should ever fail to parse;
			// discard it and keep whatever was already collected.
			continue
		}
		if ev.Sequence >= fromSequence {
			events = append(events, ev)
		}
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("spool: scan spool file: %w", err)
	}
	return events, nil
}

// Finalize deletes the spool and ACK files for this session, but only
// when Core has acknowledged through the final sequence and a finalizing
// event (BLOCK_FENCE of the last block, or CHANNEL_TERMINATED) is present
// in hasFinalizingEvent (spec §4.8 "Spool files are deleted only when
// Core has ACKed the final sequence and a finalizing event... is
// present").
func (w *Writer) Finalize(finalSequence int64, hasFinalizingEvent bool) error {
	w.mu.Lock()
	acked := w.ackedSequence
	w.mu.Unlock()

	if !hasFinalizingEvent || acked < finalSequence {
		return nil
	}

	if err := w.file.Close(); err != nil {
		return fmt.Errorf("spool: close spool file before delete: %w", err)
	}
	if err := os.Remove(spoolPath(w.dir, w.channelID, w.sessionID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("spool: remove spool file: %w", err)
	}
	if err := os.Remove(ackPath(w.dir, w.channelID, w.sessionID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("spool: remove ack file: %w", err)
	}
	return nil
}

// Close flushes any pending events, including those still buffered from
// Enqueue after Run returned, and closes the underlying file handle
// without deleting it.
func (w *Writer) Close() error {
	for drained := false; !drained; {
		select {
		case ev := <-w.eventsCh:
			w.mu.Lock()
			w.pending = append(w.pending, ev)
			w.mu.Unlock()
		default:
			drained = true
		}
	}
	if err := w.flush(); err != nil && !errors.Is(err, ErrSpoolFull) {
		return err
	}
	return w.file.Close()
}

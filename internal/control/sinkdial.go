package control

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/airplayout/core/internal/sink"
)

// dialMpegTSSink dials the local MPEG-TS muxer's listening port (spec §1:
// "the MPEG-TS muxer, treated as an opaque sink with a frame-in /
// packet-out contract" — an external collaborator this module connects
// to but never implements).
func dialMpegTSSink(port int, log *slog.Logger) (sink.Sink, error) {
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("control: dial mpegts muxer port %d: %w", port, err)
	}
	return sink.NewMpegTSOutputSink(conn, false, log), nil
}

// dialUdsSink dials the muxer's Unix domain socket when StartChannel is
// given uds_path instead of a TCP port (spec §6 "uds_path?").
func dialUdsSink(path string, log *slog.Logger) (sink.Sink, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("control: dial uds muxer at %q: %w", path, err)
	}
	return sink.NewUdsSink(conn, false, log), nil
}

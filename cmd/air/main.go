// Command air runs the playout execution core: a process that owns zero or
// more channel sessions, each driven by the Pipeline Manager and exposed
// through the control surface's HTTP/JSON façade (spec §6; the real gRPC
// adapter is an external collaborator, spec §1).
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/airplayout/core/internal/certs"
	"github.com/airplayout/core/internal/control"
)

var version = "dev"

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	evidenceRoot := envOr("EVIDENCE_ROOT", "/var/lib/air/evidence")
	apiAddr := envOr("API_ADDR", ":8080")
	planDir := envOr("PLAN_DIR", "/var/lib/air/plans")
	maxSpoolBytes := envOrInt64("MAX_SPOOL_BYTES", 0)

	log.Info("air starting",
		"version", version,
		"api", apiAddr,
		"evidence_root", evidenceRoot,
		"plan_dir", planDir,
		"max_spool_bytes", maxSpoolBytes,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := os.MkdirAll(evidenceRoot, 0o755); err != nil {
		log.Error("failed to create evidence root", "error", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(planDir, 0o755); err != nil {
		log.Error("failed to create plan directory", "error", err)
		os.Exit(1)
	}

	cert, err := certs.Generate(14 * 24 * time.Hour)
	if err != nil {
		log.Error("failed to generate control-surface certificate", "error", err)
		os.Exit(1)
	}
	log.Info("control-surface certificate generated",
		"fingerprint", cert.FingerprintBase64(),
		"expires", cert.NotAfter.Format(time.RFC3339),
	)

	mgr := control.NewManager(evidenceRoot, maxSpoolBytes, log)
	srv := control.NewServer(mgr, log)

	watcher, err := control.NewPlanWatcher(mgr, planDir, log)
	if err != nil {
		log.Error("failed to start plan watcher", "error", err)
		os.Exit(1)
	}

	httpSrv := &http.Server{
		Addr:      apiAddr,
		Handler:   srv.Handler(),
		TLSConfig: &tls.Config{Certificates: []tls.Certificate{cert.TLSCert}},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("control HTTPS server listening", "addr", apiAddr, "cert_hash", cert.FingerprintBase64())
		if err := httpSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("control server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return watcher.Run(ctx)
	})

	waitErr := g.Wait()
	mgr.StopAll()
	if waitErr != nil {
		log.Error("server error", "error", waitErr)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		slog.Warn("invalid integer env var, using fallback", "key", key, "value", v, "fallback", fallback)
		return fallback
	}
	return n
}

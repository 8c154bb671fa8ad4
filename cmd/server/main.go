// Spikely server - correlates viewer spikes with transcript segments and serves insights over WebSocket
package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spikely/platform/internal/clients"
	"github.com/spikely/platform/internal/config"
	"github.com/spikely/platform/internal/correlator"
	"github.com/spikely/platform/internal/grpcclient"
	"github.com/spikely/platform/internal/orchestrator"
	"github.com/spikely/platform/internal/relay"
	"github.com/spikely/platform/internal/server"
	"github.com/spikely/platform/internal/store"
	"github.com/spikely/platform/internal/tone"
)

// collaborator is the scoring and tone backend, whichever transport serves it.
type collaborator interface {
	correlator.Scorer
	tone.Classifier
}

func main() {
	cfg := config.Load()

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	collab, closer, err := connect(cfg)
	if err != nil {
		slog.Error("failed to set up collaborators", "transport", cfg.CollabTransport, "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open insight store", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	var rel *relay.Relay
	if cfg.RelayURL != "" {
		rel = relay.New(relay.Config{URL: cfg.RelayURL, StreamerID: cfg.StreamerID, Platform: cfg.Platform})
	}

	// Create correlation session
	mgr := orchestrator.New(orchestrator.Config{
		Classifier: collab,
		Scorer:     collab,
		History:    db,
		Relay:      rel,
		Correlator: correlator.Options{
			MinDelta:        cfg.MinDelta,
			Cooldown:        cfg.Cooldown,
			Window:          cfg.CorrelationWindow,
			ScoringDeadline: cfg.ScoringDeadline,
			DumpThreshold:   cfg.DumpThreshold,
			IdleDelay:       cfg.StatusIdleDelay,
		},
		Tone: tone.Config{MinScore: cfg.ToneMinScore, CallDelay: cfg.ToneDelay},
	})

	// Create HTTP/WebSocket server
	srv := server.New(mgr).WithFeedback(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mgr.Start(ctx); err != nil {
		slog.Error("session start error", "error", err)
		os.Exit(1)
	}

	// Start HTTP server
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("spikely server starting", "http", cfg.HTTPAddr, "transport", cfg.CollabTransport, "session", mgr.ID())
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	srv.Close()
	mgr.Stop()
	slog.Info("shutdown complete")
}

func connect(cfg *config.Config) (collaborator, io.Closer, error) {
	if cfg.CollabTransport != config.TransportGRPC {
		return clients.NewHTTP(cfg.ToneURL, cfg.ScoringURL), nil, nil
	}

	gc, err := grpcclient.New(cfg.InferenceAddr, grpcclient.DefaultConfig())
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), grpcclient.DefaultReadyTimeout)
	defer cancel()
	if err := gc.WaitReady(ctx); err != nil {
		// The connection keeps retrying; calls fail fast through the breakers until it is up.
		slog.Warn("inference server not ready", "addr", cfg.InferenceAddr, "error", err)
	}
	return gc, gc, nil
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"feedhub/internal/config"
	"feedhub/internal/feed"
	"feedhub/internal/hub"
	"feedhub/internal/server"
	"feedhub/internal/storage"
	"feedhub/internal/verify"
	"feedhub/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	snapshots, err := feed.NewSnapshotStore(cfg.FeedsDir)
	if err != nil {
		log.Error("open snapshot store", "path", cfg.FeedsDir, "error", err)
		os.Exit(1)
	}

	client := http.DefaultClient
	differ := feed.NewDiffer(client, snapshots, cfg.RequestTimeout)
	verifier := verify.New(client, cfg.RequestTimeout)
	engine := hub.New(store, differ, verifier, client, log, cfg.RequestTimeout)
	sweep := worker.New(store, verifier, log, cfg.VerifyInterval)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.New(engine, store, sweep, log, cfg.AdminUser, cfg.AdminPassword).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go sweep.Run(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("starting hub", "addr", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("serve", "error", err)
		os.Exit(1)
	}

	log.Info("hub stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

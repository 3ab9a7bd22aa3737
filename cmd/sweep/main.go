// Command sweep runs one verification pass over pending subscriptions
// and exits, for cron-style scheduling alongside or instead of the
// hub's built-in worker.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"feedhub/internal/config"
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

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	verifier := verify.New(http.DefaultClient, cfg.RequestTimeout)
	w := worker.New(store, verifier, log, cfg.VerifyInterval)

	if err := w.Sweep(context.Background()); err != nil {
		log.Error("verification sweep", "error", err)
		os.Exit(1)
	}
}

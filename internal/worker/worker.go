// Package worker runs the background reconciliation sweep that
// completes deferred subscription verifications.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"feedhub/internal/model"
	"feedhub/internal/storage"
	"feedhub/internal/verify"
)

// Worker periodically re-verifies pending async subscriptions.
type Worker struct {
	store    storage.Storage
	verifier *verify.Verifier
	log      *slog.Logger
	interval time.Duration
	limit    int
}

// New creates a Worker that sweeps every interval.
func New(store storage.Storage, verifier *verify.Verifier, log *slog.Logger, interval time.Duration) *Worker {
	return &Worker{
		store:    store,
		verifier: verifier,
		log:      log,
		interval: interval,
		limit:    8,
	}
}

// Run starts the sweep loop, blocking until ctx is cancelled. In-flight
// handshakes run to their own timeout; only the schedule stops.
func (w *Worker) Run(ctx context.Context) {
	if err := w.Sweep(ctx); err != nil {
		w.log.Error("verification sweep", "error", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil {
				w.log.Error("verification sweep", "error", err)
			}
		}
	}
}

// Sweep runs one reconciliation pass: every async subscription still
// pending gets a fresh challenge, concurrently. Rows that verify flip
// to verified; the rest stay pending and are retried next cycle,
// indefinitely.
func (w *Worker) Sweep(ctx context.Context) error {
	subs, err := w.store.ListPendingAsync(ctx)
	if err != nil {
		return fmt.Errorf("list pending subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}
	w.log.Debug("sweeping pending subscriptions", "count", len(subs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.limit)
	for _, sub := range subs {
		g.Go(func() error {
			w.check(ctx, sub)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) check(ctx context.Context, sub model.Subscription) {
	callback, err := sub.CallbackURL()
	if err != nil {
		w.log.Error("decode callback", "subscription_id", sub.ID, "error", err)
		return
	}
	topic, err := w.store.GetTopic(ctx, sub.TopicID)
	if err != nil {
		w.log.Error("load topic", "subscription_id", sub.ID, "error", err)
		return
	}
	topicURL, err := topic.URL()
	if err != nil {
		w.log.Error("decode topic", "topic_id", topic.ID, "error", err)
		return
	}

	ok := w.verifier.Verify(ctx, verify.Request{
		CallbackURL: callback,
		Mode:        string(sub.VerifyMode),
		TopicURL:    topicURL,
		VerifyToken: sub.VerifyToken,
	})
	if !ok {
		w.log.Debug("verification failed, left pending", "callback", callback)
		return
	}

	if err := w.store.MarkVerified(ctx, sub.ID); err != nil {
		w.log.Error("mark verified", "subscription_id", sub.ID, "error", err)
		return
	}
	w.log.Info("subscription verified", "callback", callback, "topic", topicURL)
}

// Package hub implements the protocol engine: publish handling with
// feed diffing and notification fan-out, and the subscribe/unsubscribe
// path with its verification handshake.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"feedhub/internal/feed"
	"feedhub/internal/model"
	"feedhub/internal/storage"
	"feedhub/internal/verify"
)

// Minimum interval between accepted publishes for the same topic.
const minPublishInterval = 5 * time.Minute

const (
	maxKeyLen    = 256
	maxSecretLen = 64
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Hub orchestrates publish and subscribe/unsubscribe operations.
type Hub struct {
	store       storage.Storage
	differ      *feed.Differ
	verifier    *verify.Verifier
	client      HTTPClient
	log         *slog.Logger
	timeout     time.Duration // per notification delivery
	fanoutLimit int
}

// New creates a Hub. timeout bounds each outbound notification POST.
func New(store storage.Storage, differ *feed.Differ, verifier *verify.Verifier, client HTTPClient, log *slog.Logger, timeout time.Duration) *Hub {
	return &Hub{
		store:       store,
		differ:      differ,
		verifier:    verifier,
		client:      client,
		log:         log,
		timeout:     timeout,
		fanoutLimit: 8,
	}
}

// Publish handles a publisher ping for topicURL. A previously unseen
// URL only registers the topic; a known one is rate-limited, diffed,
// and, when new entries appeared, fanned out to verified subscribers.
func (h *Hub) Publish(ctx context.Context, topicURL string) error {
	if topicURL == "" {
		return fmt.Errorf("%w: empty or missing 'hub.url' parameter", ErrBadRequest)
	}

	key := model.EncodeKey(topicURL)
	if len(key) > maxKeyLen {
		return fmt.Errorf("%w: 'hub.url' too long", ErrBadRequest)
	}

	topic, err := h.store.GetTopicByKey(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		h.log.Debug("new topic", "url", topicURL)
		return h.store.CreateTopic(ctx, &model.Topic{Key: key})
	}
	if err != nil {
		return fmt.Errorf("lookup topic: %w", err)
	}

	h.log.Debug("topic exists", "url", topicURL)
	if since := time.Since(topic.UpdatedAt); since < minPublishInterval {
		retry := minPublishInterval - since
		h.log.Warn("publish too fast", "url", topicURL, "since", since)
		return &RateLimitedError{RetryAfter: retry}
	}

	topic.Dirty = true
	topic.UpdatedAt = time.Now().UTC()
	if err := h.store.UpdateTopic(ctx, topic); err != nil {
		return fmt.Errorf("mark topic dirty: %w", err)
	}

	h.diffAndNotify(ctx, topic, topicURL)

	topic.Dirty = false
	if err := h.store.UpdateTopic(ctx, topic); err != nil {
		return fmt.Errorf("clear topic dirty: %w", err)
	}
	return nil
}

// diffAndNotify runs the differ and fans out to verified subscribers.
// Fetch failures end here: the publish itself already succeeded, the
// topic just produces no notification this cycle.
func (h *Hub) diffAndNotify(ctx context.Context, topic *model.Topic, topicURL string) {
	subs, err := h.store.ListSubscriptionsByState(ctx, topic.ID, model.StateVerified)
	if err != nil {
		h.log.Error("list verified subscribers", "url", topicURL, "error", err)
		return
	}
	h.log.Debug("verified subscribers", "url", topicURL, "count", len(subs))

	result, err := h.differ.Diff(ctx, topicURL)
	if err != nil {
		h.log.Error("diff feed", "url", topicURL, "error", err)
		return
	}
	if result == nil || len(subs) == 0 {
		return
	}

	payload, err := feed.Fragment(result.Title, result.Entries)
	if err != nil {
		h.log.Error("serialize fragment", "url", topicURL, "error", err)
		return
	}
	h.fanOut(ctx, subs, payload)
}

// SubscriptionRequest carries the parameters of a subscribe or
// unsubscribe operation.
type SubscriptionRequest struct {
	Mode        string // "subscribe" or "unsubscribe"
	Callback    string
	Topic       string
	VerifyModes string // comma-separated preference list
	VerifyToken string
	Secret      string
}

// Subscribe handles a subscribe or unsubscribe request. It reports
// whether verification was deferred to the background worker (async
// mode); when it was, the subscription exists but is still pending.
func (h *Hub) Subscribe(ctx context.Context, req SubscriptionRequest) (async bool, err error) {
	if req.Callback == "" || req.Topic == "" {
		return false, fmt.Errorf("%w: empty 'hub.callback' or 'hub.topic'", ErrBadRequest)
	}
	// Fragment components are disallowed in both URLs by the protocol.
	if strings.Contains(req.Callback, "#") || strings.Contains(req.Topic, "#") {
		return false, fmt.Errorf("%w: invalid URL", ErrBadRequest)
	}
	if req.Mode != "subscribe" && req.Mode != "unsubscribe" {
		return false, fmt.Errorf("%w: unrecognized mode", ErrBadRequest)
	}
	if len(req.VerifyToken) > maxSecretLen || len(req.Secret) > maxSecretLen {
		return false, fmt.Errorf("%w: 'hub.verify_token' or 'hub.secret' too long", ErrBadRequest)
	}

	mode, ok := firstVerifyMode(req.VerifyModes)
	if !ok {
		return false, fmt.Errorf("%w: unrecognized verification mode", ErrBadRequest)
	}

	topicKey := model.EncodeKey(req.Topic)
	callbackKey := model.EncodeKey(req.Callback)
	if len(topicKey) > maxKeyLen || len(callbackKey) > maxKeyLen {
		return false, fmt.Errorf("%w: URL too long", ErrBadRequest)
	}

	topic, err := h.store.GetTopicByKey(ctx, topicKey)
	if errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("%w: unknown topic %q", ErrNotFound, req.Topic)
	}
	if err != nil {
		return false, fmt.Errorf("lookup topic: %w", err)
	}

	state := model.StateVerified
	if mode == model.VerifyAsync {
		state = model.StatePending
	} else {
		ok := h.verifier.Verify(ctx, verify.Request{
			CallbackURL: req.Callback,
			Mode:        req.Mode,
			TopicURL:    req.Topic,
			VerifyToken: req.VerifyToken,
		})
		if !ok {
			return false, fmt.Errorf("%w: callback did not echo challenge", ErrHandshakeFailed)
		}
	}

	h.log.Debug("subscription",
		"mode", req.Mode, "topic", req.Topic, "callback", req.Callback, "verify", mode)

	// Re-subscribing replaces any existing row for (topic, callback);
	// unsubscribe performs only the delete.
	if err := h.store.DeleteSubscription(ctx, topic.ID, callbackKey); err != nil {
		return false, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	if req.Mode == "subscribe" {
		sub := &model.Subscription{
			TopicID:     topic.ID,
			CallbackKey: callbackKey,
			VerifyMode:  mode,
			State:       state,
			VerifyToken: req.VerifyToken,
			Secret:      req.Secret,
		}
		if err := h.store.CreateSubscription(ctx, sub); err != nil {
			return false, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
		}
	}
	return mode == model.VerifyAsync, nil
}

// firstVerifyMode filters the comma-separated preference list down to
// recognized modes and returns the first survivor.
func firstVerifyMode(raw string) (model.VerifyMode, bool) {
	for _, part := range strings.Split(raw, ",") {
		switch model.VerifyMode(strings.TrimSpace(part)) {
		case model.VerifySync:
			return model.VerifySync, true
		case model.VerifyAsync:
			return model.VerifyAsync, true
		}
	}
	return "", false
}

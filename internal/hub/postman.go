package hub

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"feedhub/internal/feed"
	"feedhub/internal/model"
)

// SignatureHeader carries the keyed hash of the delivery body when the
// subscription registered a secret.
const SignatureHeader = "X-Hub-Signature"

// Signature computes the delivery signature for a payload: an HMAC-SHA1
// over the body keyed by the subscriber's secret, hex encoded.
func Signature(secret string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return "sha1=" + hex.EncodeToString(mac.Sum(nil))
}

// fanOut delivers payload to every subscription, at most once each.
// Deliveries run concurrently with a bounded limit; a failed or slow
// subscriber is logged and never affects the others. There are no
// retries.
func (h *Hub) fanOut(ctx context.Context, subs []model.Subscription, payload []byte) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(h.fanoutLimit)

	for _, sub := range subs {
		g.Go(func() error {
			if err := h.deliver(ctx, sub, payload); err != nil {
				h.log.Error("notification delivery", "callback_key", sub.CallbackKey, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (h *Hub) deliver(ctx context.Context, sub model.Subscription, payload []byte) error {
	url, err := sub.CallbackURL()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", feed.ContentType)
	if sub.Secret != "" {
		req.Header.Set(SignatureHeader, Signature(sub.Secret, payload))
	}

	h.log.Debug("updating subscriber", "url", url)
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	_ = resp.Body.Close()
	return nil
}

package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"feedhub/internal/model"
)

// handleAdmin writes a plain-text listing of every topic with its
// subscriptions and their verification state.
func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	topics, err := s.store.ListTopics(ctx)
	if err != nil {
		s.log.Error("admin listing", "error", err)
		writeStatus(w, http.StatusInternalServerError, err.Error())
		return
	}

	var b strings.Builder
	b.WriteString("List of subscriptions by topic\n\n")
	for _, topic := range topics {
		url, err := topic.URL()
		if err != nil {
			url = topic.Key
		}
		b.WriteString("Topic\n")
		fmt.Fprintf(&b, " URL:     %s\n", url)
		fmt.Fprintf(&b, " Created: %s\n", topic.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(&b, " Updated: %s\n", topic.UpdatedAt.Format(time.RFC3339))

		subs, err := s.store.ListSubscriptions(ctx, topic.ID)
		if err != nil {
			s.log.Error("admin listing", "topic_id", topic.ID, "error", err)
			continue
		}
		fmt.Fprintf(&b, " Subscriptions (count=%d)\n", len(subs))
		for _, sub := range subs {
			callback, err := sub.CallbackURL()
			if err != nil {
				callback = sub.CallbackKey
			}
			verified := "no"
			if sub.State == model.StateVerified {
				verified = "yes"
			}
			fmt.Fprintf(&b, "  Id:         %d\n", sub.ID)
			fmt.Fprintf(&b, "  Subscriber: %s\n", callback)
			fmt.Fprintf(&b, "  Created:    %s\n", sub.CreatedAt.Format(time.RFC3339))
			fmt.Fprintf(&b, "  Mode:       %s\n", sub.VerifyMode)
			fmt.Fprintf(&b, "  Verified:   %s\n", verified)
			b.WriteString("\n")
		}
	}
	_, _ = w.Write([]byte(b.String()))
}

// Package server exposes the hub over HTTP: the multiplexed hub
// endpoint for publishers and subscribers, and the protected admin
// surface.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"feedhub/internal/hub"
	"feedhub/internal/storage"
)

// Sweeper triggers one verification pass on demand.
type Sweeper interface {
	Sweep(ctx context.Context) error
}

// Server handles the hub's inbound HTTP traffic.
type Server struct {
	hub       *hub.Hub
	store     storage.Storage
	sweeper   Sweeper
	log       *slog.Logger
	adminUser string
	adminPass string
}

// New creates a Server. Empty admin credentials disable the admin routes.
func New(h *hub.Hub, store storage.Storage, sweeper Sweeper, log *slog.Logger, adminUser, adminPass string) *Server {
	return &Server{
		hub:       h,
		store:     store,
		sweeper:   sweeper,
		log:       log,
		adminUser: adminUser,
		adminPass: adminPass,
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /{$}", s.handleHub)
	mux.HandleFunc("POST /verify", s.protected(s.handleVerify))
	mux.HandleFunc("GET /admin", s.protected(s.handleAdmin))
	return mux
}

// handleHub multiplexes the single hub endpoint on hub.mode.
func (s *Server) handleHub(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := r.ParseForm(); err != nil {
		writeStatus(w, http.StatusBadRequest, "Bad request: unparsable form")
		return
	}

	switch r.PostFormValue("hub.mode") {
	case "publish":
		s.handlePublish(w, r)
	case "subscribe", "unsubscribe":
		s.handleSubscribe(w, r)
	case "":
		writeStatus(w, http.StatusBadRequest, "Bad request, missing 'hub.mode' parameter")
	default:
		writeStatus(w, http.StatusBadRequest, "Bad request, unknown 'hub.mode' parameter")
	}
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	err := s.hub.Publish(r.Context(), r.PostFormValue("hub.url"))

	var rateLimited *hub.RateLimitedError
	switch {
	case err == nil:
		writeStatus(w, http.StatusNoContent, "204 No Content")
	case errors.As(err, &rateLimited):
		// A 204 cannot carry a body, so the wait hint travels as a header.
		w.Header().Set("Retry-After", fmt.Sprintf("%d", rateLimited.Minutes()*60))
		writeStatus(w, http.StatusNoContent, "")
	case errors.Is(err, hub.ErrBadRequest):
		writeStatus(w, http.StatusBadRequest, "Bad request: "+err.Error())
	default:
		s.log.Error("publish", "error", err)
		writeStatus(w, http.StatusNotFound, err.Error())
	}
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	async, err := s.hub.Subscribe(r.Context(), hub.SubscriptionRequest{
		Mode:        r.PostFormValue("hub.mode"),
		Callback:    r.PostFormValue("hub.callback"),
		Topic:       r.PostFormValue("hub.topic"),
		VerifyModes: r.PostFormValue("hub.verify"),
		VerifyToken: r.PostFormValue("hub.verify_token"),
		Secret:      r.PostFormValue("hub.secret"),
	})

	switch {
	case err == nil && async:
		writeStatus(w, http.StatusAccepted, "202 Scheduled for verification")
	case err == nil:
		writeStatus(w, http.StatusNoContent, "204 No Content")
	case errors.Is(err, hub.ErrBadRequest):
		writeStatus(w, http.StatusBadRequest, "Bad request: "+err.Error())
	case errors.Is(err, hub.ErrNotFound):
		writeStatus(w, http.StatusNotFound, "Not Found")
	default:
		// Handshake failures and store-level integrity violations alike.
		s.log.Error("subscribe", "error", err)
		writeStatus(w, http.StatusConflict, "Subscription verification failed: "+err.Error())
	}
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if err := s.sweeper.Sweep(r.Context()); err != nil {
		s.log.Error("manual sweep", "error", err)
		writeStatus(w, http.StatusInternalServerError, err.Error())
		return
	}
	_, _ = w.Write([]byte("Done."))
}

// protected wraps a handler with HTTP basic auth. Unset credentials
// disable the route entirely rather than allowing anonymous access.
func (s *Server) protected(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.adminUser == "" || s.adminPass == "" {
			http.NotFound(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(s.adminUser)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(s.adminPass)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="Protected Area"`)
			writeStatus(w, http.StatusUnauthorized, "Not authorized")
			return
		}
		next(w, r)
	}
}

func writeStatus(w http.ResponseWriter, code int, body string) {
	w.WriteHeader(code)
	if code != http.StatusNoContent && body != "" {
		_, _ = w.Write([]byte(body + "\n"))
	}
}

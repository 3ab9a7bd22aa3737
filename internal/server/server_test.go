package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"feedhub/internal/feed"
	"feedhub/internal/hub"
	"feedhub/internal/model"
	"feedhub/internal/storage"
	"feedhub/internal/verify"
	"feedhub/internal/worker"
)

type testServer struct {
	srv   *httptest.Server
	store *storage.SQLite
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	snapshots, err := feed.NewSnapshotStore(t.TempDir())
	if err != nil {
		t.Fatalf("new snapshot store: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	timeout := 2 * time.Second
	differ := feed.NewDiffer(http.DefaultClient, snapshots, timeout)
	verifier := verify.New(http.DefaultClient, timeout)
	engine := hub.New(store, differ, verifier, http.DefaultClient, log, timeout)
	sweep := worker.New(store, verifier, log, time.Minute)

	s := New(engine, store, sweep, log, "admin", "secret")
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, store: store}
}

func (ts *testServer) post(t *testing.T, form url.Values) *http.Response {
	t.Helper()
	resp, err := http.PostForm(ts.srv.URL+"/", form)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (ts *testServer) agedTopic(t *testing.T, topicURL string) *model.Topic {
	t.Helper()
	ctx := context.Background()
	topic := &model.Topic{Key: model.EncodeKey(topicURL)}
	if err := ts.store.CreateTopic(ctx, topic); err != nil {
		t.Fatalf("create topic: %v", err)
	}
	topic.UpdatedAt = time.Now().UTC().Add(-10 * time.Minute)
	if err := ts.store.UpdateTopic(ctx, topic); err != nil {
		t.Fatalf("age topic: %v", err)
	}
	return topic
}

func TestHubEndpointModes(t *testing.T) {
	tests := []struct {
		name       string
		form       url.Values
		wantStatus int
	}{
		{
			name:       "missing mode",
			form:       url.Values{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown mode",
			form:       url.Values{"hub.mode": {"broadcast"}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "publish without url",
			form:       url.Values{"hub.mode": {"publish"}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "publish new topic",
			form:       url.Values{"hub.mode": {"publish"}, "hub.url": {"http://example.com/feed.xml"}},
			wantStatus: http.StatusNoContent,
		},
		{
			name: "subscribe to unknown topic",
			form: url.Values{
				"hub.mode":     {"subscribe"},
				"hub.callback": {"http://cb.example.com/x"},
				"hub.topic":    {"http://never.example.com/feed"},
				"hub.verify":   {"async"},
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "subscribe with bad verify mode",
			form: url.Values{
				"hub.mode":     {"subscribe"},
				"hub.callback": {"http://cb.example.com/x"},
				"hub.topic":    {"http://example.com/feed.xml"},
				"hub.verify":   {"telepathy"},
			},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			resp := ts.post(t, tt.form)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestPublishRateLimitedResponse(t *testing.T) {
	ts := newTestServer(t)
	form := url.Values{"hub.mode": {"publish"}, "hub.url": {"http://example.com/feed.xml"}}

	if resp := ts.post(t, form); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("first publish status = %d", resp.StatusCode)
	}
	resp := ts.post(t, form)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("rate-limited status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("rate-limited response missing Retry-After")
	}
}

func TestSubscribeAsyncAccepted(t *testing.T) {
	ts := newTestServer(t)
	ts.agedTopic(t, "http://example.com/feed.xml")

	resp := ts.post(t, url.Values{
		"hub.mode":     {"subscribe"},
		"hub.callback": {"http://cb.example.com/x"},
		"hub.topic":    {"http://example.com/feed.xml"},
		"hub.verify":   {"async"},
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}
}

func TestSubscribeSyncFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.agedTopic(t, "http://example.com/feed.xml")

	cb := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.Query().Get("hub.challenge")))
	}))
	t.Cleanup(cb.Close)

	resp := ts.post(t, url.Values{
		"hub.mode":     {"subscribe"},
		"hub.callback": {cb.URL},
		"hub.topic":    {"http://example.com/feed.xml"},
		"hub.verify":   {"sync"},
	})
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("subscribe status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}

	resp = ts.post(t, url.Values{
		"hub.mode":     {"unsubscribe"},
		"hub.callback": {cb.URL},
		"hub.topic":    {"http://example.com/feed.xml"},
		"hub.verify":   {"sync"},
	})
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("unsubscribe status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
}

func TestSubscribeHandshakeConflict(t *testing.T) {
	ts := newTestServer(t)
	ts.agedTopic(t, "http://example.com/feed.xml")

	cb := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("wrong"))
	}))
	t.Cleanup(cb.Close)

	resp := ts.post(t, url.Values{
		"hub.mode":     {"subscribe"},
		"hub.callback": {cb.URL},
		"hub.topic":    {"http://example.com/feed.xml"},
		"hub.verify":   {"sync"},
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
}

func TestAdminAuth(t *testing.T) {
	ts := newTestServer(t)
	ts.agedTopic(t, "http://example.com/feed.xml")

	resp, err := http.Get(ts.srv.URL + "/admin")
	if err != nil {
		t.Fatalf("get admin: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.srv.URL+"/admin", nil)
	req.SetBasicAuth("admin", "secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get admin: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authorized status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "http://example.com/feed.xml") {
		t.Errorf("listing missing topic URL:\n%s", body)
	}
}

func TestManualVerifyTrigger(t *testing.T) {
	ts := newTestServer(t)

	req, _ := http.NewRequest(http.MethodPost, ts.srv.URL+"/verify", nil)
	req.SetBasicAuth("admin", "secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post verify: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "Done." {
		t.Errorf("body = %q, want %q", body, "Done.")
	}
}

func TestAdminDisabledWithoutCredentials(t *testing.T) {
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(nil, store, nil, log, "", "")
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/admin", nil)
	req.SetBasicAuth("admin", "anything")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get admin: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

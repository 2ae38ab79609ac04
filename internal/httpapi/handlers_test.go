package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"redux/runtime/internal/logging"
	"redux/runtime/internal/redux"
)

type stubStore struct {
	nodes   int
	dispatc uint64
	retired uint64
	debug   []redux.DebugNode
}

func (s *stubStore) NodeCount() int               { return s.nodes }
func (s *stubStore) DispatchCount() uint64         { return s.dispatc }
func (s *stubStore) IdleRetiredCount() uint64      { return s.retired }
func (s *stubStore) DebugNodes() []redux.DebugNode { return s.debug }

type stubRemote struct {
	connections int
	reconnects  uint64
	entries     int
}

func (s *stubRemote) ConnectionCount() int      { return s.connections }
func (s *stubRemote) ReconnectCount() uint64    { return s.reconnects }
func (s *stubRemote) EntryConnectionCount() int { return s.entries }

type stubLimiter struct {
	remaining int
}

func (s *stubLimiter) Allow() bool {
	if s.remaining <= 0 {
		return false
	}
	s.remaining--
	return true
}

func TestLivenessHandlerReturnsJSON(t *testing.T) {
	fixed := time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), TimeSource: func() time.Time { return fixed }})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/livez", nil)

	handlers.LivenessHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var payload struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "alive" {
		t.Fatalf("unexpected status %q", payload.Status)
	}
	if payload.Timestamp != fixed.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected timestamp %q", payload.Timestamp)
	}
}

func TestReadinessHandlerReportsNodeCountAndUptime(t *testing.T) {
	store := &stubStore{nodes: 5}
	started := time.Date(2024, time.January, 2, 15, 0, 0, 0, time.UTC)
	now := started.Add(90 * time.Second)
	handlers := NewHandlerSet(Options{
		Logger:     logging.NewTestLogger(),
		Store:      store,
		TimeSource: func() time.Time { return now },
		StartedAt:  started,
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	handlers.ReadinessHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload struct {
		Status        string  `json:"status"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		Nodes         int     `json:"nodes"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "ok" || payload.Nodes != 5 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.UptimeSeconds != 90 {
		t.Fatalf("expected uptime 90s, got %f", payload.UptimeSeconds)
	}
}

func TestMetricsHandlerOutputsPrometheusFormat(t *testing.T) {
	store := &stubStore{nodes: 3, dispatc: 42, retired: 7}
	remote := &stubRemote{connections: 2, reconnects: 1, entries: 4}
	started := time.Unix(1700000000, 0)
	now := started.Add(60 * time.Second)
	handlers := NewHandlerSet(Options{
		Logger:     logging.NewTestLogger(),
		Store:      store,
		Remote:     remote,
		TimeSource: func() time.Time { return now },
		StartedAt:  started,
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	handlers.MetricsHandler().ServeHTTP(rr, req)

	if got := rr.Header().Get("Content-Type"); got != "text/plain; version=0.0.4" {
		t.Fatalf("unexpected content type %q", got)
	}
	body := rr.Body.String()
	for _, substr := range []string{
		"redux_uptime_seconds 60",
		"redux_store_nodes 3",
		"redux_store_dispatches_total 42",
		"redux_store_idle_retired_total 7",
		"redux_remote_connections 2",
		"redux_remote_reconnects_total 1",
		"redux_entry_connections 4",
	} {
		if !strings.Contains(body, substr) {
			t.Fatalf("metrics missing %q:\n%s", substr, body)
		}
	}
}

func TestMetricsHandlerOmitsStoreAndRemoteSectionsWhenAbsent(t *testing.T) {
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger()})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	handlers.MetricsHandler().ServeHTTP(rr, req)

	body := rr.Body.String()
	if strings.Contains(body, "redux_store_nodes") {
		t.Fatal("expected no store metrics without a configured Store")
	}
	if strings.Contains(body, "redux_remote_connections") {
		t.Fatal("expected no remote metrics without a configured Remote")
	}
}

func TestDebugNodesHandlerRequiresAdminToken(t *testing.T) {
	store := &stubStore{debug: []redux.DebugNode{{Key: "node:a", Prefix: "node:"}}}
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Store: store})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/nodes", nil)
	handlers.DebugNodesHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 when admin auth is not configured, got %d", rr.Code)
	}
}

func TestDebugNodesHandlerAuthAndRateLimit(t *testing.T) {
	store := &stubStore{debug: []redux.DebugNode{{Key: "node:a", Prefix: "node:"}}}
	limiter := &stubLimiter{remaining: 1}
	handlers := NewHandlerSet(Options{
		Logger:      logging.NewTestLogger(),
		Store:       store,
		AdminToken:  "topsecret",
		RateLimiter: limiter,
	})

	makeRequest := func(token string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/debug/nodes", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		handlers.DebugNodesHandler().ServeHTTP(rr, req)
		return rr
	}

	if resp := makeRequest(""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing token, got %d", resp.Code)
	}

	resp := makeRequest("topsecret")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for authorised request, got %d", resp.Code)
	}
	var nodes []redux.DebugNode
	if err := json.NewDecoder(resp.Body).Decode(&nodes); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Key != "node:a" {
		t.Fatalf("unexpected nodes payload: %+v", nodes)
	}

	if resp := makeRequest("topsecret"); resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once the limiter is exhausted, got %d", resp.Code)
	}
}

func TestRegisterAttachesAllHandlers(t *testing.T) {
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger()})
	mux := http.NewServeMux()
	handlers.Register(mux)

	for _, path := range []string{"/livez", "/readyz", "/metrics", "/debug/nodes"} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		mux.ServeHTTP(rr, req)
		if rr.Code == http.StatusNotFound {
			t.Fatalf("expected %s to be registered, got 404", path)
		}
	}
}

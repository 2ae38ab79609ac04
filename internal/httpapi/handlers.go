// Package httpapi exposes the runtime's operational HTTP surface: liveness
// and readiness probes, a Prometheus text endpoint, and an admin-token-gated
// debug listing of live nodes.
package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"redux/runtime/internal/logging"
	"redux/runtime/internal/redux"
)

// StoreStats exposes the Store counters the metrics and debug endpoints read.
type StoreStats interface {
	NodeCount() int
	DispatchCount() uint64
	IdleRetiredCount() uint64
	DebugNodes() []redux.DebugNode
}

// RemoteStats exposes peer-link counters, read by the metrics endpoint when
// a Manager is configured.
type RemoteStats interface {
	ConnectionCount() int
	ReconnectCount() uint64
	EntryConnectionCount() int
}

// RateLimiter gates how frequently a sensitive operation may be invoked.
type RateLimiter interface {
	Allow() bool
}

// Options configures a HandlerSet.
type Options struct {
	Logger      *logging.Logger
	Store       StoreStats
	Remote      RemoteStats
	AdminToken  string
	RateLimiter RateLimiter
	TimeSource  func() time.Time
	StartedAt   time.Time
}

// HandlerSet bundles the runtime's operational handlers.
type HandlerSet struct {
	logger      *logging.Logger
	store       StoreStats
	remote      RemoteStats
	adminToken  string
	rateLimiter RateLimiter
	now         func() time.Time
	startedAt   time.Time
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	startedAt := opts.StartedAt
	if startedAt.IsZero() {
		startedAt = now()
	}
	return &HandlerSet{
		logger:      logger,
		store:       opts.Store,
		remote:      opts.Remote,
		adminToken:  strings.TrimSpace(opts.AdminToken),
		rateLimiter: opts.RateLimiter,
		now:         now,
		startedAt:   startedAt,
	}
}

// Register attaches all handlers to the provided mux.
func (h *HandlerSet) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/livez", h.LivenessHandler())
	mux.HandleFunc("/readyz", h.ReadinessHandler())
	mux.HandleFunc("/metrics", h.MetricsHandler())
	mux.HandleFunc("/debug/nodes", h.DebugNodesHandler())
}

// LivenessHandler reports that the HTTP server is reachable.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler reports store readiness and uptime.
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status        string  `json:"status"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		Nodes         int     `json:"nodes"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		resp := response{Status: "ok", UptimeSeconds: h.now().Sub(h.startedAt).Seconds()}
		if h.store != nil {
			resp.Nodes = h.store.NodeCount()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// MetricsHandler emits Prometheus compatible text metrics.
func (h *HandlerSet) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		fmt.Fprintf(w, "# HELP redux_uptime_seconds Runtime uptime in seconds.\n")
		fmt.Fprintf(w, "# TYPE redux_uptime_seconds gauge\n")
		fmt.Fprintf(w, "redux_uptime_seconds %.0f\n", h.now().Sub(h.startedAt).Seconds())

		if h.store != nil {
			fmt.Fprintf(w, "# HELP redux_store_nodes Currently live reducer nodes.\n")
			fmt.Fprintf(w, "# TYPE redux_store_nodes gauge\n")
			fmt.Fprintf(w, "redux_store_nodes %d\n", h.store.NodeCount())

			fmt.Fprintf(w, "# HELP redux_store_dispatches_total Total actions dispatched.\n")
			fmt.Fprintf(w, "# TYPE redux_store_dispatches_total counter\n")
			fmt.Fprintf(w, "redux_store_dispatches_total %d\n", h.store.DispatchCount())

			fmt.Fprintf(w, "# HELP redux_store_idle_retired_total Total nodes retired (idle timeout, subscriber loss, or ephemeral retirement).\n")
			fmt.Fprintf(w, "# TYPE redux_store_idle_retired_total counter\n")
			fmt.Fprintf(w, "redux_store_idle_retired_total %d\n", h.store.IdleRetiredCount())
		}
		if h.remote != nil {
			fmt.Fprintf(w, "# HELP redux_remote_connections Currently open peer WebSocket links.\n")
			fmt.Fprintf(w, "# TYPE redux_remote_connections gauge\n")
			fmt.Fprintf(w, "redux_remote_connections %d\n", h.remote.ConnectionCount())

			fmt.Fprintf(w, "# HELP redux_remote_reconnects_total Total client-side peer reconnect attempts.\n")
			fmt.Fprintf(w, "# TYPE redux_remote_reconnects_total counter\n")
			fmt.Fprintf(w, "redux_remote_reconnects_total %d\n", h.remote.ReconnectCount())

			fmt.Fprintf(w, "# HELP redux_entry_connections Currently bound external entry clients.\n")
			fmt.Fprintf(w, "# TYPE redux_entry_connections gauge\n")
			fmt.Fprintf(w, "redux_entry_connections %d\n", h.remote.EntryConnectionCount())
		}
	}
}

// DebugNodesHandler lists every live node, gated behind the admin token.
func (h *HandlerSet) DebugNodesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := h.logger.With(
			logging.String("handler", "debug_nodes"),
			logging.String("remote_addr", r.RemoteAddr),
		)
		if h.adminToken == "" {
			reqLogger.Warn("debug nodes denied: admin auth disabled")
			http.Error(w, "admin authentication not configured", http.StatusForbidden)
			return
		}
		if !h.authorise(r) {
			reqLogger.Warn("debug nodes denied: unauthorized request")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if h.rateLimiter != nil && !h.rateLimiter.Allow() {
			reqLogger.Warn("debug nodes denied: rate limit exceeded")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		if h.store == nil {
			writeJSON(w, http.StatusOK, []redux.DebugNode{})
			return
		}
		writeJSON(w, http.StatusOK, h.store.DebugNodes())
	}
}

func (h *HandlerSet) authorise(r *http.Request) bool {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	var token string
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		token = strings.TrimSpace(header[7:])
	} else if header != "" {
		token = header
	}
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Admin-Token"))
	}
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

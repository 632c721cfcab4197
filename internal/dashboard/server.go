// Package dashboard is the optional, disabled-by-default operational
// surface for the resubmit engine: a health check, a point-in-time JSON
// snapshot, and a WebSocket stream of terminal trade outcomes. Adapted from
// the teacher's internal/api (server.go/handlers.go/stream.go Hub+Client/
// snapshot.go/types.go) with the payload narrowed to this follower's own
// state — spec.md's Non-goals exclude portfolio accounting and quoting but
// say nothing about operational visibility into the engine itself.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"whale-follower/internal/config"
	"whale-follower/internal/riskguard"
)

// Provider supplies the live state the dashboard renders. The engine
// orchestrator implements this; dashboard never reaches back into ingest,
// dispatch, or resubmit internals directly.
type Provider interface {
	EventQueueDepth() int
	EventQueueCapacity() int
	ActiveChains() int
	RiskSnapshot() riskguard.Snapshot
	RecentTrades() []TradeRow
	DryRun() bool
}

// Server runs the dashboard's HTTP + WebSocket surface.
type Server struct {
	cfg      config.DashboardConfig
	provider Provider
	hub      *Hub
	server   *http.Server
	logger   *slog.Logger
}

// NewServer builds a dashboard server bound to cfg.Port. Routes: /health,
// /api/snapshot, /ws.
func NewServer(cfg config.DashboardConfig, provider Provider, logger *slog.Logger) *Server {
	hub := NewHub(logger)
	mux := http.NewServeMux()

	s := &Server{cfg: cfg, provider: provider, hub: hub, logger: logger.With("component", "dashboard-server")}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/snapshot", s.handleSnapshot)
	mux.HandleFunc("/ws", s.handleWebSocket)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start runs the hub loop and blocks serving HTTP until Stop is called.
func (s *Server) Start() error {
	go s.hub.Run()

	s.logger.Info("dashboard server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	s.logger.Info("stopping dashboard server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// BroadcastTrade pushes one terminal trade outcome to all connected clients.
// The engine orchestrator calls this from resubmit.Engine's OnOutcome hook.
func (s *Server) BroadcastTrade(row TradeRow) {
	s.hub.BroadcastEvent(Event{Type: "trade", Timestamp: time.Now(), Data: row})
}

func (s *Server) buildSnapshot() Snapshot {
	return Snapshot{
		Timestamp:          time.Now(),
		EventQueueDepth:    s.provider.EventQueueDepth(),
		EventQueueCapacity: s.provider.EventQueueCapacity(),
		ActiveChains:       s.provider.ActiveChains(),
		Risk:               fromRiskguardSnapshot(s.provider.RiskSnapshot()),
		RecentTrades:       s.provider.RecentTrades(),
		DryRun:             s.provider.DryRun(),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.buildSnapshot()); err != nil {
		s.logger.Error("failed to encode dashboard snapshot", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(req *http.Request) bool {
			return isOriginAllowed(req.Header.Get("Origin"), s.cfg, req.Host)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("dashboard websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn)

	evt := Event{Type: "snapshot", Timestamp: time.Now(), Data: s.buildSnapshot()}
	data, err := json.Marshal(evt)
	if err != nil {
		s.logger.Error("failed to marshal initial dashboard snapshot", "error", err)
		return
	}
	select {
	case client.send <- data:
	default:
		s.logger.Warn("failed to send initial snapshot to dashboard client")
	}
}

func isOriginAllowed(origin string, cfg config.DashboardConfig, reqHost string) bool {
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	normalized := normalizeOrigin(originURL.Scheme, originURL.Host)
	if normalized == "" {
		return false
	}

	if len(cfg.AllowedOrigins) > 0 {
		for _, allowed := range cfg.AllowedOrigins {
			u, err := url.Parse(allowed)
			if err != nil {
				continue
			}
			if normalized == normalizeOrigin(u.Scheme, u.Host) {
				return true
			}
		}
		return false
	}

	host := strings.ToLower(originURL.Hostname())
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}

	reqHostname := normalizeHost(reqHost)
	return reqHostname != "" && host == reqHostname
}

func normalizeOrigin(scheme, host string) string {
	if scheme == "" || host == "" {
		return ""
	}
	return strings.ToLower(scheme) + "://" + strings.ToLower(host)
}

func normalizeHost(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(hostport)
}

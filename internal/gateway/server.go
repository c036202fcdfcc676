// Package gateway exposes the WebSocket endpoint clients talk to and the
// HTTP health surface operators probe.
package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/datalens/internal/agent"
	"github.com/nextlevelbuilder/datalens/internal/config"
	"github.com/nextlevelbuilder/datalens/internal/session"
)

// Server owns the HTTP listener and the set of live WebSocket clients.
type Server struct {
	cfg      config.ServerConfig
	loop     *agent.Loop
	sessions *session.Store

	upgrader websocket.Upgrader
	limiter  *RateLimiter
	dedupe   *DedupeCache
	httpSrv  *http.Server

	clientCount atomic.Int64
	started     time.Time
}

// NewServer wires the gateway.
func NewServer(cfg config.ServerConfig, loop *agent.Loop, sessions *session.Store) *Server {
	return &Server{
		cfg:      cfg,
		loop:     loop,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from arbitrary origins; auth is the
			// token check, not the Origin header.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		limiter: NewRateLimiter(cfg.RateLimitRPM, cfg.RateBurst),
		dedupe:  NewDedupeCache(20*time.Minute, 5000),
		started: time.Now(),
	}
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("gateway listening", "addr", addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("gateway: %w", err)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, s, clientKey(r))
	s.clientCount.Add(1)
	defer s.clientCount.Add(-1)

	slog.Info("client connected", "client", client.id, "remote", r.RemoteAddr)
	client.Run(r.Context())
	slog.Info("client disconnected", "client", client.id)
}

// authorized checks the gateway token, from either the Authorization header
// or a query parameter (browser WebSocket clients cannot set headers).
func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.AuthToken == "" {
		return true
	}
	token := r.URL.Query().Get("token")
	if h := r.Header.Get("Authorization"); h != "" {
		token = strings.TrimPrefix(h, "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":         "ok",
		"clients":        s.clientCount.Load(),
		"sessions":       len(s.sessions.Sessions(r.Context())),
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	})
}

// clientKey identifies a connection for rate limiting: the bare IP, so
// reconnecting does not reset the budget.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Package transport serves the bridge over HTTP: a WebSocket per page, one
// WebSocket for the wallet UI, and health and metrics endpoints.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mrz1836/dappbridge/internal/bridge"
	"github.com/mrz1836/dappbridge/internal/message"
)

const (
	readLimit         = 1 << 20
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Route paths.
const (
	PathProvider  = "/provider"
	PathExtension = "/extension"
	PathHealth    = "/health"
	PathMetrics   = "/metrics"
)

var (
	// ErrMissingOrigin is returned for page connections without an Origin header.
	ErrMissingOrigin = errors.New("page connection has no usable Origin header")
)

// Config configures a Server.
type Config struct {
	Listen         string
	OriginPatterns []string
	WriteTimeout   time.Duration
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   bridge.Logger
	// Bridge is the template for every page's bridge. SessionID, Hostname,
	// Page and UI are filled in per connection.
	Bridge bridge.Config
}

// Server accepts page and wallet UI connections.
type Server struct {
	cfg Config
	hub *Hub
	mux *http.ServeMux

	// base outlives individual requests; connections end when it is cancelled.
	base   context.Context
	cancel context.CancelFunc
}

// New creates a server.
func New(cfg Config) *Server {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}
	base, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:    cfg,
		hub:    NewHub(cfg.Logger, cfg.WriteTimeout),
		mux:    http.NewServeMux(),
		base:   base,
		cancel: cancel,
	}

	s.mux.HandleFunc("GET "+PathProvider, s.handleProvider)
	s.mux.HandleFunc("GET "+PathExtension, s.handleExtension)
	s.mux.HandleFunc("GET "+PathHealth, s.handleHealth)
	if cfg.Gatherer != nil {
		s.mux.Handle("GET "+PathMetrics, promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.cfg.Listen
}

// Hub returns the session hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.cfg.Logger.Info("transport: listening on %s", ln.Addr())

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

// Close ends every connection and stops every bridge.
func (s *Server) Close() {
	s.cancel()
	s.hub.Close()
}

func (s *Server) accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.cfg.OriginPatterns})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(readLimit)
	return conn, nil
}

func (s *Server) handleProvider(w http.ResponseWriter, r *http.Request) {
	hostname, err := originHostname(r.Header.Get("Origin"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := s.accept(w, r)
	if err != nil {
		s.cfg.Logger.Error("transport: accepting page %s: %v", hostname, err)
		return
	}

	cfg := s.cfg.Bridge
	cfg.SessionID = uuid.NewString()
	cfg.Hostname = hostname
	cfg.Page = s.hub.writer(conn)
	cfg.UI = bridge.SinkFunc(s.hub.SendExtension)

	b, err := bridge.New(cfg)
	if err == nil {
		err = b.Start()
	}
	if err != nil {
		s.cfg.Logger.Error("transport: starting bridge for %s: %v", hostname, err)
		_ = conn.Close(websocket.StatusInternalError, "bridge unavailable")
		return
	}

	s.hub.addSession(b)
	defer func() {
		s.hub.removeSession(b.SessionID())
		b.Stop()
		_ = conn.CloseNow()
	}()

	s.cfg.Logger.Info("transport: page %s connected as %s", hostname, b.SessionID())
	for {
		typ, data, err := conn.Read(s.base)
		if err != nil {
			s.logClosed("page "+hostname, err)
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		if err := b.HandlePage(s.base, data); err != nil {
			s.cfg.Logger.Error("transport: page %s: %v", hostname, err)
			return
		}
	}
}

func (s *Server) handleExtension(w http.ResponseWriter, r *http.Request) {
	conn, err := s.accept(w, r)
	if err != nil {
		s.cfg.Logger.Error("transport: accepting wallet UI: %v", err)
		return
	}

	ext := s.hub.attachExtension(conn)
	defer func() {
		s.hub.detachExtension(ext)
		_ = conn.CloseNow()
	}()

	s.cfg.Logger.Info("transport: wallet UI connected")
	s.hub.replayPending(s.base)

	for {
		typ, data, err := conn.Read(s.base)
		if err != nil {
			s.logClosed("wallet UI", err)
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		m, err := message.DecodeExtension(data)
		if err != nil {
			s.cfg.Logger.Error("transport: wallet UI sent an unusable message: %v", err)
			continue
		}
		s.hub.route(s.base, m)
	}
}

// Health is the /health response body.
type Health struct {
	Status    string `json:"status"`
	Sessions  int    `json:"sessions"`
	Extension bool   `json:"extension"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Health{
		Status:    "ok",
		Sessions:  s.hub.SessionCount(),
		Extension: s.hub.HasExtension(),
	})
}

func (s *Server) logClosed(who string, err error) {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		s.cfg.Logger.Debug("transport: %s disconnected", who)
	default:
		if s.base.Err() != nil {
			return
		}
		s.cfg.Logger.Info("transport: %s connection ended: %v", who, err)
	}
}

// originHostname extracts the page hostname from an Origin header.
func originHostname(origin string) (string, error) {
	if origin == "" || origin == "null" {
		return "", ErrMissingOrigin
	}
	u, err := url.Parse(origin)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("%w: %q", ErrMissingOrigin, origin)
	}
	return u.Hostname(), nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

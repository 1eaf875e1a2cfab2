// Package web serves the interview over a WebSocket for browser clients.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roelfdiedericks/gocoach/internal/bus"
	"github.com/roelfdiedericks/gocoach/internal/interview"
	. "github.com/roelfdiedericks/gocoach/internal/logging"
	. "github.com/roelfdiedericks/gocoach/internal/metrics"
)

//go:embed html/*.html
var htmlFS embed.FS

// Server represents the web surface.
type Server struct {
	bus      *bus.Bus
	server   *http.Server
	upgrader websocket.Upgrader
	listener net.Listener

	mu    sync.Mutex
	conns map[string]*client
	wg    sync.WaitGroup
}

// Config holds web server configuration.
type Config struct {
	Listen string // e.g. "127.0.0.1:3390"
	// AllowedOrigins are extra browser origins allowed to open /ws.
	AllowedOrigins []string
}

// NewServer creates a server that drives the orchestrator registered on b.
func NewServer(cfg Config, b *bus.Bus) *Server {
	listen := cfg.Listen
	if listen == "" {
		listen = "127.0.0.1:3390"
	}
	s := &Server{
		bus:   b,
		conns: make(map[string]*client),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 16384,
		CheckOrigin:     sameOrigin(cfg.AllowedOrigins),
	}
	s.server = &http.Server{
		Addr:              listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.logRequest(s.handleSocket))
	mux.HandleFunc("/healthz", s.logRequest(s.handleHealth))
	mux.HandleFunc("/metrics.json", s.logRequest(s.handleMetrics))
	mux.HandleFunc("/", s.logRequest(s.handleIndex))
	return mux
}

// Start begins listening in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.listener = ln

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		L_info("web: server starting", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			L_error("web: server error", "error", err)
		}
	}()
	return nil
}

// Addr is the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.server.Addr
	}
	return s.listener.Addr().String()
}

// Stop closes every socket and shuts the server down.
func (s *Server) Stop() error {
	s.mu.Lock()
	for _, c := range s.conns {
		c.close()
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		L_error("web: shutdown error", "error", err)
		return err
	}
	s.wg.Wait()
	L_info("web: server stopped")
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	page, err := fs.ReadFile(htmlFS, "html/index.html")
	if err != nil {
		http.Error(w, "page missing", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	res := s.bus.Send(interview.Component, interview.IntentSnapshot, nil, "web")
	status := map[string]any{"status": "ok"}
	if snap, ok := res.Data.(interview.Snapshot); ok {
		status["phase"] = snap.Phase
		status["availability"] = snap.Availability
	} else {
		status["status"] = "degraded"
		status["error"] = res.Message
	}
	s.mu.Lock()
	status["clients"] = len(s.conns)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := WriteJSON(w); err != nil {
		L_warn("web: metrics encode failed", "error", err)
	}
}

// logRequest wraps a handler with trace logging and header stripping.
func (s *Server) logRequest(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		w.Header().Del("Server")
		handler(w, r)
		L_trace("web: request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	}
}

// sameOrigin accepts requests without an Origin header, same-host origins,
// and the configured extras.
func sameOrigin(extra []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(extra))
	for _, o := range extra {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowed[origin] {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if u.Host == r.Host {
			return true
		}
		L_warn("web: origin rejected", "origin", origin, "host", r.Host)
		MetricInc("web", "origin_rejected")
		return false
	}
}

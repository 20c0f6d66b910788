// Package server provides the touch table's local HTTP interface: status,
// MJPEG views of the canvas and the foreground mask, a websocket feed of drawn
// touches and the read-only session journal.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/touchtable/internal/server/api"
	"github.com/ayusman/touchtable/internal/store"
)

//go:embed web/index.html
var web embed.FS

// Config holds the server configuration. Every collaborator is optional; routes
// whose collaborator is missing are not registered.
type Config struct {
	Store *store.Store
	// ActiveSession returns the journal session of the running table.
	ActiveSession func() string
	Status        func() any
	Canvas        FrameSource
	Preview       FrameSource
	Touches       *TouchHub
	Logger        *zap.SugaredLogger
}

// Server represents the HTTP server for the touch table.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time

	// done ends long-lived streams; http.Server.Shutdown does not cancel
	// in-flight requests.
	done     chan struct{}
	doneOnce sync.Once

	mu   sync.Mutex
	http *http.Server
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		done:   make(chan struct{}),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/{$}", s.handleIndex)

	if s.config.Status != nil {
		s.mux.HandleFunc("/api/status", s.handleStatus)
	}

	if s.config.Store != nil {
		sessions := api.NewSessionHandler(s.config.Store, s.config.ActiveSession)
		s.mux.Handle("/api/sessions", sessions)
		s.mux.Handle("/api/sessions/", sessions)
	}

	if s.config.Canvas != nil {
		s.mux.Handle("/api/stream", s.stream(s.config.Canvas))
	}
	if s.config.Preview != nil {
		s.mux.Handle("/api/preview", s.stream(s.config.Preview))
	}

	if s.config.Touches != nil {
		s.mux.Handle("/api/touches", s.config.Touches)
	}
}

func (s *Server) stream(source FrameSource) *StreamHandler {
	h := NewStreamHandler(source)
	h.done = s.done
	return h
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	})
}

// handleStatus handles GET requests to /api/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.config.Status())
}

// handleIndex serves the canvas viewer page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	page, err := web.ReadFile("web/index.html")
	if err != nil {
		http.Error(w, "Page not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// ListenAndServe serves on addr until Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve accepts connections on l until Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		l.Close()
		return nil
	default:
	}
	s.http = srv
	s.mu.Unlock()

	s.config.Logger.Infow("http server listening", "addr", l.Addr().String())
	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown ends open streams and gracefully stops a server started with
// ListenAndServe or Serve.
func (s *Server) Shutdown(ctx context.Context) error {
	s.doneOnce.Do(func() { close(s.done) })

	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

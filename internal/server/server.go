// Package server exposes a note store over HTTP: a JSON API under /api/v1,
// a websocket live feed at /ws/notes and Prometheus metrics at /metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"noteease/internal/config"
	"noteease/internal/metrics"
	"noteease/internal/notes"
)

// SessionFactory opens a fresh Store for one live-feed connection.
type SessionFactory func() (*notes.Store, error)

// Server serves one shared Store to API clients and a private Store per
// websocket session.
type Server struct {
	store    *notes.Store
	sessions SessionFactory
	metrics  *metrics.NoteMetrics
	logger   notes.Logger
	validate *validator.Validate
	upgrader websocket.Upgrader
	router   *mux.Router

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
	live  sync.WaitGroup
}

// New creates a Server. m may be nil, in which case /metrics is not served.
func New(store *notes.Store, sessions SessionFactory, m *metrics.NoteMetrics, logger notes.Logger, cfg config.ServerConfig) (*Server, error) {
	writeWait, pongWait, pingPeriod, err := cfg.Timings()
	if err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	s := &Server{
		store:    store,
		sessions: sessions,
		metrics:  m,
		logger:   logger,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		writeWait:  writeWait,
		pongWait:   pongWait,
		pingPeriod: pingPeriod,
		conns:      make(map[*websocket.Conn]struct{}),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/notes", s.listNotes).Methods(http.MethodGet)
	api.HandleFunc("/notes", s.createNote).Methods(http.MethodPost)
	api.HandleFunc("/notes/pinned", s.pinnedNotes).Methods(http.MethodGet)
	api.HandleFunc("/notes/copy", s.copyNotes).Methods(http.MethodPost)
	api.HandleFunc("/notes/delete", s.deleteNotes).Methods(http.MethodPost)
	api.HandleFunc("/notes/share", s.sharePayload).Methods(http.MethodPost)
	api.HandleFunc("/notes/{id:[0-9]+}", s.getNote).Methods(http.MethodGet)
	api.HandleFunc("/notes/{id:[0-9]+}", s.updateNote).Methods(http.MethodPut)
	api.HandleFunc("/notes/{id:[0-9]+}", s.deleteNote).Methods(http.MethodDelete)
	api.HandleFunc("/notes/{id:[0-9]+}/pin", s.togglePin).Methods(http.MethodPost)

	r.HandleFunc("/ws/notes", s.serveLive)

	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	}

	s.router = r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx ends, then shuts down: in-flight
// requests get five seconds and live sessions are closed.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.closeLive()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	s.closeLive()
	if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return err
}

// closeLive ends every websocket session and waits for their cleanup.
func (s *Server) closeLive() {
	s.mu.Lock()
	for c := range s.conns {
		c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(s.writeWait))
		c.Close()
	}
	s.mu.Unlock()
	s.live.Wait()
}

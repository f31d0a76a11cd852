package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/hasirciogluhq/xecho/cmd/echo/internal/core"
	"github.com/hasirciogluhq/xecho/cmd/echo/internal/logger"
)

// Probe is the view of the echo server the health endpoints report on.
// *core.Server satisfies it.
type Probe interface {
	State() core.State
	ActiveConnections() int64
}

// HealthServer serves /health, /ready and /connections over HTTP.
type HealthServer struct {
	server *http.Server
	probe  Probe
}

func NewHealthServer(addr string, probe Probe) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		probe: probe,
	}

	mux.HandleFunc("/health", hs.handleHealth)
	mux.HandleFunc("/ready", hs.handleReady)
	mux.HandleFunc("/connections", hs.handleConnections)

	return hs
}

func (s *HealthServer) Start() {
	go func() {
		logger.Info("Health server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health server error", "error", err)
		}
	}()
}

func (s *HealthServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the routes, e.g. for httptest.
func (s *HealthServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Ready only while the accept loop is running.
func (s *HealthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	state := s.probe.State()
	if state == core.StateAccepting {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	fmt.Fprintf(w, "not ready: %s", state)
}

func (s *HealthServer) handleConnections(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "%d", s.probe.ActiveConnections())
}

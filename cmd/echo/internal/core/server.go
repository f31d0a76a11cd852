package core

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"

	"github.com/hasirciogluhq/xecho/cmd/echo/internal/logger"
)

// ErrPortInUse is returned by Initialize when the port is already bound.
var ErrPortInUse = errors.New("port already bound")

// State is the lifecycle stage of a Server.
type State int

const (
	StateUnstarted State = iota
	StateAccepting
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateAccepting:
		return "accepting"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
}

// Server is the echo TCP server.
// It depends only on the ConnectionHandler interface, not on what the
// handler does with the connection.
type Server struct {
	port    int
	handler ConnectionHandler
	log     *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	state    State

	running atomic.Bool
	active  atomic.Int64
	done    chan struct{}
	once    sync.Once
}

// NewServer creates a server for port. Nothing is bound until Initialize or
// Start. A nil log uses the global logger.
func NewServer(port int, handler ConnectionHandler, log *slog.Logger) *Server {
	return &Server{
		port:    port,
		handler: handler,
		log:     logger.Or(log),
		done:    make(chan struct{}),
	}
}

// Initialize binds the listening socket on the configured port.
func (s *Server) Initialize() error {
	s.log.Info("Initialize server ...")

	ln, err := net.Listen("tcp", ":"+strconv.Itoa(s.port))
	if err != nil {
		s.log.Error("Cannot open server socket", "port", s.port, "error", err)
		if errors.Is(err, syscall.EADDRINUSE) {
			s.log.Error("Port is already bound!", "port", s.port)
			return fmt.Errorf("listen on port %d: %w", s.port, ErrPortInUse)
		}
		return fmt.Errorf("listen on port %d: %w", s.port, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.state = StateAccepting
	s.mu.Unlock()
	s.running.Store(true)

	s.log.Info("Server listening", "port", ln.Addr().(*net.TCPAddr).Port)
	return nil
}

// Start initializes the server and runs the accept loop on its own goroutine.
// If initialization fails the server is stopped without ever accepting and
// the error is returned.
func (s *Server) Start() error {
	if err := s.Initialize(); err != nil {
		s.finish()
		return err
	}
	go s.serve()
	return nil
}

// Run is Start followed by waiting until the accept loop has exited.
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		return err
	}
	<-s.done
	return nil
}

func (s *Server) serve() {
	defer s.finish()

	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	for s.running.Load() {
		conn, err := ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				break
			}
			s.log.Error("Unable to establish connection", "error", err)
			continue
		}
		s.dispatch(conn)
	}
}

func (s *Server) dispatch(conn net.Conn) {
	id := uuid.New().String()
	s.active.Add(1)
	go func() {
		defer s.active.Add(-1)
		// Delegate the entire lifecycle to the handler
		s.handler.HandleConnection(conn)
		s.log.Debug("Handler finished", "conn_id", id)
	}()

	host, port, _ := net.SplitHostPort(conn.RemoteAddr().String())
	s.log.Info("Connected", "conn_id", id, "host", host, "port", port)
}

func (s *Server) finish() {
	s.once.Do(func() {
		s.running.Store(false)
		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
		s.log.Info("Server stopped.")
		close(s.done)
	})
}

// Stop stops accepting connections by closing the listening socket, which
// unblocks a pending Accept. It does not wait for the loop to exit; use Done
// for that. Calling Stop more than once is safe.
func (s *Server) Stop() {
	s.running.Store(false)

	s.mu.Lock()
	ln := s.listener
	if s.state == StateAccepting {
		s.state = StateStopping
	}
	s.mu.Unlock()

	if ln == nil {
		s.log.Warn("Stop called on a server that never started", "port", s.port)
		return
	}
	if err := ln.Close(); err != nil {
		s.log.Error("Unable to close socket on port", "port", s.port, "error", err)
	}
}

// Done is closed once the accept loop has exited or initialization failed.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// State reports the current lifecycle stage.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Addr returns the bound address, or nil before Initialize succeeds.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ActiveConnections returns the number of handlers currently running.
func (s *Server) ActiveConnections() int64 {
	return s.active.Load()
}

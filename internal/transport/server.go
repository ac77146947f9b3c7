package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ghostline/ghostline/internal/config"
)

// Server accepts TCP connections and runs a Client for each. New clients
// start out dispatched to the root dispatcher (the lobby).
type Server struct {
	cfg    config.ServerConfig
	root   Dispatcher
	logger *zap.Logger

	listener net.Listener
	wg       sync.WaitGroup
	quit     chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewServer creates a TCP server with the given configuration.
//
// Precondition: root and logger must be non-nil.
// Postcondition: Returns a Server ready to be started with ListenAndServe.
func NewServer(cfg config.ServerConfig, root Dispatcher, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		root:   root,
		logger: logger,
		quit:   make(chan struct{}),
	}
}

// ListenAndServe starts the TCP listener and accepts connections until
// Stop is called. This method blocks until the server is stopped.
//
// Precondition: The server must not already be running.
// Postcondition: The listener is closed when this method returns.
func (s *Server) ListenAndServe() error {
	start := time.Now()

	listener, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}

	s.mu.Lock()
	s.listener = listener
	s.running = true
	s.mu.Unlock()

	s.logger.Info("socket server listening",
		zap.String("addr", listener.Addr().String()),
		zap.Duration("startup", time.Since(start)),
	)

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
				s.logger.Error("accepting connection", zap.Error(err))
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// handleConn runs one client session on its own goroutine.
func (s *Server) handleConn(raw net.Conn) {
	defer s.wg.Done()
	start := time.Now()
	addr := raw.RemoteAddr().String()

	s.logger.Info("client connected", zap.String("remote_addr", addr))

	client := NewClient(NewTCPConn(raw, s.cfg.ReadTimeout, s.cfg.WriteTimeout), s.root, s.logger)

	// Tear the client down when the server stops.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-s.quit:
			client.Close()
		case <-stop:
		}
	}()

	client.Run()

	s.logger.Info("client disconnected",
		zap.String("remote_addr", addr),
		zap.Duration("duration", time.Since(start)),
	)
}

// Stop gracefully stops the server, closing the listener and waiting for
// all active clients to finish.
//
// Postcondition: All connections are closed and goroutines have exited.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false

	close(s.quit)
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()

	s.logger.Info("socket server stopped")
}

// Addr returns the actual listening address, or empty string if not yet
// listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Port returns the bound TCP port, or zero before the listener is up.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return 0
	}
	if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// IsRunning returns whether the server is currently accepting connections.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

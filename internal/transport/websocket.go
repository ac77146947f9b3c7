package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/ghostline/ghostline/internal/config"
)

// WSConn frames envelopes as one text message per envelope.
type WSConn struct {
	ws     *websocket.Conn
	remote string

	writeTimeout time.Duration
}

// NewWSConn wraps an accepted WebSocket connection.
func NewWSConn(ws *websocket.Conn, remote string, writeTimeout time.Duration) *WSConn {
	return &WSConn{ws: ws, remote: remote, writeTimeout: writeTimeout}
}

// ReadFrame blocks for the next text message.
func (c *WSConn) ReadFrame() ([]byte, error) {
	kind, data, err := c.ws.Read(context.Background())
	if err != nil {
		return nil, err
	}
	if kind != websocket.MessageText {
		return nil, fmt.Errorf("unexpected %v message", kind)
	}
	return data, nil
}

// WriteFrame writes one text message.
func (c *WSConn) WriteFrame(frame []byte) error {
	ctx := context.Background()
	if c.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.writeTimeout)
		defer cancel()
	}
	return c.ws.Write(ctx, websocket.MessageText, frame)
}

// Close closes the WebSocket with a normal closure frame.
func (c *WSConn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "")
}

// RemoteAddr identifies the peer for logging.
func (c *WSConn) RemoteAddr() string { return c.remote }

// WSServer accepts WebSocket upgrades and runs a Client for each, giving
// browser clients the same session surface as the TCP socket.
type WSServer struct {
	cfg    config.WebSocketConfig
	root   Dispatcher
	logger *zap.Logger

	server   *http.Server
	listener net.Listener
	mu       sync.Mutex
	running  bool
}

// NewWSServer creates a WebSocket server with the given configuration.
//
// Precondition: root and logger must be non-nil.
func NewWSServer(cfg config.WebSocketConfig, root Dispatcher, logger *zap.Logger) *WSServer {
	return &WSServer{cfg: cfg, root: root, logger: logger}
}

// ListenAndServe starts the HTTP listener and upgrades connections on the
// configured path until Stop is called. Blocks until stopped.
func (s *WSServer) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.handleUpgrade)
	server := &http.Server{Handler: mux}

	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.running = true
	s.mu.Unlock()

	s.logger.Info("websocket server listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", s.cfg.Path),
	)

	if err := server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *WSServer) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.AllowedOrigins,
	})
	if err != nil {
		s.logger.Debug("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	s.logger.Info("websocket client connected", zap.String("remote_addr", r.RemoteAddr))

	client := NewClient(NewWSConn(ws, r.RemoteAddr, s.cfg.WriteTimeout), s.root, s.logger)
	client.Run()

	s.logger.Info("websocket client disconnected", zap.String("remote_addr", r.RemoteAddr))
}

// Addr returns the bound address, or "" before ListenAndServe.
func (s *WSServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the HTTP server down, dropping active WebSocket sessions.
func (s *WSServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(ctx)

	s.logger.Info("websocket server stopped")
}

// IsRunning returns whether the server is currently accepting upgrades.
func (s *WSServer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

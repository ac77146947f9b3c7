// Package rest serves the read-only discovery API: room listings for
// client UIs and the advertised game socket address. All gameplay happens
// on the socket protocol; nothing here mutates state.
package rest

import (
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/ghostline/ghostline/internal/config"
	"github.com/ghostline/ghostline/internal/protocol"
	"github.com/ghostline/ghostline/internal/session"
)

// RoomDirectory is the lobby surface the API reads from.
type RoomDirectory interface {
	RoomEntries() []protocol.RoomListEntry
	Room(name string) *session.Room
}

// SocketInfo is the game socket address advertised to clients.
type SocketInfo struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Server is the fasthttp discovery API server.
type Server struct {
	cfg    config.RESTConfig
	rooms  RoomDirectory
	socket SocketInfo
	logger *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	srv      *fasthttp.Server
}

// NewServer creates the discovery API server. socket is the game socket
// address clients should connect to.
func NewServer(cfg config.RESTConfig, rooms RoomDirectory, socket SocketInfo, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, rooms: rooms, socket: socket, logger: logger}
}

// ListenAndServe binds the configured address and serves until Stop.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("binding rest api on %s: %w", s.cfg.Addr(), err)
	}

	srv := &fasthttp.Server{
		Handler: s.handle,
		Name:    "ghostline",
	}
	s.mu.Lock()
	s.listener = ln
	s.srv = srv
	s.mu.Unlock()

	s.logger.Info("rest api listening", zap.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil {
		return fmt.Errorf("rest api serve: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and closes the listener.
func (s *Server) Stop() {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv != nil {
		if err := srv.Shutdown(); err != nil {
			s.logger.Error("rest api shutdown", zap.Error(err))
		}
	}
}

// Addr returns the bound address, or "" before ListenAndServe.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	if !ctx.IsGet() {
		writeError(ctx, fasthttp.StatusMethodNotAllowed, "method not allowed")
		return
	}

	path := string(ctx.Path())
	switch {
	case path == "/api/health":
		writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})

	case path == "/api/rooms":
		writeJSON(ctx, fasthttp.StatusOK, s.rooms.RoomEntries())

	case strings.HasPrefix(path, "/api/rooms/"):
		name := strings.TrimPrefix(path, "/api/rooms/")
		room := s.rooms.Room(name)
		if room == nil {
			writeError(ctx, fasthttp.StatusNotFound, "room not found")
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, room.Details())

	case path == "/api/socket":
		writeJSON(ctx, fasthttp.StatusOK, s.socket)

	default:
		writeError(ctx, fasthttp.StatusNotFound, "not found")
	}
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		writeError(ctx, fasthttp.StatusInternalServerError, "encoding response")
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

func writeError(ctx *fasthttp.RequestCtx, status int, message string) {
	writeJSON(ctx, status, map[string]string{"error": message})
}

package rest_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ghostline/ghostline/internal/config"
	"github.com/ghostline/ghostline/internal/content/hotel"
	"github.com/ghostline/ghostline/internal/lobby"
	"github.com/ghostline/ghostline/internal/rest"
	"github.com/ghostline/ghostline/internal/storage/memory"
)

func startServer(t *testing.T) (*rest.Server, *lobby.Router) {
	t.Helper()
	router, err := lobby.NewRouter(memory.NewStore(), hotel.New(), 3, zap.NewNop())
	require.NoError(t, err)

	srv := rest.NewServer(
		config.RESTConfig{Enabled: true, Host: "127.0.0.1", Port: 0},
		router,
		rest.SocketInfo{Host: "127.0.0.1", Port: 5400},
		zap.NewNop(),
	)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			t.Errorf("rest server: %v", err)
		}
	}()
	t.Cleanup(srv.Stop)

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == "" {
		require.True(t, time.Now().Before(deadline), "server never bound")
		time.Sleep(5 * time.Millisecond)
	}
	return srv, router
}

func get(t *testing.T, srv *rest.Server, path string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(fmt.Sprintf("http://%s%s", srv.Addr(), path))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestHealth(t *testing.T) {
	srv, _ := startServer(t)
	status, body := get(t, srv, "/api/health")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestListRooms(t *testing.T) {
	srv, router := startServer(t)

	status, body := get(t, srv, "/api/rooms")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(body))

	_, err := router.CreateRoom(context.Background(), "sedgewick", "")
	require.NoError(t, err)

	status, body = get(t, srv, "/api/rooms")
	assert.Equal(t, http.StatusOK, status)
	var rooms []map[string]any
	require.NoError(t, json.Unmarshal(body, &rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, "sedgewick", rooms[0]["room_name"])
	assert.Equal(t, float64(0), rooms[0]["user_count"])
}

func TestRoomDetails(t *testing.T) {
	srv, router := startServer(t)
	_, err := router.CreateRoom(context.Background(), "sedgewick", "")
	require.NoError(t, err)

	status, body := get(t, srv, "/api/rooms/sedgewick")
	assert.Equal(t, http.StatusOK, status)
	var details map[string]any
	require.NoError(t, json.Unmarshal(body, &details))
	assert.Equal(t, "sedgewick", details["room_name"])
	assert.Equal(t, float64(0), details["user_count"])

	status, _ = get(t, srv, "/api/rooms/nowhere")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSocketDiscovery(t *testing.T) {
	srv, _ := startServer(t)
	status, body := get(t, srv, "/api/socket")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"host":"127.0.0.1","port":5400}`, string(body))
}

func TestMethodAndPathErrors(t *testing.T) {
	srv, _ := startServer(t)

	resp, err := http.Post(fmt.Sprintf("http://%s/api/rooms", srv.Addr()), "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	status, _ := get(t, srv, "/api/unknown")
	assert.Equal(t, http.StatusNotFound, status)
}

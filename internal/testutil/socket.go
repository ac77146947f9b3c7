package testutil

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"
)

// SocketClient is a line-protocol test client for integration testing
// against a running socket server. Frames are JSON objects, one per line.
type SocketClient struct {
	conn   net.Conn
	reader *bufio.Reader
	t      *testing.T
}

// NewSocketClient dials the given address and returns a test client.
//
// Precondition: addr must be a valid "host:port" string with a listening server.
// Postcondition: Returns a connected SocketClient or fails the test.
func NewSocketClient(t *testing.T, addr string) *SocketClient {
	t.Helper()
	start := time.Now()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", addr, err, time.Since(start))
	}

	t.Cleanup(func() {
		conn.Close()
	})

	return &SocketClient{
		conn:   conn,
		reader: bufio.NewReader(conn),
		t:      t,
	}
}

// Send writes one frame to the server, appending the line delimiter.
//
// Precondition: the formatted text must be a single JSON object without a
// trailing newline.
func (c *SocketClient) Send(format string, args ...any) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := fmt.Fprintf(c.conn, format+"\n", args...); err != nil {
		c.t.Fatalf("sending frame: %v", err)
	}
}

// ReadFrame reads the next frame and decodes it into a field map.
//
// Postcondition: Returns the decoded frame, or fails on timeout or EOF.
func (c *SocketClient) ReadFrame(timeout time.Duration) map[string]any {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		c.t.Fatalf("reading frame: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(line, &fields); err != nil {
		c.t.Fatalf("decoding frame %q: %v", line, err)
	}
	return fields
}

// ReadKind reads the next frame and requires its type field to match kind.
func (c *SocketClient) ReadKind(kind string, timeout time.Duration) map[string]any {
	c.t.Helper()
	fields := c.ReadFrame(timeout)
	if fields["type"] != kind {
		c.t.Fatalf("expected %q frame, got %v", kind, fields)
	}
	return fields
}

// Close closes the underlying connection.
func (c *SocketClient) Close() {
	c.conn.Close()
}

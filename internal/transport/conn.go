// Package transport carries protocol envelopes over client connections.
// It owns connection framing, per-client outbound queues, and the TCP and
// WebSocket listeners. Message semantics live behind the Dispatcher
// interface, so the session layer never touches sockets.
package transport

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"sync"
	"time"
)

// Conn is one framed client connection. A frame is the wire form of
// exactly one envelope.
type Conn interface {
	// ReadFrame blocks for the next frame.
	ReadFrame() ([]byte, error)
	// WriteFrame writes one frame. Safe for concurrent use.
	WriteFrame(frame []byte) error
	// Close closes the connection. Idempotent.
	Close() error
	// RemoteAddr identifies the peer for logging.
	RemoteAddr() string
}

// TCPConn frames envelopes as newline-delimited JSON over a TCP stream.
type TCPConn struct {
	raw    net.Conn
	reader *bufio.Reader
	mu     sync.Mutex

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewTCPConn wraps a raw TCP connection.
//
// Precondition: raw must be a valid, open network connection.
func NewTCPConn(raw net.Conn, readTimeout, writeTimeout time.Duration) *TCPConn {
	return &TCPConn{
		raw:          raw,
		reader:       bufio.NewReaderSize(raw, 4096),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// ReadFrame reads up to the next newline. The returned frame excludes the
// delimiter and any trailing carriage return.
func (c *TCPConn) ReadFrame() ([]byte, error) {
	if c.readTimeout > 0 {
		_ = c.raw.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(line, "\r\n"), nil
}

// WriteFrame writes the frame followed by a newline.
func (c *TCPConn) WriteFrame(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if _, err := c.raw.Write(frame); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	if _, err := c.raw.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("writing frame delimiter: %w", err)
	}
	return nil
}

// Close closes the underlying TCP connection.
func (c *TCPConn) Close() error {
	return c.raw.Close()
}

// RemoteAddr returns the remote network address of the client.
func (c *TCPConn) RemoteAddr() string {
	return c.raw.RemoteAddr().String()
}

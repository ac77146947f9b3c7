package transport

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ghostline/ghostline/internal/protocol"
)

// Dispatcher consumes the envelopes a client sends. Clients hold exactly
// one dispatcher at a time; the session layer swaps it as the client moves
// between the lobby and a room.
type Dispatcher interface {
	// OnMessage handles one decoded envelope from the client.
	OnMessage(c *Client, env protocol.Envelope)
	// OnDisconnect handles the client's connection going away. Called at
	// most once per client.
	OnDisconnect(c *Client)
}

const outboundBuffer = 64

// ErrClientClosed is returned by Send after the client has shut down.
var ErrClientClosed = errors.New("client closed")

// Client is one connected player: a framed connection, a serialized
// outbound queue, and the dispatcher currently responsible for its
// messages.
//
// Sends are queued and written by a single writer goroutine, so a slow
// connection never blocks the sender. A client that cannot drain its queue
// is disconnected.
type Client struct {
	conn   Conn
	logger *zap.Logger

	mu         sync.Mutex
	dispatcher Dispatcher
	player     string

	outbound  chan []byte
	done      chan struct{}
	closeOnce sync.Once
	discOnce  sync.Once
}

// NewClient wraps a connection. The client does nothing until Run.
//
// Precondition: conn, dispatcher, and logger must be non-nil.
func NewClient(conn Conn, dispatcher Dispatcher, logger *zap.Logger) *Client {
	return &Client{
		conn:       conn,
		logger:     logger,
		dispatcher: dispatcher,
		outbound:   make(chan []byte, outboundBuffer),
		done:       make(chan struct{}),
	}
}

// RemoteAddr identifies the peer for logging.
func (c *Client) RemoteAddr() string { return c.conn.RemoteAddr() }

// SetDispatcher routes subsequent messages to d.
func (c *Client) SetDispatcher(d Dispatcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatcher = d
}

// Player returns the nickname assigned to this client, or empty while the
// client is anonymous in the lobby.
func (c *Client) Player() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.player
}

// SetPlayer assigns the client's nickname for the duration of a room
// membership.
func (c *Client) SetPlayer(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.player = name
}

func (c *Client) currentDispatcher() Dispatcher {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dispatcher
}

// Send queues an envelope for delivery. Fails with ErrClientClosed after
// shutdown. A full queue closes the client: the peer is too slow to keep
// its session.
func (c *Client) Send(env protocol.Envelope) error {
	frame, err := protocol.Encode(env)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", env.Kind(), err)
	}

	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.outbound <- frame:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		c.logger.Warn("outbound queue full, dropping client",
			zap.String("remote_addr", c.RemoteAddr()),
			zap.String("player", c.Player()),
		)
		c.Close()
		return fmt.Errorf("outbound queue full for %s", c.RemoteAddr())
	}
}

// Run drives the client: a writer goroutine drains the outbound queue
// while this goroutine reads, decodes, and dispatches frames. Run returns
// when the connection drops or Close is called, after notifying the
// current dispatcher exactly once.
func (c *Client) Run() {
	go c.writeLoop()

	for {
		frame, err := c.conn.ReadFrame()
		if err != nil {
			break
		}
		if len(frame) == 0 {
			continue
		}

		env, err := protocol.Decode(frame)
		if err != nil {
			c.rejectFrame(err)
			continue
		}
		c.currentDispatcher().OnMessage(c, env)
	}

	c.Close()
	c.discOnce.Do(func() {
		c.currentDispatcher().OnDisconnect(c)
	})
}

// rejectFrame answers an undecodable frame with an error envelope and
// keeps the session alive.
func (c *Client) rejectFrame(err error) {
	code := protocol.ErrMalformedEnvelope
	var decodeErr *protocol.DecodeError
	if errors.As(err, &decodeErr) {
		code = decodeErr.Code
	}
	c.logger.Debug("rejecting frame",
		zap.String("remote_addr", c.RemoteAddr()),
		zap.Error(err),
	)
	_ = c.Send(protocol.NewError(code))
}

// writeLoop owns the socket's write side and its final Close, so farewell
// envelopes queued just before a disconnect still reach the peer.
func (c *Client) writeLoop() {
	defer c.conn.Close()

	for {
		select {
		case frame := <-c.outbound:
			if err := c.conn.WriteFrame(frame); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			// Flush whatever is already queued before giving up the socket.
			for {
				select {
				case frame := <-c.outbound:
					if err := c.conn.WriteFrame(frame); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// Close shuts the client down. Idempotent; safe from any goroutine. The
// socket itself is closed by the writer goroutine after it drains the
// queue.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Closed reports whether the client has shut down.
func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

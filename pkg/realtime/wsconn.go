package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kart-io/notifyrelay/pkg/errors"
)

// WebSocket defaults.
const (
	DefaultWriteTimeout   = 5 * time.Second
	DefaultPongWait       = 60 * time.Second
	DefaultMaxMessageSize = 64 * 1024
)

const (
	stateOpen int32 = iota
	stateClosing
	stateClosed
)

// WSConn adapts a gorilla websocket connection to Conn. Writes are
// serialized and bounded by a write deadline so one slow client cannot
// stall a broadcast for longer than WriteTimeout.
type WSConn struct {
	ws    *websocket.Conn
	state atomic.Int32
	wmu   sync.Mutex

	writeTimeout   time.Duration
	pongWait       time.Duration
	maxMessageSize int64

	closeOnce sync.Once
	done      chan struct{}
}

// WSOption configures a WSConn.
type WSOption func(*WSConn)

// WithWriteTimeout bounds every write.
func WithWriteTimeout(d time.Duration) WSOption {
	return func(c *WSConn) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// WithPongWait sets how long the peer may stay silent before the
// connection is considered dead. Pings go out at 9/10 of this interval.
func WithPongWait(d time.Duration) WSOption {
	return func(c *WSConn) {
		if d > 0 {
			c.pongWait = d
		}
	}
}

// WithMaxMessageSize limits inbound frame size.
func WithMaxMessageSize(n int64) WSOption {
	return func(c *WSConn) {
		if n > 0 {
			c.maxMessageSize = n
		}
	}
}

// NewWSConn wraps an upgraded websocket connection.
func NewWSConn(ws *websocket.Conn, opts ...WSOption) *WSConn {
	c := &WSConn{
		ws:             ws,
		writeTimeout:   DefaultWriteTimeout,
		pongWait:       DefaultPongWait,
		maxMessageSize: DefaultMaxMessageSize,
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ready reports whether the connection is open and has not failed a write.
func (c *WSConn) Ready() bool {
	return c.state.Load() == stateOpen
}

// Write sends data as one text message.
func (c *WSConn) Write(ctx context.Context, data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if !c.Ready() {
		return errors.New(errors.ErrRealtimeClosed, "connection is not open")
	}
	// Cancellation leaves the connection open.
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrRealtimeWrite, "write canceled")
	}

	// Not bounded by ctx: a timed out write breaks the connection for good.
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.state.CompareAndSwap(stateOpen, stateClosing)
		return errors.Wrap(err, errors.ErrRealtimeWrite, "websocket write failed")
	}
	return nil
}

// Close sends a close frame and releases the socket.
func (c *WSConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.state.Store(stateClosing)
		close(c.done)

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
		err = c.ws.Close()
		c.state.Store(stateClosed)
	})
	return err
}

// ReadLoop feeds inbound frames to channel until the peer goes away, then
// disconnects clientID. It blocks, so callers usually run it on the
// goroutine that accepted the connection.
func (c *WSConn) ReadLoop(ctx context.Context, channel *Channel, clientID string) {
	defer channel.Disconnect(clientID)

	c.ws.SetReadLimit(c.maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	go c.keepalive()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				channel.logger.Debug("Websocket read failed", "client_id", clientID, "error", err)
			}
			return
		}
		// Protocol errors are answered inside HandleFrame.
		_ = channel.HandleFrame(ctx, clientID, data)
	}
}

func (c *WSConn) keepalive() {
	ticker := time.NewTicker(c.pongWait * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
				c.state.CompareAndSwap(stateOpen, stateClosing)
				return
			}
		}
	}
}

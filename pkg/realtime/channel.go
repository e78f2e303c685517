package realtime

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync/atomic"

	"github.com/kart-io/notifyrelay/pkg/errors"
	"github.com/kart-io/notifyrelay/pkg/logger"
	"github.com/kart-io/notifyrelay/pkg/notification"
)

// Persister stores notifications that clients asked to keep.
type Persister interface {
	Store(ctx context.Context, n *notification.Notification) error
}

// Channel delivers payloads to live connections and answers inbound frames.
// It owns the registry: connections enter through Accept and leave through
// Disconnect.
type Channel struct {
	registry  *Registry
	persister Persister
	logger    logger.Logger
	closed    atomic.Bool
}

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the channel logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Channel) { c.logger = logger.OrDiscard(l) }
}

// WithPersister sets where broadcast frames with persist:true are stored.
func WithPersister(p Persister) Option {
	return func(c *Channel) { c.persister = p }
}

// NewChannel creates a channel over registry. A nil registry gets a fresh one.
func NewChannel(registry *Registry, opts ...Option) *Channel {
	if registry == nil {
		registry = NewRegistry()
	}
	c := &Channel{
		registry: registry,
		logger:   logger.Discard,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connections returns the number of live connections.
func (c *Channel) Connections() int {
	return c.registry.Len()
}

// Accept registers conn and sends it the connection acknowledgement.
func (c *Channel) Accept(ctx context.Context, conn Conn) (string, error) {
	if c.closed.Load() {
		_ = conn.Close()
		return "", errors.New(errors.ErrRealtimeClosed, "realtime channel is closed")
	}

	clientID := c.registry.Register(conn)
	if c.closed.Load() {
		// Close ran between the check above and Register.
		c.Disconnect(clientID)
		return "", errors.New(errors.ErrRealtimeClosed, "realtime channel is closed")
	}
	ack, _ := json.Marshal(AckFrame{Type: FrameConnectionAck, ClientID: clientID})
	if err := conn.Write(ctx, ack); err != nil {
		c.Disconnect(clientID)
		return "", errors.Wrap(err, errors.ErrRealtimeWrite, "send connection ack").
			WithMetadata("client_id", clientID)
	}

	c.logger.Debug("Client connected", "client_id", clientID, "connections", c.registry.Len())
	return clientID, nil
}

// Disconnect unregisters clientID and then closes its connection.
func (c *Channel) Disconnect(clientID string) {
	conn, ok := c.registry.Remove(clientID)
	if !ok {
		return
	}
	if err := conn.Close(); err != nil {
		c.logger.Debug("Close connection failed", "client_id", clientID, "error", err)
	}
	c.logger.Debug("Client disconnected", "client_id", clientID)
}

// Broadcast writes payload to every ready connection and returns how many
// were written. Connections that are not ready are skipped; a connection
// whose write fails is disconnected. Neither case fails the broadcast.
//
// A done ctx stops the broadcast with ErrRealtimeBroadcast and leaves every
// connection registered.
func (c *Channel) Broadcast(ctx context.Context, payload any) (int, error) {
	if c.closed.Load() {
		return 0, errors.New(errors.ErrRealtimeClosed, "realtime channel is closed")
	}
	if err := ctx.Err(); err != nil {
		return 0, errors.Wrap(err, errors.ErrRealtimeBroadcast, "broadcast canceled")
	}
	data, err := encode(payload)
	if err != nil {
		return 0, err
	}

	delivered := 0
	var canceled error
	c.registry.ForEach(func(clientID string, conn Conn) {
		if canceled != nil || !conn.Ready() {
			return
		}
		if err := conn.Write(ctx, data); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				canceled = ctxErr
			}
			c.dropIfBroken(clientID, conn, err)
			return
		}
		delivered++
	})

	if canceled != nil {
		c.logger.Warn("Broadcast canceled", "delivered", delivered, "error", canceled)
		return delivered, errors.Wrap(canceled, errors.ErrRealtimeBroadcast, "broadcast canceled").
			WithMetadata("delivered", delivered)
	}
	c.logger.Debug("Broadcast complete", "delivered", delivered)
	return delivered, nil
}

// dropIfBroken disconnects clientID when its failed write left the handle
// unusable. A write refused because of the caller's ctx keeps it.
func (c *Channel) dropIfBroken(clientID string, conn Conn, err error) {
	if conn.Ready() {
		c.logger.Debug("Realtime write skipped", "client_id", clientID, "error", err)
		return
	}
	c.logger.Warn("Realtime write failed", "client_id", clientID, "error", err)
	c.Disconnect(clientID)
}

// Direct writes payload to one connection. An unknown or not ready client
// yields ErrRecipientUnavailable.
func (c *Channel) Direct(ctx context.Context, clientID string, payload any) error {
	if c.closed.Load() {
		return errors.New(errors.ErrRealtimeClosed, "realtime channel is closed")
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrRealtimeWrite, "direct write canceled").
			WithMetadata("client_id", clientID)
	}
	data, err := encode(payload)
	if err != nil {
		return err
	}

	conn, ok := c.registry.Get(clientID)
	if !ok || !conn.Ready() {
		return errors.New(errors.ErrRecipientUnavailable, "recipient unavailable").
			WithMetadata("client_id", clientID)
	}
	if err := conn.Write(ctx, data); err != nil {
		c.dropIfBroken(clientID, conn, err)
		return errors.Wrap(err, errors.ErrRealtimeWrite, "direct write failed").
			WithMetadata("client_id", clientID)
	}
	return nil
}

// HandleFrame processes one inbound frame from clientID. Rejected frames are
// answered with an error frame and the protocol error is returned.
func (c *Channel) HandleFrame(ctx context.Context, clientID string, data []byte) error {
	frame, err := ParseFrame(data)
	if err != nil {
		return c.reject(ctx, clientID, MsgInvalidFormat,
			errors.Wrap(err, errors.ErrInvalidFrame, "malformed frame"))
	}

	switch frame.Type {
	case FrameBroadcast:
		n, err := notification.ParsePayload(frame.Notification)
		if err != nil {
			return c.reject(ctx, clientID, err.Error(),
				errors.Wrap(err, errors.ErrInvalidPayload, "invalid notification"))
		}
		if _, err := c.Broadcast(ctx, []byte(frame.Notification)); err != nil {
			return err
		}
		if frame.Persist {
			c.persist(ctx, n)
		}
		return nil

	case FrameDirect:
		if _, err := notification.ParsePayload(frame.Notification); err != nil {
			return c.reject(ctx, clientID, err.Error(),
				errors.Wrap(err, errors.ErrInvalidPayload, "invalid notification"))
		}
		if frame.RecipientID == "" {
			return c.reject(ctx, clientID, MsgMissingRecipient,
				errors.New(errors.ErrInvalidPayload, "direct frame without recipientId"))
		}
		err := c.Direct(ctx, frame.RecipientID, []byte(frame.Notification))
		if errors.GetCode(err) == errors.ErrRecipientUnavailable {
			return c.reject(ctx, clientID, MsgRecipientUnavailable, err)
		}
		return err

	default:
		return c.reject(ctx, clientID, MsgInvalidType,
			errors.Newf(errors.ErrInvalidMessageType, "unknown frame type %q", frame.Type))
	}
}

func (c *Channel) reject(ctx context.Context, clientID, text string, cause error) error {
	c.logger.Debug("Inbound frame rejected", "client_id", clientID, "error", cause)

	reply, _ := json.Marshal(ErrorFrame{Type: FrameError, Error: text})
	if err := c.Direct(ctx, clientID, reply); err != nil {
		c.logger.Debug("Error frame not delivered", "client_id", clientID, "error", err)
	}
	return cause
}

func (c *Channel) persist(ctx context.Context, n *notification.Notification) {
	if c.persister == nil {
		c.logger.Debug("Persist requested without a persister", "notification_id", n.ID)
		return
	}
	if err := c.persister.Store(ctx, n); err != nil {
		c.logger.Error("Persist notification failed", "notification_id", n.ID, "error", err)
	}
}

// Close disconnects every client and rejects further deliveries.
func (c *Channel) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	c.registry.ForEach(func(clientID string, _ Conn) {
		conn, ok := c.registry.Remove(clientID)
		if !ok {
			return
		}
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
	})
	return stderrors.Join(errs...)
}

func encode(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case []byte:
		return p, nil
	case json.RawMessage:
		return p, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrRealtimeEncode, "encode realtime payload")
	}
	return data, nil
}

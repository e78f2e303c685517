// Package dispatcher drives a notification through validation, durable
// delivery and realtime delivery, and defines what each stage's failure
// means for the caller.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/kart-io/notifyrelay/pkg/errors"
	"github.com/kart-io/notifyrelay/pkg/logger"
	"github.com/kart-io/notifyrelay/pkg/notification"
	"github.com/kart-io/notifyrelay/pkg/observability"
	"github.com/kart-io/notifyrelay/pkg/platforms/email"
	"github.com/kart-io/notifyrelay/pkg/utils/idgen"
)

// DurableSender delivers an addressed message, retrying internally.
type DurableSender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// Broadcaster fans a payload out to live connections.
type Broadcaster interface {
	Broadcast(ctx context.Context, payload any) (int, error)
}

// Persister keeps a copy of dispatched notifications.
type Persister interface {
	Store(ctx context.Context, n *notification.Notification) error
}

// BodyRenderer renders the durable message body.
type BodyRenderer func(n *notification.Notification) (string, error)

// DefaultCacheTimeout bounds one background cache write.
const DefaultCacheTimeout = 5 * time.Second

// Dispatcher sends notifications. Stages within one call run in order;
// separate calls are independent and may run concurrently.
type Dispatcher struct {
	durable      DurableSender
	realtime     Broadcaster
	persister    Persister
	resolver     RecipientResolver
	render       BodyRenderer
	ids          idgen.Generator
	now          func() time.Time
	subject      string
	transport    string
	cacheTimeout time.Duration
	logger       logger.Logger
	telemetry    *observability.TelemetryProvider

	inflight sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPersister enables background caching of validated notifications.
func WithPersister(p Persister) Option {
	return func(d *Dispatcher) { d.persister = p }
}

// WithResolver maps recipient ids to durable addresses.
func WithResolver(r RecipientResolver) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.resolver = r
		}
	}
}

// WithBodyRenderer replaces email.RenderBody.
func WithBodyRenderer(r BodyRenderer) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.render = r
		}
	}
}

// WithIDGenerator replaces the UUID notification id generator.
func WithIDGenerator(g idgen.Generator) Option {
	return func(d *Dispatcher) {
		if g != nil {
			d.ids = g
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithTransportName labels receipts with the durable transport in use.
func WithTransportName(name string) Option {
	return func(d *Dispatcher) { d.transport = name }
}

// WithCacheTimeout bounds each background cache write.
func WithCacheTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.cacheTimeout = timeout
		}
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger.OrDiscard(l) }
}

// WithTelemetry sets the telemetry provider.
func WithTelemetry(tp *observability.TelemetryProvider) Option {
	return func(d *Dispatcher) {
		if tp != nil {
			d.telemetry = tp
		}
	}
}

// New creates a dispatcher over the two delivery channels.
func New(durable DurableSender, realtime Broadcaster, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		durable:      durable,
		realtime:     realtime,
		resolver:     IdentityResolver,
		render:       email.RenderBody,
		ids:          idgen.NewUUIDGenerator(),
		now:          time.Now,
		subject:      email.DefaultSubject,
		cacheTimeout: DefaultCacheTimeout,
		logger:       logger.Discard,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.telemetry == nil {
		d.telemetry = observability.NewNoop()
	}
	return d
}

// SendNotification dispatches message to recipientID. A nil error means both
// channels delivered. errors.IsPartial distinguishes a realtime failure after
// durable delivery from a failure where nothing was delivered.
func (d *Dispatcher) SendNotification(ctx context.Context, recipientID, message string) error {
	_, err := d.Dispatch(ctx, recipientID, message)
	return err
}

// Dispatch runs one notification through every stage and returns a receipt
// describing where it ended, together with the error that ended it.
//
// A validation failure touches no channel. A durable failure stops before
// the realtime stage. A realtime failure is returned marked partial because
// the durable message already went out.
func (d *Dispatcher) Dispatch(ctx context.Context, recipientID, message string) (*Receipt, error) {
	start := d.now()
	n := notification.New(d.ids.Generate(), recipientID, message, start)

	ctx, span := d.telemetry.TraceDispatch(ctx, n.ID, recipientID)
	defer span.End()

	r := &Receipt{
		NotificationID:   n.ID,
		RecipientID:      recipientID,
		State:            StateValidating,
		DurableTransport: d.transport,
		StartedAt:        start,
	}

	finish := func(state State, err error) (*Receipt, error) {
		r.State = state
		r.FinishedAt = d.now()
		d.telemetry.RecordDispatch(ctx, string(state), r.Duration())
		span.AddEvent(string(state))

		if err != nil {
			r.Error = err.Error()
			d.telemetry.SetSpanError(span, err)
			d.telemetry.RecordStageFailure(ctx, string(state), errors.GetCode(err).Kind())
			return r, err
		}
		d.telemetry.SetSpanSuccess(span)
		return r, nil
	}

	// Validating
	if err := n.Validate(); err != nil {
		d.logger.Debug("Notification rejected", "notification_id", n.ID, "error", err)
		return finish(StateValidationFailed,
			errors.Wrap(err, errors.ErrValidationFailed, "notification validation failed"))
	}
	span.AddEvent(string(StateValidating))
	d.persist(ctx, n)

	// DurableSend
	r.State = StateDurableSend
	if err := d.sendDurable(ctx, n); err != nil {
		d.logger.Error("Durable delivery failed", "notification_id", n.ID, "recipient_id", recipientID, "error", err)
		return finish(StateDurableFailed, err)
	}
	span.AddEvent(string(StateDurableSend))

	// RealtimeSend
	r.State = StateRealtimeSend
	delivered, err := d.broadcast(ctx, notification.NewEnvelope(n))
	if err != nil {
		d.logger.Warn("Realtime delivery failed after durable delivery",
			"notification_id", n.ID, "recipient_id", recipientID, "error", err)
		return finish(StatePartiallyDelivered,
			errors.Wrap(err, errors.ErrRealtimeBroadcast, "realtime delivery failed after durable delivery").
				AsPartial().
				WithMetadata("notification_id", n.ID))
	}
	r.RealtimeRecipients = delivered
	d.telemetry.RecordRealtimeDeliveries(ctx, delivered)

	d.logger.Info("Notification dispatched", "notification_id", n.ID, "recipient_id", recipientID,
		"realtime_recipients", delivered)
	return finish(StateDone, nil)
}

func (d *Dispatcher) sendDurable(ctx context.Context, n *notification.Notification) error {
	address, err := d.resolver.Resolve(ctx, n.RecipientID)
	if err != nil {
		if _, ok := errors.As(err); !ok {
			err = errors.Wrap(err, errors.ErrInvalidRecipient, "resolve recipient address")
		}
		return err
	}

	body, err := d.render(n)
	if err != nil {
		if _, ok := errors.As(err); !ok {
			err = errors.Wrap(err, errors.ErrDurableRenderFailed, "render notification body")
		}
		return err
	}

	if err := d.durable.Send(ctx, address, d.subject, body); err != nil {
		if _, ok := errors.As(err); !ok {
			err = errors.Wrap(err, errors.ErrDurableSendFailed, "durable delivery failed")
		}
		return err
	}
	return nil
}

// broadcast converts a panicking broadcaster into an error so the caller
// still learns that the durable stage completed.
func (d *Dispatcher) broadcast(ctx context.Context, payload any) (delivered int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Newf(errors.ErrRealtimeBroadcast, "realtime broadcast panicked: %v", rec)
		}
	}()
	return d.realtime.Broadcast(ctx, payload)
}

// persist writes n to the cache in the background. Failures are logged and
// never reach the dispatch caller.
func (d *Dispatcher) persist(ctx context.Context, n *notification.Notification) {
	if d.persister == nil {
		return
	}

	n = n.Clone()
	ctx = context.WithoutCancel(ctx)

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()

		ctx, cancel := context.WithTimeout(ctx, d.cacheTimeout)
		defer cancel()

		if err := d.store(ctx, n); err != nil {
			d.logger.Error("Cache write failed", "notification_id", n.ID, "error", err)
			d.telemetry.RecordStageFailure(ctx, "cache", errors.KindCache)
		}
	}()
}

func (d *Dispatcher) store(ctx context.Context, n *notification.Notification) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Newf(errors.ErrCacheWrite, "cache write panicked: %v", rec)
		}
	}()
	return d.persister.Store(ctx, n)
}

// Wait blocks until background cache writes finish.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

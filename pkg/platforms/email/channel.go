package email

import (
	"context"
	"strings"
	"time"

	"github.com/kart-io/notifyrelay/pkg/errors"
	"github.com/kart-io/notifyrelay/pkg/logger"
)

// Channel delivers mail over a Transport, retrying transport failures
// according to its RetryPolicy.
type Channel struct {
	transport Transport
	policy    errors.RetryPolicy
	from      string
	logger    logger.Logger
}

// Option configures a Channel.
type Option func(*Channel)

// WithRetryPolicy replaces the default 3 attempt linear backoff.
func WithRetryPolicy(p errors.RetryPolicy) Option {
	return func(c *Channel) {
		if p != nil {
			c.policy = p
		}
	}
}

// WithSender overrides the transport's sender address.
func WithSender(from string) Option {
	return func(c *Channel) { c.from = from }
}

// WithLogger sets the channel logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Channel) { c.logger = logger.OrDiscard(l) }
}

// NewChannel creates a durable channel over transport.
func NewChannel(transport Transport, opts ...Option) *Channel {
	c := &Channel{
		transport: transport,
		policy:    errors.DefaultDeliveryPolicy(),
		logger:    logger.Discard,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the transport name.
func (c *Channel) Name() string {
	if c.transport == nil {
		return "none"
	}
	return c.transport.Name()
}

// Send delivers one message. Missing credentials or empty arguments fail
// immediately. Transport failures, verify included, are retried until the
// policy gives up; the last failure is returned wrapped as
// ErrDurableSendFailed.
func (c *Channel) Send(ctx context.Context, recipient, subject, body string) error {
	if c.transport == nil || !c.transport.Configured() {
		return errors.New(errors.ErrNotConfigured, "email transport credentials are not configured").
			WithPlatform(c.Name())
	}
	if missing := missingArgs(recipient, subject, body); len(missing) > 0 {
		return errors.New(errors.ErrMissingRequired, "recipient, subject and body are required").
			WithDetails("missing " + strings.Join(missing, ", ")).
			WithPlatform(c.Name())
	}

	m := Mail{From: c.from, To: recipient, Subject: subject, HTMLBody: body}
	maxAttempts := c.policy.MaxAttempts()
	verified := false

	var lastErr error
	attempt := 1
	for ; attempt <= maxAttempts; attempt++ {
		start := time.Now()
		lastErr = c.attempt(ctx, &verified, m)
		if lastErr == nil {
			c.logger.Info("Email sent", "to", recipient, "transport", c.Name(),
				"attempt", attempt, "duration_ms", time.Since(start).Milliseconds())
			return nil
		}

		c.logger.Warn("Email attempt failed", "to", recipient, "transport", c.Name(),
			"attempt", attempt, "max_attempts", maxAttempts, "error", lastErr)

		if !c.policy.ShouldRetry(lastErr, attempt) {
			break
		}
		if err := errors.Sleep(ctx, c.policy.RetryDelay(attempt)); err != nil {
			return errors.Wrap(err, errors.ErrDurableCanceled, "email delivery canceled while waiting to retry").
				WithDetails("last error: " + lastErr.Error()).
				WithPlatform(c.Name()).
				WithAttemptCount(attempt)
		}
	}
	if attempt > maxAttempts {
		attempt = maxAttempts
	}

	c.logger.Error("Email delivery failed", "to", recipient, "transport", c.Name(),
		"attempts", attempt, "error", lastErr)
	return errors.Wrap(lastErr, errors.ErrDurableSendFailed, "email delivery failed").
		WithPlatform(c.Name()).
		WithAttemptCount(attempt).
		WithRetryable(false)
}

func (c *Channel) attempt(ctx context.Context, verified *bool, m Mail) error {
	if !*verified {
		if err := c.transport.Verify(ctx); err != nil {
			if _, ok := errors.As(err); !ok {
				err = errors.Wrap(err, errors.ErrDurableHandshake, "transport verify failed").
					WithPlatform(c.Name())
			}
			return err
		}
		*verified = true
	}
	return c.transport.SendMail(ctx, m)
}

func missingArgs(recipient, subject, body string) []string {
	var missing []string
	if strings.TrimSpace(recipient) == "" {
		missing = append(missing, "recipient")
	}
	if strings.TrimSpace(subject) == "" {
		missing = append(missing, "subject")
	}
	if strings.TrimSpace(body) == "" {
		missing = append(missing, "body")
	}
	return missing
}

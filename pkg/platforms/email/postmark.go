package email

import (
	"context"

	"github.com/mrz1836/postmark"

	"github.com/kart-io/notifyrelay/pkg/errors"
	"github.com/kart-io/notifyrelay/pkg/logger"
)

// Postmark API error codes that no retry can fix.
const (
	postmarkBadToken          = 10
	postmarkInvalidRequest    = 300
	postmarkInactiveRecipient = 406
)

// postmarkAPI is the subset of *postmark.Client the transport uses.
type postmarkAPI interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
	GetCurrentServer(ctx context.Context) (postmark.Server, error)
}

// PostmarkTransport sends mail through the Postmark transactional API.
type PostmarkTransport struct {
	client postmarkAPI
	config PostmarkConfig
	logger logger.Logger
}

// NewPostmarkTransport creates a Postmark transport.
func NewPostmarkTransport(config PostmarkConfig, log logger.Logger) *PostmarkTransport {
	return &PostmarkTransport{
		client: postmark.NewClient(config.ServerToken, config.AccountToken),
		config: config,
		logger: logger.OrDiscard(log),
	}
}

// Name returns the transport name
func (t *PostmarkTransport) Name() string {
	return "postmark"
}

// Configured reports whether the server token and sender are set
func (t *PostmarkTransport) Configured() bool {
	return t.config.Configured()
}

// Verify fetches the server the token belongs to
func (t *PostmarkTransport) Verify(ctx context.Context) error {
	server, err := t.client.GetCurrentServer(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrDurableHandshake, "postmark server lookup failed").
			WithPlatform(t.Name())
	}
	t.logger.Debug("Postmark server verified", "server", server.Name)
	return nil
}

// SendMail sends one HTML message
func (t *PostmarkTransport) SendMail(ctx context.Context, m Mail) error {
	from := m.From
	if from == "" {
		from = t.config.From
	}
	tag := m.Tag
	if tag == "" {
		tag = t.config.Tag
	}

	resp, err := t.client.SendEmail(ctx, postmark.Email{
		From:     from,
		To:       m.To,
		Subject:  m.Subject,
		Tag:      tag,
		HTMLBody: m.HTMLBody,
	})
	// The client also returns an error for API error codes; the code is
	// the more precise signal.
	if resp.ErrorCode == 0 {
		if err != nil {
			return errors.Wrap(err, errors.ErrDurableSendFailed, "postmark request failed").
				WithPlatform(t.Name())
		}
		return nil
	}

	code := errors.ErrDurableSendFailed
	switch resp.ErrorCode {
	case postmarkBadToken:
		code = errors.ErrNotConfigured
	case postmarkInvalidRequest, postmarkInactiveRecipient:
		code = errors.ErrDurableRejected
	}
	return errors.Newf(code, "postmark error %d: %s", resp.ErrorCode, resp.Message).
		WithPlatform(t.Name()).
		WithMetadata("to", m.To)
}

package email

import (
	"context"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/kart-io/notifyrelay/pkg/errors"
	"github.com/kart-io/notifyrelay/pkg/logger"
)

// SMTPTransport sends mail through an SMTP server using go-mail.
type SMTPTransport struct {
	config SMTPConfig
	logger logger.Logger
}

// NewSMTPTransport creates an SMTP transport. Missing settings are not an
// error here; Configured reports them and the channel refuses to send.
func NewSMTPTransport(config SMTPConfig, log logger.Logger) *SMTPTransport {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &SMTPTransport{config: config, logger: logger.OrDiscard(log)}
}

// Name returns the transport name
func (t *SMTPTransport) Name() string {
	return "smtp"
}

// Configured reports whether host, port and sender are set
func (t *SMTPTransport) Configured() bool {
	return t.config.Configured()
}

// Verify dials the server, authenticates if configured and hangs up
func (t *SMTPTransport) Verify(ctx context.Context) error {
	client, err := t.newClient()
	if err != nil {
		return err
	}

	if err := client.DialWithContext(ctx); err != nil {
		t.logger.Debug("SMTP verify failed", "host", t.config.Host, "port", t.config.Port, "error", err)
		return errors.Wrap(err, errors.ErrDurableHandshake, "failed to connect to SMTP server").
			WithPlatform(t.Name())
	}

	_ = client.Close()
	return nil
}

// SendMail sends one HTML message
func (t *SMTPTransport) SendMail(ctx context.Context, m Mail) error {
	msg, err := t.buildMessage(m)
	if err != nil {
		return err
	}

	client, err := t.newClient()
	if err != nil {
		return err
	}

	t.logger.Debug("Sending email", "host", t.config.Host, "port", t.config.Port, "to", m.To)
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return errors.Wrap(err, errors.ErrDurableSendFailed, "failed to send email").
			WithPlatform(t.Name())
	}
	return nil
}

func (t *SMTPTransport) buildMessage(m Mail) (*mail.Msg, error) {
	msg := mail.NewMsg()

	from := m.From
	if from == "" {
		from = t.config.From
	}
	if err := msg.From(from); err != nil {
		return nil, errors.Wrap(err, errors.ErrInvalidConfig, "invalid sender address").
			WithPlatform(t.Name())
	}
	if err := msg.To(m.To); err != nil {
		return nil, errors.Wrap(err, errors.ErrInvalidRecipient, "invalid recipient address").
			WithPlatform(t.Name()).
			WithMetadata("to", m.To)
	}

	msg.Subject(m.Subject)
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextHTML, m.HTMLBody)
	return msg, nil
}

func (t *SMTPTransport) newClient() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithTimeout(t.config.Timeout),
		mail.WithPort(t.config.Port),
	}

	switch {
	case t.config.SSL:
		opts = append(opts, mail.WithSSLPort(true))
	case t.config.TLS:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if t.config.Username != "" && t.config.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(t.config.Username),
			mail.WithPassword(t.config.Password),
		)
	}

	client, err := mail.NewClient(t.config.Host, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInvalidConfig, "failed to create mail client").
			WithPlatform(t.Name())
	}
	return client, nil
}

// Package email implements the durable notification channel: addressed
// email delivery with bounded retries over a pluggable transport.
package email

import "context"

// Mail is one outbound message.
type Mail struct {
	From     string
	To       string
	Subject  string
	HTMLBody string
	Tag      string
}

// Transport delivers mail to an external provider.
type Transport interface {
	// Name identifies the transport in logs and errors.
	Name() string
	// Configured reports whether credentials are present.
	Configured() bool
	// Verify checks that the provider is reachable and accepts the credentials.
	Verify(ctx context.Context) error
	// SendMail delivers m.
	SendMail(ctx context.Context, m Mail) error
}

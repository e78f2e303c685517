package dispatcher

import (
	"context"
	"strings"

	"github.com/kart-io/notifyrelay/pkg/errors"
)

// RecipientResolver maps a recipient id to the address the durable
// channel delivers to.
type RecipientResolver interface {
	Resolve(ctx context.Context, recipientID string) (string, error)
}

// ResolverFunc adapts a function to RecipientResolver.
type ResolverFunc func(ctx context.Context, recipientID string) (string, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, recipientID string) (string, error) {
	return f(ctx, recipientID)
}

// IdentityResolver uses the recipient id as the address.
var IdentityResolver = ResolverFunc(func(_ context.Context, recipientID string) (string, error) {
	return recipientID, nil
})

// DomainResolver appends "@domain" to ids that are not already addresses.
// An empty domain behaves like IdentityResolver.
func DomainResolver(domain string) RecipientResolver {
	domain = strings.TrimPrefix(strings.TrimSpace(domain), "@")
	return ResolverFunc(func(_ context.Context, recipientID string) (string, error) {
		if domain == "" || strings.Contains(recipientID, "@") {
			return recipientID, nil
		}
		if strings.ContainsAny(recipientID, " \t\r\n<>") {
			return "", errors.Newf(errors.ErrInvalidRecipient, "recipient id %q cannot form an address", recipientID)
		}
		return recipientID + "@" + domain, nil
	})
}

// Package errors provides the tagged error taxonomy used across notifyrelay.
//
// Every error raised by a notifyrelay component is a *NotifyError whose Code
// carries a three-letter kind prefix. Callers branch on the kind with the Is*
// helpers instead of matching strings.
package errors

import "strings"

// Code represents a notifyrelay error code.
type Code string

// Kind prefixes. The first three characters of every Code name its kind.
const (
	KindValidation       = "VAL"
	KindDurableDelivery  = "DUR"
	KindRealtimeDelivery = "RTM"
	KindCache            = "CCH"
	KindProtocol         = "PRT"
	KindConfiguration    = "CON"
)

// Validation error codes. Never retried.
const (
	ErrValidationFailed Code = "VAL001" // one or more notification fields are invalid
	ErrMissingRequired  Code = "VAL002" // a required argument is empty
)

// Durable delivery error codes.
const (
	ErrDurableSendFailed   Code = "DUR001" // transport failed after every attempt
	ErrDurableHandshake    Code = "DUR002" // transport verify/handshake failed
	ErrDurableRejected     Code = "DUR003" // transport rejected the message permanently
	ErrDurableCanceled     Code = "DUR004" // context canceled while waiting to retry
	ErrInvalidRecipient    Code = "DUR005" // recipient address cannot be used by the transport
	ErrDurableRenderFailed Code = "DUR006" // message body could not be rendered
)

// Realtime delivery error codes.
const (
	ErrRealtimeBroadcast    Code = "RTM001" // broadcast could not be performed
	ErrRecipientUnavailable Code = "RTM002" // direct recipient missing or not ready
	ErrRealtimeEncode       Code = "RTM003" // payload could not be encoded
	ErrRealtimeClosed       Code = "RTM004" // channel is shut down
	ErrRealtimeWrite        Code = "RTM005" // write to a single connection failed
)

// Cache error codes. Logged, never surfaced to dispatch callers.
const (
	ErrCacheWrite      Code = "CCH001"
	ErrCacheEncode     Code = "CCH002"
	ErrCacheConnection Code = "CCH003"
)

// Protocol error codes for inbound realtime frames.
const (
	ErrInvalidFrame       Code = "PRT001" // frame is not valid JSON
	ErrInvalidMessageType Code = "PRT002" // unknown frame type
	ErrInvalidPayload     Code = "PRT003" // embedded notification failed validation
)

// Configuration error codes.
const (
	ErrInvalidConfig  Code = "CON001"
	ErrMissingConfig  Code = "CON002"
	ErrNotConfigured  Code = "CON003" // transport credentials absent
	ErrConfigLoadFail Code = "CON004"
)

// Kind returns the kind prefix of the code, or "" for malformed codes.
func (c Code) Kind() string {
	if len(c) < 3 {
		return ""
	}
	return strings.ToUpper(string(c[:3]))
}

// String implements fmt.Stringer.
func (c Code) String() string { return string(c) }

// retryableCodes lists the codes a retry policy may act on.
var retryableCodes = map[Code]bool{
	ErrDurableSendFailed: true,
	ErrDurableHandshake:  true,
	ErrCacheConnection:   true,
}

// DefaultRetryable reports whether errors with this code are retryable when
// the error itself does not say otherwise.
func (c Code) DefaultRetryable() bool {
	return retryableCodes[c]
}

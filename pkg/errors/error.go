package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"
)

// NotifyError represents a notifyrelay error with structured information.
type NotifyError struct {
	Code     Code           `json:"code"`
	Message  string         `json:"message"`
	Details  string         `json:"details,omitempty"`
	Platform string         `json:"platform,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`

	Timestamp time.Time `json:"timestamp"`

	// Retryable tells retry policies whether another attempt may succeed.
	Retryable bool `json:"retryable"`
	// Partial marks a failure that happened after an earlier delivery stage
	// already produced side effects.
	Partial      bool `json:"partial,omitempty"`
	AttemptCount int  `json:"attempt_count,omitempty"`

	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *NotifyError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Platform != "" {
		msg += fmt.Sprintf(" (platform: %s)", e.Platform)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause error.
func (e *NotifyError) Unwrap() error {
	return e.Cause
}

// Is matches another *NotifyError with the same code.
func (e *NotifyError) Is(target error) bool {
	if t, ok := target.(*NotifyError); ok {
		return e.Code == t.Code
	}
	return false
}

// Kind returns the kind prefix of the error code.
func (e *NotifyError) Kind() string {
	return e.Code.Kind()
}

// IsRetryable reports whether another attempt may succeed.
func (e *NotifyError) IsRetryable() bool {
	return e.Retryable
}

// MarshalJSON includes the cause message, which is otherwise dropped.
func (e *NotifyError) MarshalJSON() ([]byte, error) {
	type alias NotifyError
	var cause string
	if e.Cause != nil {
		cause = e.Cause.Error()
	}
	return json.Marshal(&struct {
		*alias
		Kind         string `json:"kind"`
		CauseMessage string `json:"cause_message,omitempty"`
	}{
		alias:        (*alias)(e),
		Kind:         e.Kind(),
		CauseMessage: cause,
	})
}

// WithCause sets the underlying cause error.
func (e *NotifyError) WithCause(cause error) *NotifyError {
	e.Cause = cause
	return e
}

// WithDetails adds details to the error.
func (e *NotifyError) WithDetails(details string) *NotifyError {
	e.Details = details
	return e
}

// WithPlatform records which channel/transport raised the error.
func (e *NotifyError) WithPlatform(platform string) *NotifyError {
	e.Platform = platform
	return e
}

// WithMetadata attaches a key/value pair.
func (e *NotifyError) WithMetadata(key string, value any) *NotifyError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[key] = value
	return e
}

// WithRetryable overrides the default retryability of the code.
func (e *NotifyError) WithRetryable(retryable bool) *NotifyError {
	e.Retryable = retryable
	return e
}

// WithAttemptCount records how many attempts were made.
func (e *NotifyError) WithAttemptCount(n int) *NotifyError {
	e.AttemptCount = n
	return e
}

// AsPartial marks the error as raised after an earlier stage succeeded.
func (e *NotifyError) AsPartial() *NotifyError {
	e.Partial = true
	return e
}

// New creates a new NotifyError.
func New(code Code, message string) *NotifyError {
	return &NotifyError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Retryable: code.DefaultRetryable(),
	}
}

// Newf creates a new NotifyError with a formatted message.
func Newf(code Code, format string, args ...any) *NotifyError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with a NotifyError.
func Wrap(err error, code Code, message string) *NotifyError {
	return New(code, message).WithCause(err)
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(err error, code Code, format string, args ...any) *NotifyError {
	return Newf(code, format, args...).WithCause(err)
}

// As finds the first *NotifyError in err's chain.
func As(err error) (*NotifyError, bool) {
	var ne *NotifyError
	if stderrors.As(err, &ne) {
		return ne, true
	}
	return nil, false
}

func hasKind(err error, kind string) bool {
	ne, ok := As(err)
	return ok && ne.Kind() == kind
}

// IsValidation reports a malformed-input failure.
func IsValidation(err error) bool { return hasKind(err, KindValidation) }

// IsDurable reports a durable-channel delivery failure.
func IsDurable(err error) bool { return hasKind(err, KindDurableDelivery) }

// IsRealtime reports a realtime-channel delivery failure.
func IsRealtime(err error) bool { return hasKind(err, KindRealtimeDelivery) }

// IsCache reports a cache persistence failure.
func IsCache(err error) bool { return hasKind(err, KindCache) }

// IsProtocol reports an inbound realtime protocol failure.
func IsProtocol(err error) bool { return hasKind(err, KindProtocol) }

// IsConfiguration reports a configuration failure.
func IsConfiguration(err error) bool { return hasKind(err, KindConfiguration) }

// IsPartial reports a failure raised after earlier side effects occurred,
// for example a realtime failure following a successful durable send.
func IsPartial(err error) bool {
	ne, ok := As(err)
	return ok && ne.Partial
}

// IsRetryable reports whether err carries a retryable NotifyError.
func IsRetryable(err error) bool {
	ne, ok := As(err)
	return ok && ne.Retryable
}

// GetCode returns the code of the first NotifyError in the chain, or "".
func GetCode(err error) Code {
	if ne, ok := As(err); ok {
		return ne.Code
	}
	return ""
}

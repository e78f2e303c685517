package dispatcher

import "time"

// State is the stage a dispatch call is in, or the terminal state it ended in.
type State string

const (
	StateValidating         State = "validating"
	StateDurableSend        State = "durable_send"
	StateRealtimeSend       State = "realtime_send"
	StateDone               State = "done"
	StateValidationFailed   State = "validation_failed"
	StateDurableFailed      State = "durable_failed"
	StatePartiallyDelivered State = "partially_delivered"
)

// Terminal reports whether no further stage follows s.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateValidationFailed, StateDurableFailed, StatePartiallyDelivered:
		return true
	}
	return false
}

// Delivered reports whether the durable channel accepted the notification.
func (s State) Delivered() bool {
	return s == StateDone || s == StatePartiallyDelivered || s == StateRealtimeSend
}

// Receipt describes the outcome of one dispatch call.
type Receipt struct {
	NotificationID     string    `json:"notification_id"`
	RecipientID        string    `json:"recipient_id"`
	State              State     `json:"state"`
	DurableTransport   string    `json:"durable_transport,omitempty"`
	RealtimeRecipients int       `json:"realtime_recipients"`
	Error              string    `json:"error,omitempty"`
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at"`
}

// Duration returns how long the dispatch call took.
func (r *Receipt) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

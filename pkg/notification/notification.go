// Package notification provides the notification record dispatched by notifyrelay
package notification

import (
	"encoding/json"
	"time"
)

// Notification represents a single notification addressed to one recipient
type Notification struct {
	ID          string    `json:"id" validate:"required"`
	RecipientID string    `json:"recipientId" validate:"required"`
	Message     string    `json:"message" validate:"required,runelen=1:1000"`
	Status      Status    `json:"status" validate:"required,oneof=unread read archived"`
	CreatedAt   time.Time `json:"createdAt" validate:"-"`
	UpdatedAt   time.Time `json:"updatedAt" validate:"-"`
}

// Status represents the read state of a notification
type Status string

const (
	StatusUnread   Status = "unread"
	StatusRead     Status = "read"
	StatusArchived Status = "archived"
)

// IsValid reports whether s is one of the known statuses
func (s Status) IsValid() bool {
	switch s {
	case StatusUnread, StatusRead, StatusArchived:
		return true
	}
	return false
}

// Message length bounds, counted in characters.
const (
	MinMessageLength = 1
	MaxMessageLength = 1000
)

// New creates an unread notification stamped with now
func New(id, recipientID, message string, now time.Time) *Notification {
	now = now.UTC()
	return &Notification{
		ID:          id,
		RecipientID: recipientID,
		Message:     message,
		Status:      StatusUnread,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Clone returns a copy of the notification
func (n *Notification) Clone() *Notification {
	c := *n
	return &c
}

// EnvelopeType is the frame type used when a notification is pushed to clients.
const EnvelopeType = "notification"

// Envelope wraps a notification for realtime delivery and caching
type Envelope struct {
	Type string        `json:"type"`
	Data *Notification `json:"data"`
}

// NewEnvelope wraps n in a notification envelope
func NewEnvelope(n *Notification) Envelope {
	return Envelope{Type: EnvelopeType, Data: n}
}

// Marshal encodes the envelope as JSON
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// CacheKeyPrefix prefixes every cached notification key.
const CacheKeyPrefix = "notification:"

// CacheKey returns the cache key for a notification id
func CacheKey(id string) string {
	return CacheKeyPrefix + id
}

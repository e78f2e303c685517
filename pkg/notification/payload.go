package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kart-io/notifyrelay/pkg/utils/validation"
)

// wirePayload mirrors Notification with loosely typed timestamps so that
// a bad timestamp is reported as a field error instead of a decode error.
type wirePayload struct {
	ID          string `json:"id"`
	RecipientID string `json:"recipientId"`
	Message     string `json:"message"`
	Status      Status `json:"status"`
	CreatedAt   any    `json:"createdAt"`
	UpdatedAt   any    `json:"updatedAt"`
}

// ParsePayload decodes a notification received from a client and validates
// it. The returned error is a *ValidationErrors listing every problem found,
// including timestamps that are not RFC 3339 instants.
func ParsePayload(raw json.RawMessage) (*Notification, error) {
	errs := validation.NewValidationErrors()

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		errs.Add(validation.RequiredFieldError("notification"))
		return nil, errs
	}

	var wire wirePayload
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		errs.Add(validation.ValidationError{
			Field:   "notification",
			Rule:    "json",
			Message: fmt.Sprintf("malformed notification: %v", err),
		})
		return nil, errs
	}

	n := &Notification{
		ID:          wire.ID,
		RecipientID: wire.RecipientID,
		Message:     wire.Message,
		Status:      wire.Status,
	}

	var createdOK, updatedOK bool
	n.CreatedAt, createdOK = parseInstant(errs, "createdAt", wire.CreatedAt)
	n.UpdatedAt, updatedOK = parseInstant(errs, "updatedAt", wire.UpdatedAt)

	errs.Merge(validate.Struct(n))
	if createdOK && updatedOK {
		checkTimestamps(errs, n.CreatedAt, n.UpdatedAt)
	}

	if errs.HasErrors() {
		return nil, errs
	}
	return n, nil
}

func parseInstant(errs *ValidationErrors, field string, v any) (time.Time, bool) {
	if v == nil {
		errs.Add(validation.RequiredFieldError(field))
		return time.Time{}, false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		errs.Add(validation.InvalidFormatError(field, "datetime", "RFC3339", v))
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		errs.Add(validation.InvalidFormatError(field, "datetime", "RFC3339", v))
		return time.Time{}, false
	}
	return t, true
}

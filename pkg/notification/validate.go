package notification

import (
	"time"

	"github.com/kart-io/notifyrelay/pkg/utils/validation"
)

// ValidationErrors lists every field that failed validation.
type ValidationErrors = validation.ValidationErrors

// ValidationError describes one failing field.
type ValidationError = validation.ValidationError

var validate = validation.New()

// Validate checks every field invariant and returns nil or a
// *ValidationErrors describing each violated field.
func (n *Notification) Validate() error {
	errs := validate.Struct(n)
	if errs == nil {
		errs = validation.NewValidationErrors()
	}
	checkTimestamps(errs, n.CreatedAt, n.UpdatedAt)
	return errs.ErrorOrNil()
}

// Validate is a convenience wrapper around (*Notification).Validate that
// treats a nil notification as invalid.
func Validate(n *Notification) error {
	if n == nil {
		errs := validation.NewValidationErrors()
		errs.Add(validation.RequiredFieldError("notification"))
		return errs
	}
	return n.Validate()
}

func checkTimestamps(errs *ValidationErrors, createdAt, updatedAt time.Time) {
	if createdAt.IsZero() {
		errs.Add(validation.RequiredFieldError("createdAt"))
	}
	if updatedAt.IsZero() {
		errs.Add(validation.RequiredFieldError("updatedAt"))
	}
	if !createdAt.IsZero() && !updatedAt.IsZero() && updatedAt.Before(createdAt) {
		errs.Add(validation.ValidationError{
			Field:   "updatedAt",
			Rule:    "gtefield",
			Message: "must not be earlier than createdAt",
			Value:   updatedAt.Format(time.RFC3339Nano),
			Params:  map[string]any{"field": "createdAt"},
		})
	}
}

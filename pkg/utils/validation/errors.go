// Package validation provides field-level validation errors and a struct
// validator that reports every failing field at once.
package validation

import (
	"fmt"
	"strings"
)

// ValidationError describes one failing field.
type ValidationError struct {
	Field   string         `json:"field"`
	Rule    string         `json:"rule"`
	Message string         `json:"message"`
	Value   any            `json:"value,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Message)
}

// ValidationErrors represents multiple validation errors.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// NewValidationErrors creates an empty error collection.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Error implements the error interface.
func (ve *ValidationErrors) Error() string {
	if len(ve.Errors) == 0 {
		return "no validation errors"
	}
	if len(ve.Errors) == 1 {
		return ve.Errors[0].Error()
	}

	messages := make([]string, 0, len(ve.Errors))
	for _, err := range ve.Errors {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("multiple validation errors: %s", strings.Join(messages, "; "))
}

// Add appends a validation error.
func (ve *ValidationErrors) Add(err ValidationError) {
	ve.Errors = append(ve.Errors, err)
}

// Merge appends every error of other.
func (ve *ValidationErrors) Merge(other *ValidationErrors) {
	if other != nil {
		ve.Errors = append(ve.Errors, other.Errors...)
	}
}

// HasErrors returns true if there are validation errors.
func (ve *ValidationErrors) HasErrors() bool {
	return ve != nil && len(ve.Errors) > 0
}

// ErrorOrNil returns ve as an error when it holds errors, nil otherwise.
func (ve *ValidationErrors) ErrorOrNil() error {
	if ve.HasErrors() {
		return ve
	}
	return nil
}

// Fields returns the failing field names in report order.
func (ve *ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(ve.Errors))
	for _, err := range ve.Errors {
		fields = append(fields, err.Field)
	}
	return fields
}

// FieldErrors returns errors for a specific field.
func (ve *ValidationErrors) FieldErrors(field string) []ValidationError {
	var fieldErrors []ValidationError
	for _, err := range ve.Errors {
		if err.Field == field {
			fieldErrors = append(fieldErrors, err)
		}
	}
	return fieldErrors
}

// HasFieldError returns true if a specific field has errors.
func (ve *ValidationErrors) HasFieldError(field string) bool {
	return len(ve.FieldErrors(field)) > 0
}

// ToMap converts validation errors to a map of field -> error message.
func (ve *ValidationErrors) ToMap() map[string]string {
	errorMap := make(map[string]string, len(ve.Errors))
	for _, err := range ve.Errors {
		errorMap[err.Field] = err.Message
	}
	return errorMap
}

// RequiredFieldError builds the error for an absent value.
func RequiredFieldError(field string) ValidationError {
	return ValidationError{
		Field:   field,
		Rule:    "required",
		Message: "field is required",
	}
}

// InvalidFormatError builds the error for a value that does not parse.
func InvalidFormatError(field, rule, expectedFormat string, value any) ValidationError {
	return ValidationError{
		Field:   field,
		Rule:    rule,
		Message: fmt.Sprintf("invalid format, expected %s", expectedFormat),
		Value:   value,
		Params:  map[string]any{"format": expectedFormat},
	}
}

// StringLengthError builds the error for a string outside [min, max] characters.
func StringLengthError(field string, minLen, maxLen, actualLen int) ValidationError {
	return ValidationError{
		Field:   field,
		Rule:    "length",
		Message: fmt.Sprintf("length must be between %d and %d characters, got %d", minLen, maxLen, actualLen),
		Value:   actualLen,
		Params:  map[string]any{"min": minLen, "max": maxLen},
	}
}

// InvalidChoiceError builds the error for a value outside an enumeration.
func InvalidChoiceError(field string, choices []string, value any) ValidationError {
	return ValidationError{
		Field:   field,
		Rule:    "oneof",
		Message: fmt.Sprintf("must be one of [%s]", strings.Join(choices, ", ")),
		Value:   value,
		Params:  map[string]any{"choices": choices},
	}
}

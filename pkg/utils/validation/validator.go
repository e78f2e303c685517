package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// Validator wraps go-playground/validator so that failures come back as
// *ValidationErrors keyed by JSON field name.
type Validator struct {
	validate *validator.Validate
}

// New creates a validator with the "runelen=min:max" rule registered.
func New() *Validator {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("runelen", validateRuneLen)

	return &Validator{validate: v}
}

// Struct validates s and returns nil or a *ValidationErrors listing every
// failing field.
func (v *Validator) Struct(s any) *ValidationErrors {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	out := NewValidationErrors()
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		out.Add(ValidationError{Field: "", Rule: "invalid", Message: err.Error()})
		return out
	}

	for _, fe := range fieldErrs {
		out.Add(translate(fe))
	}
	return out
}

func translate(fe validator.FieldError) ValidationError {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return RequiredFieldError(field)
	case "runelen":
		minLen, maxLen, _ := parseRange(fe.Param())
		actual := 0
		if s, ok := fe.Value().(string); ok {
			actual = utf8.RuneCountInString(s)
		}
		return StringLengthError(field, minLen, maxLen, actual)
	case "oneof":
		return InvalidChoiceError(field, strings.Fields(fe.Param()), fe.Value())
	default:
		return ValidationError{
			Field:   field,
			Rule:    fe.Tag(),
			Message: fmt.Sprintf("failed on the '%s' rule", fe.Tag()),
			Value:   fe.Value(),
			Params:  map[string]any{"param": fe.Param()},
		}
	}
}

// validateRuneLen checks that a string has between min and max characters,
// counted as runes. Param format: "min:max".
func validateRuneLen(fl validator.FieldLevel) bool {
	minLen, maxLen, err := parseRange(fl.Param())
	if err != nil {
		return false
	}
	field := fl.Field()
	if field.Kind() != reflect.String {
		return false
	}
	n := utf8.RuneCountInString(field.String())
	return n >= minLen && n <= maxLen
}

func parseRange(param string) (int, int, error) {
	lo, hi, ok := strings.Cut(param, ":")
	if !ok {
		return 0, 0, fmt.Errorf("range %q: want min:max", param)
	}
	minLen, err := strconv.Atoi(lo)
	if err != nil {
		return 0, 0, err
	}
	maxLen, err := strconv.Atoi(hi)
	if err != nil {
		return 0, 0, err
	}
	return minLen, maxLen, nil
}

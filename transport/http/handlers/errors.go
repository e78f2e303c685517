package handlers

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/kart-io/notifyrelay/pkg/errors"
	"github.com/kart-io/notifyrelay/pkg/logger"
	"github.com/kart-io/notifyrelay/pkg/utils/validation"
)

// ErrorBody is the JSON form of a failed request.
type ErrorBody struct {
	Code    string                       `json:"code,omitempty"`
	Message string                       `json:"message"`
	Partial bool                         `json:"partial,omitempty"`
	Fields  []validation.ValidationError `json:"fields,omitempty"`
}

func newErrorBody(err error) *ErrorBody {
	body := &ErrorBody{Message: err.Error()}
	if ne, ok := errors.As(err); ok {
		body.Code = ne.Code.String()
		body.Partial = ne.Partial
	}
	var verrs *validation.ValidationErrors
	if stderrors.As(err, &verrs) {
		body.Fields = verrs.Errors
	}
	return body
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.IsPartial(err):
		return http.StatusMultiStatus
	case errors.IsValidation(err):
		return http.StatusUnprocessableEntity
	case errors.IsProtocol(err):
		return http.StatusBadRequest
	case errors.IsConfiguration(err):
		return http.StatusServiceUnavailable
	case errors.IsDurable(err), errors.IsRealtime(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, log logger.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Failed to encode response", "status", status, "error", err)
	}
}

func writeError(w http.ResponseWriter, log logger.Logger, err error) {
	writeJSON(w, log, statusFor(err), map[string]any{"error": newErrorBody(err)})
}

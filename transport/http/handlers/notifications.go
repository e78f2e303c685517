// Package handlers implements the notifyrelay HTTP endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/kart-io/notifyrelay/pkg/dispatcher"
	"github.com/kart-io/notifyrelay/pkg/errors"
	"github.com/kart-io/notifyrelay/pkg/logger"
)

// maxRequestBytes bounds a send request body.
const maxRequestBytes = 64 << 10

// Dispatcher runs a notification through the delivery stages.
type Dispatcher interface {
	Dispatch(ctx context.Context, recipientID, message string) (*dispatcher.Receipt, error)
}

// NotificationHandler handles notification sending
type NotificationHandler struct {
	dispatcher Dispatcher
	logger     logger.Logger
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(d Dispatcher, l logger.Logger) *NotificationHandler {
	return &NotificationHandler{dispatcher: d, logger: logger.OrDiscard(l)}
}

// SendRequest represents a send request
type SendRequest struct {
	RecipientID string `json:"recipientId"`
	Message     string `json:"message"`
}

// SendResponse represents a send response. Error is set for every outcome
// except full delivery.
type SendResponse struct {
	Receipt *dispatcher.Receipt `json:"receipt,omitempty"`
	Error   *ErrorBody          `json:"error,omitempty"`
}

// Send handles POST /api/notifications.
//
// 201 full delivery, 207 durable delivered but realtime failed, 422 invalid
// notification, 502 durable delivery failed.
func (h *NotificationHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, h.logger, errors.Wrap(err, errors.ErrInvalidFrame, "Invalid message format"))
		return
	}

	receipt, err := h.dispatcher.Dispatch(r.Context(), req.RecipientID, req.Message)
	if err != nil {
		writeJSON(w, h.logger, statusFor(err), SendResponse{Receipt: receipt, Error: newErrorBody(err)})
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, SendResponse{Receipt: receipt})
}

package realtime

import "encoding/json"

// FrameType identifies a realtime frame.
type FrameType string

const (
	FrameConnectionAck FrameType = "connection_ack"
	FrameBroadcast     FrameType = "broadcast"
	FrameDirect        FrameType = "direct"
	FrameError         FrameType = "error"
)

// Error frame texts sent back to clients.
const (
	MsgInvalidFormat        = "Invalid message format"
	MsgInvalidType          = "Invalid message type"
	MsgRecipientUnavailable = "Recipient unavailable"
	MsgMissingRecipient     = "Missing recipientId"
)

// InboundFrame is a client to server frame.
type InboundFrame struct {
	Type         FrameType       `json:"type"`
	Notification json.RawMessage `json:"notification,omitempty"`
	RecipientID  string          `json:"recipientId,omitempty"`
	Persist      bool            `json:"persist,omitempty"`
}

// AckFrame is sent once to every new connection.
type AckFrame struct {
	Type     FrameType `json:"type"`
	ClientID string    `json:"clientId"`
}

// ErrorFrame reports a rejected inbound frame to its sender.
type ErrorFrame struct {
	Type  FrameType `json:"type"`
	Error string    `json:"error"`
}

// ParseFrame decodes an inbound frame.
func ParseFrame(data []byte) (*InboundFrame, error) {
	var f InboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

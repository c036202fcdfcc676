// Package protocol defines the wire format for the DataLens WebSocket protocol.
// This package is importable by browser clients and test harnesses.
package protocol

import (
	"encoding/json"
	"time"
)

// Message types exchanged over the WebSocket.
const (
	// Inbound
	TypeQuery        = "QUERY"
	TypeQueryLegacy  = "user_query" // frontend compatibility
	TypeQueryLegacy2 = "USER_QUERY" // frontend compatibility
	TypePing         = "PING"
	TypeClearSession = "CLEAR_SESSION"

	// Outbound
	TypeResponse     = "RESPONSE"
	TypeError        = "ERROR"
	TypeStatusUpdate = "STATUS_UPDATE"
	TypePong         = "PONG"
)

// Envelope is the outer structure of every WebSocket message.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"` // legacy alias for payload
	Timestamp string          `json:"timestamp,omitempty"`
	MessageID string          `json:"message_id,omitempty"`
}

// QueryPayload is the payload of a QUERY message.
type QueryPayload struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

// ClearSessionPayload is the payload of a CLEAR_SESSION message.
type ClearSessionPayload struct {
	SessionID string `json:"session_id"`
}

// TurnRecord is the structured result of one agent turn, sent as the
// payload of a RESPONSE message. Field names are stable API.
type TurnRecord struct {
	Type          string           `json:"type"` // "text", "data", "visualization", "error"
	Response      string           `json:"response"`
	Reasoning     string           `json:"reasoning"`
	SQLQuery      string           `json:"sql_query,omitempty"`
	Data          []map[string]any `json:"data,omitempty"`
	Visualization map[string]any   `json:"visualization,omitempty"`
	CurrentStep   string           `json:"current_step"`
	GoalAchieved  bool             `json:"goal_achieved"`
}

// Turn record types.
const (
	RecordText          = "text"
	RecordData          = "data"
	RecordVisualization = "visualization"
	RecordError         = "error"
)

// StatusPayload is the payload of a STATUS_UPDATE message.
type StatusPayload struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ErrorPayload is the payload of an ERROR message.
type ErrorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// NewEnvelope builds an outbound envelope with a marshaled payload.
// Marshal errors are impossible for the payload types this package defines,
// so they are swallowed and yield an empty payload.
func NewEnvelope(msgType, messageID string, payload any) Envelope {
	data, _ := json.Marshal(payload)
	return Envelope{
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		MessageID: messageID,
	}
}

// ParseType extracts the message type from raw JSON bytes.
func ParseType(data []byte) (string, error) {
	var raw struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", err
	}
	return raw.Type, nil
}

// IsQueryType reports whether t is one of the accepted query type aliases.
func IsQueryType(t string) bool {
	return t == TypeQuery || t == TypeQueryLegacy || t == TypeQueryLegacy2
}

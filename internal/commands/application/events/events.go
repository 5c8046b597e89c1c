package events

import (
	"encoding/json"
	"errors"
	"strings"
)

// CommandWrite is the only command verb collectors accept.
const CommandWrite = "write"

// ErrMissingRequestID is returned when a result carries no request id.
var ErrMissingRequestID = errors.New("events: missing request_id")

// ControlRequest is published to a collector channel to start a write.
type ControlRequest struct {
	Command   string `json:"command"`
	DeviceID  string `json:"device_id"`
	PointID   string `json:"point_id"`
	Value     string `json:"value"`
	RequestID string `json:"request_id"`
}

// ExecutionResult is published by a collector once a write completed on the
// device, failed, or was handed to an asynchronous protocol.
type ExecutionResult struct {
	RequestID    string `json:"request_id"`
	Success      bool   `json:"success"`
	IsAsync      bool   `json:"is_async"`
	ErrorMessage string `json:"error_message,omitempty"`
	DurationMS   int64  `json:"duration_ms"`
	DeviceID     string `json:"device_id,omitempty"`
	PointID      string `json:"point_id,omitempty"`
}

// Encode returns the JSON form of the request.
func (r ControlRequest) Encode() ([]byte, error) {
	if r.Command == "" {
		r.Command = CommandWrite
	}
	return json.Marshal(r)
}

// DecodeExecutionResult parses a control:result payload. Unknown fields are
// ignored.
func DecodeExecutionResult(payload []byte) (ExecutionResult, error) {
	var result ExecutionResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return ExecutionResult{}, err
	}
	result.RequestID = strings.TrimSpace(result.RequestID)
	if result.RequestID == "" {
		return ExecutionResult{}, ErrMissingRequestID
	}
	if result.DurationMS < 0 {
		result.DurationMS = 0
	}
	return result, nil
}

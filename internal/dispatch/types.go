package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// MessageToolExecute is the envelope type sent to devices.
const MessageToolExecute = "tool_execute"

// ErrUnknownTool is returned when the requested tool is not in the catalog.
var ErrUnknownTool = errors.New("unknown tool")

// ErrorKind classifies dispatch failures.
type ErrorKind string

// Dispatch failure kinds.
const (
	DeliveryFailed ErrorKind = "delivery_failed"
	RateLimited    ErrorKind = "rate_limited"
)

// Error is returned when a validated command could not be handed to the device.
type Error struct {
	Kind        ErrorKind
	DeviceID    string
	Tool        string
	ExecutionID string
	Message     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("dispatch %s to %s: %s", e.Tool, e.DeviceID, e.Message)
}

// Envelope is the command sent to a device.
type Envelope struct {
	Type        string         `json:"type"`
	ExecutionID string         `json:"execution_id"`
	ToolName    string         `json:"tool_name"`
	Parameters  map[string]any `json:"parameters"`
	Timestamp   string         `json:"timestamp"`
}

// Reply is a device's answer to a command. Either id field may carry the
// correlation key.
type Reply struct {
	ExecutionID string `json:"execution_id,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
	Success     bool   `json:"success"`
	Result      any    `json:"result,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ID returns the correlation key of the reply.
func (r Reply) ID() string {
	if id := strings.TrimSpace(r.ExecutionID); id != "" {
		return id
	}
	return strings.TrimSpace(r.RequestID)
}

// AuditLog records executions.
type AuditLog interface {
	CreateExecution(ctx context.Context, deviceID, toolName string, params map[string]any) (string, error)
	UpdateExecutionResult(ctx context.Context, executionID string, success bool, result any, errMsg string) error
	RecordRejected(ctx context.Context, deviceID, toolName string, params map[string]any, reason string) (string, error)
}

// Sender delivers an envelope to a connected device. It reports false when
// the device is not reachable.
type Sender interface {
	Send(ctx context.Context, deviceID string, envelope Envelope) bool
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, deviceID string, envelope Envelope) bool

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, deviceID string, envelope Envelope) bool {
	return f(ctx, deviceID, envelope)
}

package audit

import (
	"context"
	"log/slog"
)

// Event types.
const (
	EventExecutionCreated   = "execution_created"
	EventExecutionRejected  = "execution_rejected"
	EventExecutionCompleted = "execution_completed"
)

// Event represents an audit entry for one execution transition.
type Event struct {
	// Type describes the event kind.
	Type string
	// ExecutionID links related events.
	ExecutionID string
	// DeviceID is the target device.
	DeviceID string
	// Tool is the tool name.
	Tool string
	// Status is the execution status after the event.
	Status string
	// Reason provides additional context.
	Reason string
	// Parameters are the redacted tool parameters.
	Parameters map[string]any
}

// Logger records audit events.
type Logger interface {
	// Record stores an audit event.
	Record(ctx context.Context, event Event)
}

// StdLogger writes audit events to slog.
type StdLogger struct {
	logger *slog.Logger
}

// New returns a StdLogger.
func New(logger *slog.Logger) *StdLogger {
	return &StdLogger{logger: logger}
}

// Record logs an audit event.
func (l *StdLogger) Record(ctx context.Context, event Event) {
	if l == nil || l.logger == nil {
		return
	}
	attrs := []any{
		"type", event.Type,
		"execution_id", event.ExecutionID,
		"device_id", event.DeviceID,
		"tool", event.Tool,
		"status", event.Status,
	}
	if event.Reason != "" {
		attrs = append(attrs, "reason", event.Reason)
	}
	if event.Parameters != nil {
		attrs = append(attrs, "params", event.Parameters)
	}
	l.logger.InfoContext(ctx, "audit", attrs...)
}

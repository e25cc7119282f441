package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/codex-k8s/orion-orchestrator/internal/security"
	"github.com/codex-k8s/orion-orchestrator/internal/store"
)

// Recorder persists execution records and emits an audit event per transition.
type Recorder struct {
	Store  store.Store
	Events Logger
	Now    func() time.Time
	NewID  func() string
}

// NewRecorder returns a Recorder with uuid ids and wall-clock time.
func NewRecorder(st store.Store, events Logger) *Recorder {
	return &Recorder{Store: st, Events: events, Now: time.Now, NewID: uuid.NewString}
}

// CreateExecution stores a pending execution and returns its id.
func (r *Recorder) CreateExecution(ctx context.Context, deviceID, toolName string, params map[string]any) (string, error) {
	id := r.NewID()
	err := r.Store.CreateExecution(ctx, store.Execution{
		ID:         id,
		DeviceID:   deviceID,
		ToolName:   toolName,
		Parameters: params,
		Status:     store.StatusPending,
		CreatedAt:  r.Now(),
	})
	if err != nil {
		return "", err
	}
	r.record(ctx, Event{
		Type:        EventExecutionCreated,
		ExecutionID: id,
		DeviceID:    deviceID,
		Tool:        toolName,
		Status:      store.StatusPending,
		Parameters:  security.RedactArguments(params),
	})
	return id, nil
}

// UpdateExecutionResult moves a pending execution to its terminal status.
func (r *Recorder) UpdateExecutionResult(ctx context.Context, executionID string, success bool, result any, errMsg string) error {
	err := r.Store.FinishExecution(ctx, executionID, store.Outcome{
		Success: success,
		Result:  result,
		Error:   errMsg,
		At:      r.Now(),
	})
	if err != nil {
		return err
	}
	status := store.StatusFailed
	if success {
		status = store.StatusSuccess
	}
	r.record(ctx, Event{
		Type:        EventExecutionCompleted,
		ExecutionID: executionID,
		Status:      status,
		Reason:      errMsg,
	})
	return nil
}

// RecordRejected stores an execution that was refused before dispatch.
func (r *Recorder) RecordRejected(ctx context.Context, deviceID, toolName string, params map[string]any, reason string) (string, error) {
	id := r.NewID()
	now := r.Now()
	err := r.Store.CreateExecution(ctx, store.Execution{
		ID:         id,
		DeviceID:   deviceID,
		ToolName:   toolName,
		Parameters: params,
		Status:     store.StatusPending,
		CreatedAt:  now,
	})
	if err != nil {
		return "", err
	}
	if err := r.Store.FinishExecution(ctx, id, store.Outcome{Error: reason, At: now}); err != nil {
		return "", err
	}
	r.record(ctx, Event{
		Type:        EventExecutionRejected,
		ExecutionID: id,
		DeviceID:    deviceID,
		Tool:        toolName,
		Status:      store.StatusFailed,
		Reason:      reason,
		Parameters:  security.RedactArguments(params),
	})
	return id, nil
}

func (r *Recorder) record(ctx context.Context, event Event) {
	if r.Events != nil {
		r.Events.Record(ctx, event)
	}
}

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codex-k8s/orion-orchestrator/internal/catalog"
	"github.com/codex-k8s/orion-orchestrator/internal/correlate"
	"github.com/codex-k8s/orion-orchestrator/internal/security"
	"github.com/codex-k8s/orion-orchestrator/internal/store"
	"github.com/codex-k8s/orion-orchestrator/internal/validate"
)

// Dispatcher validates tool calls and hands them to devices.
type Dispatcher struct {
	catalog    *catalog.Catalog
	validator  *validate.Validator
	audit      AuditLog
	sender     Sender
	correlator *correlate.Correlator
	limiter    *Limiter
	logger     *slog.Logger
	now        func() time.Time

	mu       sync.Mutex
	awaiting map[string]struct{}
}

// Options holds optional dispatcher collaborators.
type Options struct {
	// Limiter rate limits dispatches per device. Nil disables limiting.
	Limiter *Limiter
	// Logger is used for structured logging.
	Logger *slog.Logger
	// Now overrides the envelope clock.
	Now func() time.Time
}

// New builds a Dispatcher.
func New(cat *catalog.Catalog, validator *validate.Validator, audit AuditLog, sender Sender, correlator *correlate.Correlator, opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		catalog:    cat,
		validator:  validator,
		audit:      audit,
		sender:     sender,
		correlator: correlator,
		limiter:    opts.Limiter,
		logger:     logger.With("component", "dispatch"),
		now:        now,
		awaiting:   make(map[string]struct{}),
	}
}

// Dispatch sends a tool call without waiting for its result.
func (d *Dispatcher) Dispatch(ctx context.Context, deviceID, toolName string, raw map[string]any) (string, error) {
	id, _, err := d.dispatch(ctx, deviceID, toolName, raw, false)
	return id, err
}

// DispatchAwaitable sends a tool call and returns a waiter registered before
// the envelope leaves, so an immediate reply cannot be missed. The caller
// must Await the waiter; Await owns the execution record from then on.
func (d *Dispatcher) DispatchAwaitable(ctx context.Context, deviceID, toolName string, raw map[string]any) (*correlate.Waiter, error) {
	_, w, err := d.dispatch(ctx, deviceID, toolName, raw, true)
	return w, err
}

func (d *Dispatcher) dispatch(ctx context.Context, deviceID, toolName string, raw map[string]any, await bool) (string, *correlate.Waiter, error) {
	if ctx.Err() != nil {
		return "", nil, context.Cause(ctx)
	}
	tool, ok := d.catalog.Get(toolName)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownTool, toolName)
		d.reject(ctx, deviceID, toolName, raw, err)
		return "", nil, err
	}

	if !d.limiter.Allow(deviceID) {
		err := &Error{Kind: RateLimited, DeviceID: deviceID, Tool: tool.Name, Message: "rate limit exceeded"}
		d.reject(ctx, deviceID, tool.Name, raw, err)
		return "", nil, err
	}

	params, err := d.validator.Validate(ctx, deviceID, tool, raw)
	if err != nil {
		d.reject(ctx, deviceID, tool.Name, raw, err)
		return "", nil, err
	}

	id, err := d.audit.CreateExecution(ctx, deviceID, tool.Name, params)
	if err != nil {
		return "", nil, fmt.Errorf("create execution: %w", err)
	}

	var waiter *correlate.Waiter
	if await {
		waiter, err = d.correlator.Register(id)
		if err != nil {
			d.finish(ctx, id, false, nil, err.Error())
			return "", nil, fmt.Errorf("register waiter: %w", err)
		}
		d.track(id)
	}

	envelope := Envelope{
		Type:        MessageToolExecute,
		ExecutionID: id,
		ToolName:    tool.Name,
		Parameters:  params,
		Timestamp:   d.now().UTC().Format(time.RFC3339Nano),
	}
	if ctx.Err() != nil {
		d.abandon(id, waiter)
		d.finish(context.WithoutCancel(ctx), id, false, nil, "cancelled")
		return "", nil, context.Cause(ctx)
	}
	if !d.sender.Send(ctx, deviceID, envelope) {
		d.abandon(id, waiter)
		dispatchErr := &Error{Kind: DeliveryFailed, DeviceID: deviceID, Tool: tool.Name, ExecutionID: id, Message: "device is not connected"}
		d.finish(ctx, id, false, nil, dispatchErr.Error())
		d.logger.Warn("tool delivery failed", "device_id", deviceID, "tool", tool.Name, "execution_id", id)
		return "", nil, dispatchErr
	}

	d.logger.Info("tool dispatched",
		"device_id", deviceID,
		"tool", tool.Name,
		"execution_id", id,
		"dangerous", tool.Dangerous,
		"params", security.RedactArguments(params),
	)
	return id, waiter, nil
}

// reject records a refused call so every attempt leaves an execution record.
func (d *Dispatcher) reject(ctx context.Context, deviceID, toolName string, raw map[string]any, cause error) {
	d.logger.Info("tool call rejected", "device_id", deviceID, "tool", toolName, "error", cause)
	if _, err := d.audit.RecordRejected(ctx, deviceID, toolName, raw, cause.Error()); err != nil {
		d.logger.Error("record rejected execution failed", "device_id", deviceID, "tool", toolName, "error", err)
	}
}

func (d *Dispatcher) track(id string) {
	d.mu.Lock()
	d.awaiting[id] = struct{}{}
	d.mu.Unlock()
}

func (d *Dispatcher) untrack(id string) {
	d.mu.Lock()
	delete(d.awaiting, id)
	d.mu.Unlock()
}

func (d *Dispatcher) awaited(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.awaiting[id]
	return ok
}

// abandon drops the waiter of a call that never left.
func (d *Dispatcher) abandon(id string, waiter *correlate.Waiter) {
	if waiter == nil {
		return
	}
	d.correlator.Cancel(id)
	d.untrack(id)
}

func (d *Dispatcher) finish(ctx context.Context, id string, success bool, result any, errMsg string) {
	err := d.audit.UpdateExecutionResult(ctx, id, success, result, errMsg)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrExecutionFinalized):
		d.logger.Debug("execution already finalized", "execution_id", id)
	default:
		d.logger.Error("update execution failed", "execution_id", id, "error", err)
	}
}

// Resolve applies a device reply. A reply to an awaited execution is handed
// to its waiter and the waiter's outcome is recorded by Await, so a reply that
// loses the race against a timeout cannot overwrite it. Other replies finalize
// the record directly. It reports whether a waiter received the result.
func (d *Dispatcher) Resolve(ctx context.Context, reply Reply) bool {
	id := reply.ID()
	if id == "" {
		d.logger.Warn("tool result without execution id")
		return false
	}
	res := correlate.Result{
		Success: reply.Success,
		Result:  reply.Result,
		Error:   reply.Error,
	}
	if d.correlator.Deliver(id, res) {
		d.finish(ctx, id, res.Success, res.Result, res.Error)
		return true
	}
	if d.awaited(id) {
		d.logger.Info("tool result arrived after its wait ended", "execution_id", id)
		return false
	}
	d.logger.Debug("tool result had no waiter", "execution_id", id)
	d.finish(ctx, id, res.Success, res.Result, res.Error)
	return false
}

// Await waits for the waiter's result and records it. A synthesized timeout
// marks the execution failed; a cancelled wait marks it failed as cancelled.
func (d *Dispatcher) Await(ctx context.Context, w *correlate.Waiter, timeout time.Duration) (correlate.Result, error) {
	defer d.untrack(w.ID())
	res, err := w.Wait(ctx, timeout)
	if err != nil {
		d.finish(context.WithoutCancel(ctx), w.ID(), false, nil, "cancelled")
		return res, err
	}
	if res.TimedOut {
		d.logger.Warn("tool result timed out", "execution_id", w.ID(), "timeout", timeout)
	}
	d.finish(ctx, w.ID(), res.Success, res.Result, res.Error)
	return res, nil
}

// Catalog returns the tool catalog used for lookups.
func (d *Dispatcher) Catalog() *catalog.Catalog {
	return d.catalog
}

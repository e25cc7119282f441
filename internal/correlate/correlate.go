package correlate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/codex-k8s/orion-orchestrator/internal/maputil"
)

// TimeoutError is the error text of a synthesized timeout result.
const TimeoutError = "timeout"

// ErrAlreadyPending is returned when an execution id already has a waiter.
var ErrAlreadyPending = errors.New("execution already pending")

// Result is the terminal outcome of one execution.
type Result struct {
	Success  bool
	Result   any
	Error    string
	TimedOut bool
}

type pendingExecution struct {
	ch chan Result
}

// Correlator matches asynchronous device replies to waiting callers.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]*pendingExecution
}

// New creates an empty correlator.
func New() *Correlator {
	return &Correlator{pending: make(map[string]*pendingExecution)}
}

// Waiter is a registration for one execution id.
type Waiter struct {
	id string
	ch <-chan Result
	c  *Correlator
}

// ID returns the execution id the waiter is registered for.
func (w *Waiter) ID() string {
	return w.id
}

// Register allocates a waiter for executionID.
func (c *Correlator) Register(executionID string) (*Waiter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.pending[executionID]; exists {
		return nil, ErrAlreadyPending
	}
	ch := make(chan Result, 1)
	c.pending[executionID] = &pendingExecution{ch: ch}
	return &Waiter{id: executionID, ch: ch, c: c}, nil
}

// Deliver hands res to the waiter for executionID. It reports false when no
// waiter is registered, which covers fire-and-forget dispatches and replies
// that arrive after a timeout.
func (c *Correlator) Deliver(executionID string, res Result) bool {
	entry, ok := maputil.Pop(&c.mu, c.pending, executionID)
	if !ok {
		return false
	}
	entry.ch <- res
	close(entry.ch)
	return true
}

// Cancel removes a pending registration without a result.
func (c *Correlator) Cancel(executionID string) {
	entry, ok := maputil.Pop(&c.mu, c.pending, executionID)
	if ok {
		close(entry.ch)
	}
}

// Pending returns the number of outstanding registrations.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Wait blocks until a result is delivered, timeout elapses or ctx is done.
// On timeout it returns a synthesized failure with TimedOut set. Whichever
// side removes the registration first owns the resolution, so the caller
// observes exactly one outcome.
func (w *Waiter) Wait(ctx context.Context, timeout time.Duration) (Result, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res, ok := <-w.ch:
		if !ok {
			return Result{}, context.Canceled
		}
		return res, nil
	case <-timer.C:
		if _, popped := maputil.Pop(&w.c.mu, w.c.pending, w.id); popped {
			return Result{Success: false, Error: TimeoutError, TimedOut: true}, nil
		}
		return w.drain()
	case <-ctx.Done():
		if _, popped := maputil.Pop(&w.c.mu, w.c.pending, w.id); popped {
			return Result{}, ctx.Err()
		}
		return w.drain()
	}
}

// drain reads a result that a concurrent Deliver already owns.
func (w *Waiter) drain() (Result, error) {
	res, ok := <-w.ch
	if !ok {
		return Result{}, context.Canceled
	}
	return res, nil
}

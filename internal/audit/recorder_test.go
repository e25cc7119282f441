package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/orion-orchestrator/internal/store"
)

type captureLogger struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureLogger) Record(_ context.Context, e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func newTestRecorder() (*Recorder, *store.Memory, *captureLogger) {
	st := store.NewMemory()
	events := &captureLogger{}
	r := NewRecorder(st, events)
	r.Now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	n := 0
	r.NewID = func() string {
		n++
		return []string{"exec-a", "exec-b", "exec-c"}[n-1]
	}
	return r, st, events
}

func TestRecorderLifecycle(t *testing.T) {
	r, st, events := newTestRecorder()
	ctx := context.Background()

	id, err := r.CreateExecution(ctx, "dev", "write_text_file", map[string]any{"path": "/home/a", "api_key": "s3cr3t"})
	require.NoError(t, err)
	assert.Equal(t, "exec-a", id)

	e, err := st.GetExecution(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, e.Status)
	assert.Equal(t, "s3cr3t", e.Parameters["api_key"])

	require.NoError(t, r.UpdateExecutionResult(ctx, id, true, "ok", ""))
	require.ErrorIs(t, r.UpdateExecutionResult(ctx, id, false, nil, "timeout"), store.ErrExecutionFinalized)

	require.Len(t, events.events, 2)
	assert.Equal(t, EventExecutionCreated, events.events[0].Type)
	assert.Equal(t, "***", events.events[0].Parameters["api_key"])
	assert.Equal(t, EventExecutionCompleted, events.events[1].Type)
	assert.Equal(t, store.StatusSuccess, events.events[1].Status)
}

func TestRecordRejected(t *testing.T) {
	r, st, events := newTestRecorder()
	ctx := context.Background()

	id, err := r.RecordRejected(ctx, "dev", "delete_file", map[string]any{"path": "/etc"}, "path /etc is not allowed")
	require.NoError(t, err)

	e, err := st.GetExecution(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, e.Status)
	assert.Equal(t, "path /etc is not allowed", e.Error)
	require.Len(t, events.events, 1)
	assert.Equal(t, EventExecutionRejected, events.events[0].Type)
}

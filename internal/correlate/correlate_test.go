package correlate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliverBeforeTimeout(t *testing.T) {
	c := New()
	w, err := c.Register("exec-1")
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		assert.True(t, c.Deliver("exec-1", Result{Success: true, Result: map[string]any{"ok": true}}))
	}()

	res, err := w.Wait(context.Background(), time.Second)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.TimedOut)
	assert.Equal(t, map[string]any{"ok": true}, res.Result)

	assert.False(t, c.Deliver("exec-1", Result{Success: false, Error: "late"}))
	assert.Equal(t, 0, c.Pending())
}

func TestDeliverBeforeWait(t *testing.T) {
	c := New()
	w, err := c.Register("exec-1")
	require.NoError(t, err)
	require.True(t, c.Deliver("exec-1", Result{Success: true}))

	res, err := w.Wait(context.Background(), time.Millisecond)
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestTimeoutSynthesizesFailure(t *testing.T) {
	c := New()
	w, err := c.Register("exec-2")
	require.NoError(t, err)

	res, err := w.Wait(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.TimedOut)
	assert.Equal(t, TimeoutError, res.Error)

	assert.False(t, c.Deliver("exec-2", Result{Success: true}))
	assert.Equal(t, 0, c.Pending())
}

func TestDeliverWithoutWaiterIsNoop(t *testing.T) {
	c := New()
	assert.False(t, c.Deliver("unknown", Result{Success: true}))
}

func TestRegisterTwiceFails(t *testing.T) {
	c := New()
	_, err := c.Register("exec-3")
	require.NoError(t, err)
	_, err = c.Register("exec-3")
	require.ErrorIs(t, err, ErrAlreadyPending)
}

func TestContextCancelRevokesRegistration(t *testing.T) {
	c := New()
	w, err := c.Register("exec-4")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = w.Wait(ctx, time.Second)
	require.ErrorIs(t, err, context.Canceled)

	assert.False(t, c.Deliver("exec-4", Result{Success: true}))
	assert.Equal(t, 0, c.Pending())
}

func TestCancelUnblocksWaiter(t *testing.T) {
	c := New()
	w, err := c.Register("exec-5")
	require.NoError(t, err)
	c.Cancel("exec-5")

	_, err = w.Wait(context.Background(), time.Second)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRaceBetweenDeliverAndTimeoutResolvesOnce(t *testing.T) {
	for i := 0; i < 200; i++ {
		c := New()
		w, err := c.Register("exec")
		require.NoError(t, err)

		var wg sync.WaitGroup
		var delivered bool
		wg.Add(1)
		go func() {
			defer wg.Done()
			delivered = c.Deliver("exec", Result{Success: true})
		}()

		res, err := w.Wait(context.Background(), time.Microsecond)
		wg.Wait()
		require.NoError(t, err)
		if delivered {
			assert.True(t, res.Success)
		} else {
			assert.True(t, res.TimedOut)
		}
	}
}

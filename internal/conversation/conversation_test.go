package conversation

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/orion-orchestrator/internal/llm"
)

func user(s string) llm.Message      { return llm.Message{Role: llm.RoleUser, Content: s} }
func assistant(s string) llm.Message { return llm.Message{Role: llm.RoleAssistant, Content: s} }

func TestCapKeepsSystemPrompt(t *testing.T) {
	msgs := []llm.Message{{Role: llm.RoleSystem, Content: "sys"}, user("1"), assistant("2"), user("3"), assistant("4")}

	got := Cap(msgs, 3)
	assert.Equal(t, []llm.Message{{Role: llm.RoleSystem, Content: "sys"}, user("3"), assistant("4")}, got)
	assert.Equal(t, msgs, Cap(msgs, 10))
	assert.Equal(t, msgs, Cap(msgs, 0))
	assert.Equal(t, msgs[:1], Cap(msgs, 1))
	assert.Equal(t, []llm.Message{assistant("2"), user("3"), assistant("4")}, Cap(msgs[1:], 3))
}

func exerciseStore(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()
	id := "s-" + uuid.NewString()

	history, err := st.History(ctx, id, "sys-v1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, llm.RoleSystem, history[0].Role)

	for i := 0; i < 6; i++ {
		require.NoError(t, st.Append(ctx, id, user(fmt.Sprintf("q%d", i)), assistant(fmt.Sprintf("a%d", i))))
	}

	history, err = st.History(ctx, id, "sys-v2")
	require.NoError(t, err)
	require.Len(t, history, 5)
	assert.Equal(t, llm.Message{Role: llm.RoleSystem, Content: "sys-v2"}, history[0])
	assert.Equal(t, []llm.Message{user("q4"), assistant("a4"), user("q5"), assistant("a5")}, history[1:])

	require.NoError(t, st.Reset(ctx, id))
	history, err = st.History(ctx, id, "sys")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory(time.Hour, 10, 5))
}

func TestMemoryStoreExpiryAndEviction(t *testing.T) {
	ctx := context.Background()
	st := NewMemory(time.Minute, 2, 5)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return now }

	require.NoError(t, st.Append(ctx, "a", user("a")))
	require.NoError(t, st.Append(ctx, "b", user("b")))
	require.NoError(t, st.Append(ctx, "c", user("c")))
	assert.Equal(t, 2, st.Len())

	history, err := st.History(ctx, "a", "sys")
	require.NoError(t, err)
	assert.Len(t, history, 1, "least recently used session is evicted")

	now = now.Add(2 * time.Minute)
	removed, err := st.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, st.Len())
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("ORION_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ORION_TEST_REDIS_ADDR not set")
	}
	st, err := NewRedis(context.Background(), RedisOptions{Addr: addr, TTL: time.Minute, Limit: 5})
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	exerciseStore(t, st)
	removed, err := st.Prune(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
}

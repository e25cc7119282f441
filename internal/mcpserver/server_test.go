package mcpserver

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/orion-orchestrator/configs"
	"github.com/codex-k8s/orion-orchestrator/internal/agent"
	"github.com/codex-k8s/orion-orchestrator/internal/audit"
	"github.com/codex-k8s/orion-orchestrator/internal/catalog"
	"github.com/codex-k8s/orion-orchestrator/internal/correlate"
	"github.com/codex-k8s/orion-orchestrator/internal/dispatch"
	"github.com/codex-k8s/orion-orchestrator/internal/dsl"
	"github.com/codex-k8s/orion-orchestrator/internal/protocol"
	"github.com/codex-k8s/orion-orchestrator/internal/store"
	"github.com/codex-k8s/orion-orchestrator/internal/validate"
)

type stubAgent struct {
	cat    *catalog.Catalog
	answer func(req agent.Request) (agent.Response, error)
}

func (s *stubAgent) HandleLLMRequest(_ context.Context, req agent.Request, _ func(string)) (agent.Response, error) {
	return s.answer(req)
}

func (s *stubAgent) GetAvailableTools(ctx context.Context, deviceID string) (agent.ToolList, error) {
	return agent.ListTools(ctx, s.cat, nil, deviceID)
}

func (s *stubAgent) Describe(err error) string {
	return "described: " + err.Error()
}

type fixture struct {
	session *mcp.ClientSession
	st      *store.Memory
	agent   *stubAgent
	// reply decides how the fake device answers; nil leaves calls unanswered.
	reply func(env dispatch.Envelope) *dispatch.Reply
	online atomic.Bool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	raw, err := configs.Load(configs.DefaultTools)
	require.NoError(t, err)
	tools, err := dsl.Load(raw)
	require.NoError(t, err)
	cat := catalog.New()
	require.NoError(t, tools.Register(cat))

	f := &fixture{st: store.NewMemory(), agent: &stubAgent{cat: cat}}
	f.online.Store(true)
	perms := validate.StaticPermissions{"dev": {Paths: []string{"/home"}, Apps: []string{"notepad"}}}
	var d *dispatch.Dispatcher
	sender := dispatch.SenderFunc(func(_ context.Context, _ string, env dispatch.Envelope) bool {
		if !f.online.Load() {
			return false
		}
		if f.reply != nil {
			if r := f.reply(env); r != nil {
				go d.Resolve(context.Background(), *r)
			}
		}
		return true
	})
	d = dispatch.New(cat, validate.New(perms), audit.NewRecorder(f.st, nil), sender, correlate.New(), dispatch.Options{})

	server, err := Builder{
		Name:        "orion-test",
		Version:     "test",
		Agent:       f.agent,
		Dispatcher:  d,
		ToolTimeout: 200 * time.Millisecond,
	}.Build()
	require.NoError(t, err)

	ctx := context.Background()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "test"}, nil)
	f.session, err = client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.session.Close() })
	return f
}

func (f *fixture) call(t *testing.T, name string, args map[string]any, out any) *mcp.CallToolResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := f.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	if out != nil && !res.IsError {
		data, err := json.Marshal(res.StructuredContent)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, out))
	}
	return res
}

func TestBuildRequiresCollaborators(t *testing.T) {
	_, err := Builder{}.Build()
	require.Error(t, err)
}

func TestListsRegisteredTools(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tools, err := f.session.ListTools(ctx, nil)
	require.NoError(t, err)
	names := make([]string, 0, len(tools.Tools))
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{ToolListDeviceTools, ToolExecuteDeviceTool, ToolAskDeviceAgent}, names)

	var list agent.ToolList
	f.call(t, ToolListDeviceTools, map[string]any{}, &list)
	assert.Equal(t, 13, list.Count)
	assert.Equal(t, []string{"file_system", "application", "device"}, list.Categories)
}

func TestExecuteWaitsForResult(t *testing.T) {
	f := newFixture(t)
	f.reply = func(env dispatch.Envelope) *dispatch.Reply {
		return &dispatch.Reply{RequestID: env.ExecutionID, Success: true, Result: map[string]any{"entries": float64(2)}}
	}

	var resp protocol.ToolResponse
	f.call(t, ToolExecuteDeviceTool, map[string]any{
		"device_id":  "dev",
		"tool_name":  "list_directory",
		"parameters": map[string]any{"path": "/home/alice"},
		"wait":       true,
	}, &resp)
	assert.Equal(t, protocol.StatusSuccess, resp.Status)
	assert.NotEmpty(t, resp.ExecutionID)
	assert.Equal(t, map[string]any{"entries": float64(2)}, resp.Result)

	e, err := f.st.GetExecution(context.Background(), resp.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusSuccess, e.Status)
}

func TestExecuteReportsDeviceFailureAndTimeout(t *testing.T) {
	f := newFixture(t)
	f.reply = func(env dispatch.Envelope) *dispatch.Reply {
		if env.ToolName == "open_app" {
			return nil
		}
		return &dispatch.Reply{ExecutionID: env.ExecutionID, Success: false, Error: "disk full"}
	}

	var resp protocol.ToolResponse
	f.call(t, ToolExecuteDeviceTool, map[string]any{
		"device_id":  "dev",
		"tool_name":  "create_directory",
		"parameters": map[string]any{"path": "/home/new"},
		"wait":       true,
	}, &resp)
	assert.Equal(t, protocol.StatusFailed, resp.Status)
	assert.Equal(t, "disk full", resp.Reason)

	resp = protocol.ToolResponse{}
	f.call(t, ToolExecuteDeviceTool, map[string]any{
		"device_id":  "dev",
		"tool_name":  "open_app",
		"parameters": map[string]any{"app_name": "notepad"},
		"wait":       true,
	}, &resp)
	assert.Equal(t, protocol.StatusFailed, resp.Status)
	assert.Equal(t, correlate.TimeoutError, resp.Reason)
}

func TestExecuteWithoutWait(t *testing.T) {
	f := newFixture(t)

	var resp protocol.ToolResponse
	f.call(t, ToolExecuteDeviceTool, map[string]any{
		"device_id":  "dev",
		"tool_name":  "open_app",
		"parameters": map[string]any{"app_name": "notepad"},
	}, &resp)
	assert.Equal(t, protocol.StatusDispatched, resp.Status)

	e, err := f.st.GetExecution(context.Background(), resp.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, e.Status)
}

func TestExecuteRejectsAndFails(t *testing.T) {
	f := newFixture(t)

	var resp protocol.ToolResponse
	f.call(t, ToolExecuteDeviceTool, map[string]any{
		"device_id":  "dev",
		"tool_name":  "open_app",
		"parameters": map[string]any{"app_name": "regedit"},
	}, &resp)
	assert.Equal(t, protocol.StatusRejected, resp.Status)
	assert.Contains(t, resp.Reason, "regedit")

	resp = protocol.ToolResponse{}
	f.call(t, ToolExecuteDeviceTool, map[string]any{"device_id": "dev", "tool_name": "format_disk"}, &resp)
	assert.Equal(t, protocol.StatusRejected, resp.Status)
	assert.Contains(t, resp.Reason, "format_disk")

	f.online.Store(false)
	resp = protocol.ToolResponse{}
	f.call(t, ToolExecuteDeviceTool, map[string]any{
		"device_id":  "dev",
		"tool_name":  "open_app",
		"parameters": map[string]any{"app_name": "notepad"},
	}, &resp)
	assert.Equal(t, protocol.StatusFailed, resp.Status)
	assert.NotEmpty(t, resp.ExecutionID)
}

func TestAskDeviceAgent(t *testing.T) {
	f := newFixture(t)
	f.agent.answer = func(req agent.Request) (agent.Response, error) {
		if req.Prompt == "broken" {
			return agent.Response{}, agent.ErrNoDevice
		}
		assert.Equal(t, "dev", req.DeviceID)
		assert.Equal(t, "s1", req.SessionID)
		assert.False(t, req.Stream)
		return agent.Response{Text: "done", Outcome: agent.OutcomeFinal, Iterations: 2}, nil
	}

	var resp protocol.AgentResponse
	f.call(t, ToolAskDeviceAgent, map[string]any{"prompt": "list my files", "device_id": "dev", "session_id": "s1"}, &resp)
	assert.Equal(t, protocol.AgentResponse{Response: "done", Outcome: "final", Iterations: 2}, resp)

	resp = protocol.AgentResponse{}
	f.call(t, ToolAskDeviceAgent, map[string]any{"prompt": "broken"}, &resp)
	assert.Equal(t, "error", resp.Outcome)
	assert.Equal(t, "described: "+agent.ErrNoDevice.Error(), resp.Response)
}

func TestWaitFor(t *testing.T) {
	b := Builder{ToolTimeout: 3 * time.Second}
	assert.Equal(t, 3*time.Second, b.waitFor(0))
	assert.Equal(t, 7*time.Second, b.waitFor(7))
	assert.Equal(t, MaxWait, b.waitFor(100000))
}

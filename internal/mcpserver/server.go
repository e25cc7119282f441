package mcpserver

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codex-k8s/orion-orchestrator/internal/agent"
	"github.com/codex-k8s/orion-orchestrator/internal/correlate"
	"github.com/codex-k8s/orion-orchestrator/internal/dispatch"
	"github.com/codex-k8s/orion-orchestrator/internal/protocol"
	"github.com/codex-k8s/orion-orchestrator/internal/security"
)

// Tool names exposed over MCP.
const (
	ToolListDeviceTools   = "list_device_tools"
	ToolExecuteDeviceTool = "execute_device_tool"
	ToolAskDeviceAgent    = "ask_device_agent"
)

// MaxWait caps the wait requested by execute_device_tool callers.
const MaxWait = 5 * time.Minute

// Agent answers prompts and lists tools.
type Agent interface {
	HandleLLMRequest(ctx context.Context, req agent.Request, onChunk func(string)) (agent.Response, error)
	GetAvailableTools(ctx context.Context, deviceID string) (agent.ToolList, error)
	Describe(err error) string
}

// Dispatcher sends tool calls to devices.
type Dispatcher interface {
	Dispatch(ctx context.Context, deviceID, toolName string, raw map[string]any) (string, error)
	DispatchAwaitable(ctx context.Context, deviceID, toolName string, raw map[string]any) (*correlate.Waiter, error)
	Await(ctx context.Context, w *correlate.Waiter, timeout time.Duration) (correlate.Result, error)
}

// ListToolsInput is the input of list_device_tools.
type ListToolsInput struct {
	DeviceID string `json:"device_id,omitempty" jsonschema:"device id; when set, tools the device may not use are omitted"`
}

// ExecuteInput is the input of execute_device_tool.
type ExecuteInput struct {
	DeviceID       string         `json:"device_id" jsonschema:"target device id"`
	ToolName       string         `json:"tool_name" jsonschema:"catalog tool name"`
	Parameters     map[string]any `json:"parameters,omitempty" jsonschema:"tool parameters"`
	Wait           bool           `json:"wait,omitempty" jsonschema:"wait for the device result"`
	TimeoutSeconds int            `json:"timeout_seconds,omitempty" jsonschema:"how long to wait for the result"`
}

// AskInput is the input of ask_device_agent.
type AskInput struct {
	Prompt    string `json:"prompt" jsonschema:"natural-language request"`
	DeviceID  string `json:"device_id,omitempty" jsonschema:"device the agent may act on"`
	SessionID string `json:"session_id,omitempty" jsonschema:"conversation to continue"`
}

// Builder constructs the MCP server.
type Builder struct {
	// Name and Version identify the server.
	Name    string
	Version string
	// Agent serves ask_device_agent and list_device_tools.
	Agent Agent
	// Dispatcher serves execute_device_tool.
	Dispatcher Dispatcher
	// ToolTimeout is the default wait for execute_device_tool.
	ToolTimeout time.Duration
	// Logger is used for structured logging.
	Logger *slog.Logger
}

// Build creates an MCP server exposing the orchestrator.
func (b Builder) Build() (*mcp.Server, error) {
	if b.Agent == nil || b.Dispatcher == nil {
		return nil, errors.New("mcpserver: agent and dispatcher are required")
	}
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b.Logger = logger.With("component", "mcp")
	if b.ToolTimeout <= 0 {
		b.ToolTimeout = agent.DefaultToolTimeout
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    b.Name,
		Version: b.Version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolListDeviceTools,
		Description: "List the device tools known to the orchestrator, grouped by category.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, b.listTools)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolExecuteDeviceTool,
		Description: "Validate and send a tool call to a connected device, optionally waiting for its result.",
		Annotations: &mcp.ToolAnnotations{DestructiveHint: boolPtr(true), OpenWorldHint: boolPtr(true)},
	}, b.execute)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolAskDeviceAgent,
		Description: "Ask the Orion assistant to handle a natural-language request, using device tools when needed.",
		Annotations: &mcp.ToolAnnotations{OpenWorldHint: boolPtr(true)},
	}, b.ask)

	return server, nil
}

func (b Builder) listTools(ctx context.Context, _ *mcp.CallToolRequest, in ListToolsInput) (*mcp.CallToolResult, agent.ToolList, error) {
	list, err := b.Agent.GetAvailableTools(ctx, in.DeviceID)
	if err != nil {
		return nil, agent.ToolList{}, err
	}
	return nil, list, nil
}

func (b Builder) execute(ctx context.Context, _ *mcp.CallToolRequest, in ExecuteInput) (*mcp.CallToolResult, protocol.ToolResponse, error) {
	deviceID := strings.TrimSpace(in.DeviceID)
	params := in.Parameters
	if params == nil {
		params = map[string]any{}
	}
	b.Logger.Info("tool call", "device_id", deviceID, "tool", in.ToolName, "wait", in.Wait, "params", security.RedactArguments(params))

	if !in.Wait {
		id, err := b.Dispatcher.Dispatch(ctx, deviceID, in.ToolName, params)
		if err != nil {
			return nil, rejected(err), nil
		}
		return nil, protocol.ToolResponse{Status: protocol.StatusDispatched, ExecutionID: id}, nil
	}

	w, err := b.Dispatcher.DispatchAwaitable(ctx, deviceID, in.ToolName, params)
	if err != nil {
		return nil, rejected(err), nil
	}
	res, err := b.Dispatcher.Await(ctx, w, b.waitFor(in.TimeoutSeconds))
	if err != nil {
		return nil, protocol.ToolResponse{}, err
	}
	resp := protocol.ToolResponse{ExecutionID: w.ID(), Result: res.Result}
	if res.Success {
		resp.Status = protocol.StatusSuccess
	} else {
		resp.Status = protocol.StatusFailed
		resp.Reason = res.Error
	}
	return nil, resp, nil
}

func (b Builder) ask(ctx context.Context, _ *mcp.CallToolRequest, in AskInput) (*mcp.CallToolResult, protocol.AgentResponse, error) {
	resp, err := b.Agent.HandleLLMRequest(ctx, agent.Request{
		Prompt:    in.Prompt,
		DeviceID:  in.DeviceID,
		SessionID: in.SessionID,
	}, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, protocol.AgentResponse{}, err
		}
		return nil, protocol.AgentResponse{Response: b.Agent.Describe(err), Outcome: "error"}, nil
	}
	return nil, protocol.AgentResponse{
		Response:   resp.Text,
		Outcome:    string(resp.Outcome),
		Iterations: resp.Iterations,
	}, nil
}

func (b Builder) waitFor(seconds int) time.Duration {
	if seconds <= 0 {
		return b.ToolTimeout
	}
	return min(time.Duration(seconds)*time.Second, MaxWait)
}

// rejected maps a dispatch error to a response. A device that could not be
// reached is a failure; everything else was refused before sending.
func rejected(err error) protocol.ToolResponse {
	var derr *dispatch.Error
	if errors.As(err, &derr) && derr.Kind == dispatch.DeliveryFailed {
		return protocol.ToolResponse{Status: protocol.StatusFailed, ExecutionID: derr.ExecutionID, Reason: err.Error()}
	}
	return protocol.ToolResponse{Status: protocol.StatusRejected, Reason: err.Error()}
}

func boolPtr(v bool) *bool {
	return &v
}

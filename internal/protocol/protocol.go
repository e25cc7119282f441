package protocol

import (
	"github.com/codex-k8s/orion-orchestrator/internal/agent"
	"github.com/codex-k8s/orion-orchestrator/internal/validate"
)

// Inbound message types sent by devices and clients.
const (
	TypeDeviceRegister  = "device_register"
	TypeDeviceHeartbeat = "device_heartbeat"
	TypeLLMRequest      = "llm_request"
	TypeToolExecute     = "tool_execute"
	TypeToolResult      = "tool_result"
	TypeGetTools        = "get_tools"
)

// Outbound message types.
const (
	TypeDeviceRegistered    = "device_registered"
	TypeHeartbeatAck        = "heartbeat_ack"
	TypeLLMResponseChunk    = "llm_response_chunk"
	TypeLLMResponse         = "llm_response"
	TypeToolExecuteResponse = "tool_execute_response"
	TypeToolsList           = "tools_list"
	TypeError               = "error"
)

// Inbound is any message read from a connection. Only the fields of the
// given Type are meaningful.
type Inbound struct {
	Type string `json:"type"`

	// device_register
	DeviceID  string `json:"device_id"`
	Hostname  string `json:"hostname"`
	OSType    string `json:"os_type"`
	OSVersion string `json:"os_version"`

	// llm_request
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id"`
	Stream    bool   `json:"stream"`

	// tool_execute
	ToolName   string         `json:"tool_name"`
	Parameters map[string]any `json:"parameters"`

	// tool_result
	ExecutionID string `json:"execution_id"`
	RequestID   string `json:"request_id"`
	Success     bool   `json:"success"`
	Result      any    `json:"result"`
	Error       string `json:"error"`
}

// DeviceRegistered acknowledges a registration with the device grant.
type DeviceRegistered struct {
	Type        string         `json:"type"`
	DeviceID    string         `json:"device_id"`
	Permissions validate.Grant `json:"permissions"`
}

// HeartbeatAck acknowledges a heartbeat.
type HeartbeatAck struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// LLMResponseChunk carries streamed model output. The last chunk of a
// response is empty with Complete set.
type LLMResponseChunk struct {
	Type     string `json:"type"`
	Chunk    string `json:"chunk"`
	Complete bool   `json:"complete"`
	// Superseded marks the terminator of a stream cut short by a newer request.
	Superseded bool `json:"superseded,omitempty"`
}

// LLMResponse carries a complete, non-streamed answer.
type LLMResponse struct {
	Type     string `json:"type"`
	Response string `json:"response"`
}

// ToolExecuteResponse answers a device-initiated tool_execute.
type ToolExecuteResponse struct {
	Type        string `json:"type"`
	Success     bool   `json:"success"`
	ExecutionID string `json:"execution_id,omitempty"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ToolsList answers get_tools.
type ToolsList struct {
	Type       string              `json:"type"`
	Tools      []agent.ToolSummary `json:"tools"`
	Count      int                 `json:"count"`
	Categories []string            `json:"categories"`
}

// Error reports a failed request.
type Error struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Tool execution statuses returned to MCP clients.
const (
	StatusSuccess    = "success"
	StatusFailed     = "failed"
	StatusDispatched = "dispatched"
	StatusRejected   = "rejected"
)

// ToolResponse is the fixed JSON response of execute_device_tool.
type ToolResponse struct {
	// Status is success, failed, dispatched or rejected.
	Status string `json:"status"`
	// ExecutionID identifies the execution record, when one was dispatched.
	ExecutionID string `json:"execution_id,omitempty"`
	// Result is the device result payload.
	Result any `json:"result,omitempty"`
	// Reason is a human-readable error.
	Reason string `json:"reason,omitempty"`
}

// AgentResponse is the fixed JSON response of ask_device_agent.
type AgentResponse struct {
	Response   string `json:"response"`
	Outcome    string `json:"outcome"`
	Iterations int    `json:"iterations"`
}

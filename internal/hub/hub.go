package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/codex-k8s/orion-orchestrator/internal/agent"
	"github.com/codex-k8s/orion-orchestrator/internal/dispatch"
	"github.com/codex-k8s/orion-orchestrator/internal/maputil"
	"github.com/codex-k8s/orion-orchestrator/internal/protocol"
	"github.com/codex-k8s/orion-orchestrator/internal/store"
	"github.com/codex-k8s/orion-orchestrator/internal/templates"
	"github.com/codex-k8s/orion-orchestrator/internal/validate"
)

// DefaultWriteTimeout bounds a single frame write.
const DefaultWriteTimeout = 5 * time.Second

// Agent answers user prompts.
type Agent interface {
	HandleLLMRequest(ctx context.Context, req agent.Request, onChunk func(string)) (agent.Response, error)
	GetAvailableTools(ctx context.Context, deviceID string) (agent.ToolList, error)
	Describe(err error) string
}

// Dispatcher sends device-initiated tool calls and applies device replies.
type Dispatcher interface {
	Dispatch(ctx context.Context, deviceID, toolName string, raw map[string]any) (string, error)
	Resolve(ctx context.Context, reply dispatch.Reply) bool
}

// Options holds optional hub settings.
type Options struct {
	// DefaultGrant is given to devices on first registration.
	DefaultGrant validate.Grant
	// Messages localizes user-facing errors.
	Messages templates.Renderer
	// Logger is used for structured logging.
	Logger *slog.Logger
	// WriteTimeout bounds frame writes.
	WriteTimeout time.Duration
	// OriginPatterns lists extra browser origins allowed to connect, in
	// path.Match syntax. Clients that send no Origin header are unaffected.
	OriginPatterns []string
	// Now overrides the clock.
	Now func() time.Time
}

// Hub accepts device WebSocket connections and routes their messages.
type Hub struct {
	store        store.Store
	dispatcher   Dispatcher
	agent        Agent
	defaultGrant validate.Grant
	messages     templates.Renderer
	logger       *slog.Logger
	writeTimeout time.Duration
	origins      []string
	now          func() time.Time

	mu    sync.Mutex
	conns map[string]*conn
}

type conn struct {
	ws *websocket.Conn
	// deviceID is owned by the read loop.
	deviceID string
}

// New builds a Hub.
func New(st store.Store, dispatcher Dispatcher, ag Agent, opts Options) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Hub{
		store:        st,
		dispatcher:   dispatcher,
		agent:        ag,
		defaultGrant: opts.DefaultGrant,
		messages:     opts.Messages,
		logger:       logger.With("component", "hub"),
		writeTimeout: writeTimeout,
		origins:      opts.OriginPatterns,
		now:          now,
		conns:        make(map[string]*conn),
	}
}

// Send implements dispatch.Sender. It reports false when the device is not
// connected or the frame could not be written.
func (h *Hub) Send(ctx context.Context, deviceID string, envelope dispatch.Envelope) bool {
	h.mu.Lock()
	c, ok := h.conns[deviceID]
	h.mu.Unlock()
	if !ok {
		return false
	}
	if err := h.write(ctx, c, envelope); err != nil {
		h.logger.Warn("send to device failed", "device_id", deviceID, "error", err)
		return false
	}
	return true
}

// Connected reports whether a device holds a connection.
func (h *Hub) Connected(deviceID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.conns[deviceID]
	return ok
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}
	c := &conn{ws: ws}

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		wg.Wait()
		h.detach(c)
		_ = ws.CloseNow()
	}()

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				h.logger.Debug("websocket read failed", "device_id", c.deviceID, "error", err)
			}
			return
		}

		var msg protocol.Inbound
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&msg); err != nil {
			h.fail(ctx, c, templates.RenderOr(h.messages, templates.KeyInvalidJSON, nil, "Invalid JSON message"))
			continue
		}
		h.route(ctx, c, &wg, msg)
	}
}

func (h *Hub) route(ctx context.Context, c *conn, wg *sync.WaitGroup, msg protocol.Inbound) {
	switch msg.Type {
	case protocol.TypeDeviceRegister:
		h.register(ctx, c, msg)
	case protocol.TypeDeviceHeartbeat:
		h.heartbeat(ctx, c)
	case protocol.TypeLLMRequest:
		// The agent loop may run for a long time; keep reading meanwhile.
		deviceID := c.deviceID
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.llmRequest(ctx, c, deviceID, msg)
		}()
	case protocol.TypeToolExecute:
		h.toolExecute(ctx, c, msg)
	case protocol.TypeToolResult:
		h.dispatcher.Resolve(ctx, dispatch.Reply{
			ExecutionID: msg.ExecutionID,
			RequestID:   msg.RequestID,
			Success:     msg.Success,
			Result:      msg.Result,
			Error:       msg.Error,
		})
	case protocol.TypeGetTools:
		h.getTools(ctx, c)
	default:
		h.fail(ctx, c, templates.RenderOr(h.messages, templates.KeyUnknownType,
			map[string]any{"Type": msg.Type}, "Unknown message type: "+msg.Type))
	}
}

func (h *Hub) register(ctx context.Context, c *conn, msg protocol.Inbound) {
	deviceID := strings.TrimSpace(msg.DeviceID)
	if deviceID == "" {
		h.fail(ctx, c, "device_id is required")
		return
	}
	now := h.now().UTC()
	saved, err := h.store.RegisterDevice(ctx, store.Device{
		ID:            deviceID,
		Hostname:      msg.Hostname,
		OSType:        msg.OSType,
		OSVersion:     msg.OSVersion,
		Status:        store.DeviceOnline,
		Grant:         h.defaultGrant,
		LastHeartbeat: now,
		RegisteredAt:  now,
	})
	if err != nil {
		h.logger.Error("register device failed", "device_id", deviceID, "error", err)
		h.fail(ctx, c, "registration failed")
		return
	}

	if c.deviceID != "" && c.deviceID != deviceID {
		h.detach(c)
	}
	c.deviceID = deviceID
	if prev, replaced := maputil.Swap(&h.mu, h.conns, deviceID, c); replaced && prev != c {
		h.logger.Info("device reconnected, closing previous connection", "device_id", deviceID)
		_ = prev.ws.CloseNow()
	}
	h.logger.Info("device registered", "device_id", deviceID, "hostname", msg.Hostname, "os_type", msg.OSType)

	_ = h.write(ctx, c, protocol.DeviceRegistered{
		Type:        protocol.TypeDeviceRegistered,
		DeviceID:    deviceID,
		Permissions: saved.Grant,
	})
}

func (h *Hub) heartbeat(ctx context.Context, c *conn) {
	if c.deviceID == "" {
		h.fail(ctx, c, h.notRegistered())
		return
	}
	now := h.now().UTC()
	if err := h.store.Heartbeat(ctx, c.deviceID, now); err != nil {
		h.logger.Error("heartbeat update failed", "device_id", c.deviceID, "error", err)
	}
	_ = h.write(ctx, c, protocol.HeartbeatAck{Type: protocol.TypeHeartbeatAck, Timestamp: now.Format(time.RFC3339Nano)})
}

func (h *Hub) llmRequest(ctx context.Context, c *conn, deviceID string, msg protocol.Inbound) {
	var onChunk func(string)
	if msg.Stream {
		onChunk = func(chunk string) {
			_ = h.write(ctx, c, protocol.LLMResponseChunk{Type: protocol.TypeLLMResponseChunk, Chunk: chunk})
		}
	}

	resp, err := h.agent.HandleLLMRequest(ctx, agent.Request{
		Prompt:    msg.Prompt,
		DeviceID:  deviceID,
		SessionID: msg.SessionID,
		Stream:    msg.Stream,
	}, onChunk)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, agent.ErrSuperseded) {
			if msg.Stream {
				_ = h.write(ctx, c, protocol.LLMResponseChunk{Type: protocol.TypeLLMResponseChunk, Complete: true, Superseded: true})
			}
			return
		}
		h.fail(ctx, c, h.agent.Describe(err))
		return
	}

	if !msg.Stream {
		_ = h.write(ctx, c, protocol.LLMResponse{Type: protocol.TypeLLMResponse, Response: resp.Text})
		return
	}
	if resp.Outcome != agent.OutcomeFinal {
		// The apology is produced locally and was never streamed.
		_ = h.write(ctx, c, protocol.LLMResponseChunk{Type: protocol.TypeLLMResponseChunk, Chunk: resp.Text})
	}
	_ = h.write(ctx, c, protocol.LLMResponseChunk{Type: protocol.TypeLLMResponseChunk, Complete: true})
}

func (h *Hub) toolExecute(ctx context.Context, c *conn, msg protocol.Inbound) {
	if c.deviceID == "" {
		_ = h.write(ctx, c, protocol.ToolExecuteResponse{
			Type:  protocol.TypeToolExecuteResponse,
			Error: h.notRegistered(),
		})
		return
	}
	id, err := h.dispatcher.Dispatch(ctx, c.deviceID, msg.ToolName, msg.Parameters)
	if err != nil {
		_ = h.write(ctx, c, protocol.ToolExecuteResponse{
			Type:  protocol.TypeToolExecuteResponse,
			Error: err.Error(),
		})
		return
	}
	_ = h.write(ctx, c, protocol.ToolExecuteResponse{
		Type:        protocol.TypeToolExecuteResponse,
		Success:     true,
		ExecutionID: id,
		Message: templates.RenderOr(h.messages, templates.KeyToolAccepted,
			map[string]any{"Tool": msg.ToolName}, fmt.Sprintf("Tool '%s' sent to device", msg.ToolName)),
	})
}

func (h *Hub) getTools(ctx context.Context, c *conn) {
	list, err := h.agent.GetAvailableTools(ctx, c.deviceID)
	if err != nil {
		h.logger.Error("list tools failed", "device_id", c.deviceID, "error", err)
		h.fail(ctx, c, h.agent.Describe(err))
		return
	}
	_ = h.write(ctx, c, protocol.ToolsList{
		Type:       protocol.TypeToolsList,
		Tools:      list.Tools,
		Count:      list.Count,
		Categories: list.Categories,
	})
}

// detach forgets the connection and marks its device offline, unless the
// device has already reconnected elsewhere.
func (h *Hub) detach(c *conn) {
	if c.deviceID == "" {
		return
	}
	if !maputil.CompareAndDelete(&h.mu, h.conns, c.deviceID, c) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.writeTimeout)
	defer cancel()
	if err := h.store.SetDeviceStatus(ctx, c.deviceID, store.DeviceOffline); err != nil && !errors.Is(err, store.ErrNotFound) {
		h.logger.Error("mark device offline failed", "device_id", c.deviceID, "error", err)
	}
	h.logger.Info("device disconnected", "device_id", c.deviceID)
}

func (h *Hub) notRegistered() string {
	return templates.RenderOr(h.messages, templates.KeyNotRegistered, nil, "Device not registered")
}

func (h *Hub) fail(ctx context.Context, c *conn, message string) {
	_ = h.write(ctx, c, protocol.Error{Type: protocol.TypeError, Error: message})
}

func (h *Hub) write(ctx context.Context, c *conn, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	writeCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return c.ws.Write(writeCtx, websocket.MessageText, data)
}

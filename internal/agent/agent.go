package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/codex-k8s/orion-orchestrator/internal/catalog"
	"github.com/codex-k8s/orion-orchestrator/internal/conversation"
	"github.com/codex-k8s/orion-orchestrator/internal/correlate"
	"github.com/codex-k8s/orion-orchestrator/internal/dispatch"
	"github.com/codex-k8s/orion-orchestrator/internal/llm"
	"github.com/codex-k8s/orion-orchestrator/internal/maputil"
	"github.com/codex-k8s/orion-orchestrator/internal/templates"
	"github.com/codex-k8s/orion-orchestrator/internal/validate"
)

// Defaults applied when Config leaves a field zero.
const (
	DefaultMaxIterations = 5
	DefaultToolTimeout   = 10 * time.Second
)

var (
	// ErrNoDevice is returned when the model asks for a tool but the request
	// has no device to run it on.
	ErrNoDevice = errors.New("no device associated with the request")
	// ErrSuperseded is returned by a loop cancelled by a newer request for
	// the same device.
	ErrSuperseded = errors.New("request superseded by a newer request")
	// ErrEmptyPrompt is returned for blank prompts.
	ErrEmptyPrompt = errors.New("prompt is empty")
)

// ToolError ties a terminal request error to the tool the model asked for.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Outcome tells how a request finished.
type Outcome string

// Request outcomes.
const (
	OutcomeFinal         Outcome = "final"
	OutcomeMaxIterations Outcome = "max_iterations"
)

// Request is one user prompt.
type Request struct {
	Prompt    string
	DeviceID  string
	SessionID string
	Stream    bool
}

// Response is the final answer for a request.
type Response struct {
	Text       string
	Outcome    Outcome
	Iterations int
}

// Dispatcher sends tool calls to devices and waits for their results.
type Dispatcher interface {
	DispatchAwaitable(ctx context.Context, deviceID, toolName string, raw map[string]any) (*correlate.Waiter, error)
	Await(ctx context.Context, w *correlate.Waiter, timeout time.Duration) (correlate.Result, error)
}

// Config bounds the work done per request.
type Config struct {
	MaxIterations int
	ToolTimeout   time.Duration
	HistoryLimit  int
}

// Options holds the manager collaborators.
type Options struct {
	Catalog       *catalog.Catalog
	Permissions   validate.Permissions
	Dispatcher    Dispatcher
	LLM           llm.Client
	Conversations conversation.Store
	Messages      templates.Renderer
	Logger        *slog.Logger
	Config        Config
}

// Manager runs agent loops, at most one per device.
type Manager struct {
	catalog       *catalog.Catalog
	perms         validate.Permissions
	dispatcher    Dispatcher
	llm           llm.Client
	conversations conversation.Store
	messages      templates.Renderer
	logger        *slog.Logger
	cfg           Config
	systemPrompt  string

	mu   sync.Mutex
	live map[string]*instance
}

// New builds a Manager and renders the system prompt from the catalog.
func New(opts Options) (*Manager, error) {
	switch {
	case opts.Catalog == nil:
		return nil, errors.New("agent: catalog is nil")
	case opts.Dispatcher == nil:
		return nil, errors.New("agent: dispatcher is nil")
	case opts.LLM == nil:
		return nil, errors.New("agent: llm client is nil")
	case opts.Conversations == nil:
		return nil, errors.New("agent: conversation store is nil")
	}
	cfg := opts.Config
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = DefaultToolTimeout
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = conversation.DefaultLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	prompt, err := BuildSystemPrompt(opts.Catalog, opts.Messages)
	if err != nil {
		return nil, err
	}

	return &Manager{
		catalog:       opts.Catalog,
		perms:         opts.Permissions,
		dispatcher:    opts.Dispatcher,
		llm:           opts.LLM,
		conversations: opts.Conversations,
		messages:      opts.Messages,
		logger:        logger.With("component", "agent"),
		cfg:           cfg,
		systemPrompt:  prompt,
		live:          make(map[string]*instance),
	}, nil
}

// SystemPrompt returns the prompt sent as message[0] of every conversation.
func (m *Manager) SystemPrompt() string {
	return m.systemPrompt
}

// instance is one running loop. Once stopped it may not touch the
// conversation again.
type instance struct {
	cancel  context.CancelCauseFunc
	mu      sync.Mutex
	stopped bool
}

func (i *instance) stop() {
	i.mu.Lock()
	i.stopped = true
	i.mu.Unlock()
	i.cancel(ErrSuperseded)
}

// HandleLLMRequest runs the agent loop for req. A running loop for the same
// device (or session, without a device) is cancelled first. When onChunk is
// non-nil the model output is streamed through it.
func (m *Manager) HandleLLMRequest(ctx context.Context, req Request, onChunk func(string)) (Response, error) {
	req.Prompt = strings.TrimSpace(req.Prompt)
	req.DeviceID = strings.TrimSpace(req.DeviceID)
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.Prompt == "" {
		return Response{}, ErrEmptyPrompt
	}
	if !req.Stream {
		onChunk = nil
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	inst := &instance{cancel: cancel}

	if key := loopKey(req); key != "" {
		if prev, ok := maputil.Swap(&m.mu, m.live, key, inst); ok {
			m.logger.Info("superseding running request", "loop", key)
			prev.stop()
		}
		defer maputil.CompareAndDelete(&m.mu, m.live, key, inst)
	}

	resp, err := m.run(runCtx, inst, req, onChunk)
	if err != nil {
		m.logger.Info("llm request ended with error", "device_id", req.DeviceID, "session_id", req.SessionID, "error", err)
		return Response{}, err
	}
	m.logger.Info("llm request completed",
		"device_id", req.DeviceID,
		"session_id", req.SessionID,
		"outcome", resp.Outcome,
		"iterations", resp.Iterations,
	)
	return resp, nil
}

// Running reports the number of live loops.
func (m *Manager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Describe turns a HandleLLMRequest error into a message for the user.
func (m *Manager) Describe(err error) string {
	var terr *ToolError
	data := map[string]any{}
	if errors.As(err, &terr) {
		data["Tool"] = terr.Tool
	}
	switch {
	case errors.Is(err, ErrNoDevice):
		return templates.RenderOr(m.messages, templates.KeyNoDevice, data, "No device is connected.")
	case errors.Is(err, dispatch.ErrUnknownTool):
		return templates.RenderOr(m.messages, templates.KeyUnknownTool, data, "The requested tool is not available.")
	case errors.Is(err, ErrSuperseded), errors.Is(err, ErrEmptyPrompt):
		return err.Error()
	}
	return templates.RenderOr(m.messages, templates.KeyInternalError, nil, "Something went wrong while processing your request.")
}

func loopKey(req Request) string {
	switch {
	case req.DeviceID != "":
		return "device:" + req.DeviceID
	case req.SessionID != "":
		return "session:" + req.SessionID
	}
	return ""
}

func conversationKey(req Request) string {
	switch {
	case req.SessionID != "":
		return req.SessionID
	case req.DeviceID != "":
		return "device:" + req.DeviceID
	}
	return ""
}

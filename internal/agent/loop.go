package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/codex-k8s/orion-orchestrator/internal/conversation"
	"github.com/codex-k8s/orion-orchestrator/internal/dispatch"
	"github.com/codex-k8s/orion-orchestrator/internal/extract"
	"github.com/codex-k8s/orion-orchestrator/internal/llm"
	"github.com/codex-k8s/orion-orchestrator/internal/security"
	"github.com/codex-k8s/orion-orchestrator/internal/templates"
	"github.com/codex-k8s/orion-orchestrator/internal/validate"
)

const continuationFallback = "Please respond to the user using the tool result above."

func (m *Manager) run(ctx context.Context, inst *instance, req Request, onChunk func(string)) (Response, error) {
	sessionID := conversationKey(req)
	messages := []llm.Message{{Role: llm.RoleSystem, Content: m.systemPrompt}}
	if sessionID != "" {
		history, err := m.conversations.History(ctx, sessionID, m.systemPrompt)
		if err != nil {
			return Response{}, fmt.Errorf("load conversation: %w", err)
		}
		messages = history
	}

	prompt := llm.Message{Role: llm.RoleUser, Content: req.Prompt}
	messages = append(messages, prompt)
	if err := m.commit(ctx, inst, sessionID, prompt); err != nil {
		return Response{}, err
	}

	for iteration := 1; iteration <= m.cfg.MaxIterations; iteration++ {
		if ctx.Err() != nil {
			return Response{}, context.Cause(ctx)
		}

		text, err := m.llm.Chat(ctx, conversation.Cap(messages, m.cfg.HistoryLimit), onChunk)
		if err != nil {
			if ctx.Err() != nil {
				return Response{}, context.Cause(ctx)
			}
			return Response{}, fmt.Errorf("llm chat: %w", err)
		}

		// A loop superseded while the model was answering must not act on it.
		if ctx.Err() != nil {
			return Response{}, context.Cause(ctx)
		}
		cleaned, call, found := extract.Extract(text)
		if !found {
			reply := llm.Message{Role: llm.RoleAssistant, Content: cleaned}
			if err := m.commit(ctx, inst, sessionID, reply); err != nil {
				return Response{}, err
			}
			return Response{Text: cleaned, Outcome: OutcomeFinal, Iterations: iteration}, nil
		}

		m.logger.Info("tool call requested",
			"device_id", req.DeviceID,
			"tool", call.ToolName,
			"iteration", iteration,
			"params", security.RedactArguments(call.Parameters),
		)
		if req.DeviceID == "" {
			return Response{}, &ToolError{Tool: call.ToolName, Err: ErrNoDevice}
		}
		if iteration == m.cfg.MaxIterations {
			// No LLM call would follow, so the result could never be used.
			break
		}

		feedback, err := m.execute(ctx, req.DeviceID, call)
		if err != nil {
			return Response{}, err
		}
		turn := []llm.Message{
			{Role: llm.RoleAssistant, Content: text},
			{Role: llm.RoleUser, Content: feedback + "\n\n" + templates.RenderOr(m.messages, templates.KeyContinue, nil, continuationFallback)},
		}
		messages = append(messages, turn...)
		if err := m.commit(ctx, inst, sessionID, turn...); err != nil {
			return Response{}, err
		}
	}

	apology := templates.RenderOr(m.messages, templates.KeyApology,
		map[string]any{"MaxIterations": m.cfg.MaxIterations},
		"I'm sorry, I couldn't finish your request. Please try rephrasing it.")
	m.logger.Warn("tool iteration limit reached", "device_id", req.DeviceID, "max_iterations", m.cfg.MaxIterations)
	if err := m.commit(ctx, inst, sessionID, llm.Message{Role: llm.RoleAssistant, Content: apology}); err != nil {
		return Response{}, err
	}
	return Response{Text: apology, Outcome: OutcomeMaxIterations, Iterations: m.cfg.MaxIterations}, nil
}

// commit appends to the stored conversation unless the loop was superseded.
// Store failures are logged; the in-flight request keeps its own copy.
func (m *Manager) commit(ctx context.Context, inst *instance, sessionID string, msgs ...llm.Message) error {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.stopped {
		return ErrSuperseded
	}
	if sessionID == "" {
		return nil
	}
	if err := m.conversations.Append(ctx, sessionID, msgs...); err != nil {
		m.logger.Error("append conversation failed", "session_id", sessionID, "error", err)
	}
	return nil
}

// execute dispatches call and returns the formatted result for the model.
// Validation and delivery failures become feedback; unknown tools and
// cancellation end the request.
func (m *Manager) execute(ctx context.Context, deviceID string, call *extract.ToolCall) (string, error) {
	w, err := m.dispatcher.DispatchAwaitable(ctx, deviceID, call.ToolName, call.Parameters)
	if err != nil {
		var verr *validate.Error
		var derr *dispatch.Error
		switch {
		case errors.Is(err, dispatch.ErrUnknownTool):
			return "", &ToolError{Tool: call.ToolName, Err: err}
		case ctx.Err() != nil:
			return "", context.Cause(ctx)
		case errors.As(err, &verr), errors.As(err, &derr):
			return m.failure(call.ToolName, err.Error()), nil
		default:
			return "", fmt.Errorf("dispatch %s: %w", call.ToolName, err)
		}
	}

	res, err := m.dispatcher.Await(ctx, w, m.cfg.ToolTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return "", context.Cause(ctx)
		}
		return "", err
	}
	if !res.Success {
		return m.failure(call.ToolName, res.Error), nil
	}
	return m.success(call.ToolName, annotateResult(call.ToolName, res.Result)), nil
}

func (m *Manager) success(tool string, result any) string {
	data := map[string]any{"Tool": tool, "Result": formatResult(result)}
	fallback := fmt.Sprintf("Tool '%s' executed successfully.", tool)
	if data["Result"] != "" {
		fallback += "\nResult: " + data["Result"].(string)
	}
	return templates.RenderOr(m.messages, templates.KeyToolSuccess, data, fallback)
}

func (m *Manager) failure(tool, errMsg string) string {
	if errMsg == "" {
		errMsg = "unknown error"
	}
	data := map[string]any{"Tool": tool, "Error": errMsg}
	return templates.RenderOr(m.messages, templates.KeyToolFailure, data,
		fmt.Sprintf("Tool '%s' failed.\nError: %s", tool, errMsg))
}

// formatResult renders a device result as indented JSON; empty results
// render as "".
func formatResult(result any) string {
	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return v
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Sprint(result)
	}
	switch s := string(data); s {
	case "{}", "[]", "null", `""`:
		return ""
	default:
		return s
	}
}

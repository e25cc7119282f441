package conversation

import (
	"context"

	"github.com/codex-k8s/orion-orchestrator/internal/llm"
)

// Store keeps chat history per session.
//
// Stores hold only the non-system messages. History always returns the
// supplied system prompt as message[0] followed by the newest messages, so the
// whole conversation never exceeds the configured limit.
type Store interface {
	// History returns the conversation for a session, starting with the
	// system prompt.
	History(ctx context.Context, sessionID, systemPrompt string) ([]llm.Message, error)
	// Append adds messages to the end of a session.
	Append(ctx context.Context, sessionID string, messages ...llm.Message) error
	// Reset forgets a session.
	Reset(ctx context.Context, sessionID string) error
	// Prune drops expired sessions and reports how many were removed.
	Prune(ctx context.Context) (int, error)
}

// DefaultLimit is the conversation cap used when none is configured.
const DefaultLimit = 20

// Cap limits messages to limit entries. A leading system message is always
// kept; the oldest messages after it are evicted first.
func Cap(messages []llm.Message, limit int) []llm.Message {
	if limit <= 0 || len(messages) <= limit {
		return messages
	}
	if messages[0].Role != llm.RoleSystem {
		return messages[len(messages)-limit:]
	}
	if limit == 1 {
		return messages[:1]
	}
	out := make([]llm.Message, 0, limit)
	out = append(out, messages[0])
	return append(out, messages[len(messages)-(limit-1):]...)
}

// tailLimit is the number of non-system messages a store keeps.
func tailLimit(limit int) int {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit < 2 {
		return 1
	}
	return limit - 1
}

func compose(systemPrompt string, tail []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(tail)+1)
	out = append(out, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	return append(out, tail...)
}

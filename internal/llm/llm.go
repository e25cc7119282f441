package llm

import "context"

// Role is the author of a chat message.
type Role string

// Chat roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Client produces a completion for a conversation.
type Client interface {
	// Chat returns the full response text. When onChunk is non-nil the
	// response is streamed and each text delta is passed to onChunk as it
	// arrives.
	Chat(ctx context.Context, messages []Message, onChunk func(string)) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, messages []Message, onChunk func(string)) (string, error)

// Chat implements Client.
func (f ClientFunc) Chat(ctx context.Context, messages []Message, onChunk func(string)) (string, error) {
	return f(ctx, messages, onChunk)
}

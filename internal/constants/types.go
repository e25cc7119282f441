package constants

// Conversation store backends.
const (
	ConversationMemory = "memory"
	ConversationRedis  = "redis"
)

// Message languages shipped with the templates bundle.
const (
	LangEnglish = "en"
	LangRussian = "ru"
)

// Service identity reported to MCP clients.
const (
	ServiceName    = "orion-orchestrator"
	ServiceVersion = "0.1.0"
)

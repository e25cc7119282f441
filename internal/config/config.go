package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/codex-k8s/orion-orchestrator/internal/constants"
	"github.com/codex-k8s/orion-orchestrator/internal/store"
	"github.com/codex-k8s/orion-orchestrator/internal/validate"
)

// Config stores environment-driven settings for the orchestrator.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `env:"ORION_LISTEN" envDefault:":8765"`
	// WSPath serves the device and client WebSocket.
	WSPath string `env:"ORION_WS_PATH" envDefault:"/ws"`
	// WSOriginPatterns lists browser origins allowed on the WebSocket besides
	// the server's own host.
	WSOriginPatterns []string `env:"ORION_WS_ORIGIN_PATTERNS" envSeparator:","`
	// MCPPath serves the streamable HTTP MCP endpoint.
	MCPPath string `env:"ORION_MCP_PATH" envDefault:"/mcp"`
	// LogLevel sets the logger level.
	LogLevel string `env:"ORION_LOG_LEVEL" envDefault:"info"`
	// Lang selects message language for templates.
	Lang string `env:"ORION_LANG" envDefault:"en"`
	// ShutdownTimeout controls graceful shutdown duration.
	ShutdownTimeout time.Duration `env:"ORION_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// ToolsFile overrides the embedded tool catalog.
	ToolsFile string `env:"ORION_TOOLS_FILE"`

	DBDriver string `env:"ORION_DB_DRIVER" envDefault:"sqlite"`
	DBDSN    string `env:"ORION_DB_DSN" envDefault:"file:orion.db?_pragma=busy_timeout(5000)"`

	ConversationBackend string        `env:"ORION_CONVERSATION_BACKEND" envDefault:"memory"`
	RedisAddr           string        `env:"ORION_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword       string        `env:"ORION_REDIS_PASSWORD"`
	RedisDB             int           `env:"ORION_REDIS_DB" envDefault:"0"`
	SessionTTL          time.Duration `env:"ORION_SESSION_TTL" envDefault:"1h"`
	MaxSessions         int           `env:"ORION_MAX_SESSIONS" envDefault:"1000"`
	HistoryLimit        int           `env:"ORION_HISTORY_LIMIT" envDefault:"20"`

	LLMBaseURL     string   `env:"ORION_LLM_BASE_URL" envDefault:"https://ollama.com/v1"`
	LLMAPIKey      string   `env:"ORION_LLM_API_KEY"`
	LLMModel       string   `env:"ORION_LLM_MODEL" envDefault:"gpt-oss:120b"`
	LLMTemperature *float64 `env:"ORION_LLM_TEMPERATURE"`
	LLMMaxRetries  int      `env:"ORION_LLM_MAX_RETRIES" envDefault:"2"`

	MaxToolIterations     int           `env:"ORION_MAX_TOOL_ITERATIONS" envDefault:"5"`
	ToolTimeout           time.Duration `env:"ORION_TOOL_TIMEOUT" envDefault:"10s"`
	DispatchRatePerMinute int           `env:"ORION_DISPATCH_RATE_PER_MINUTE" envDefault:"0"`

	HeartbeatTimeout time.Duration `env:"ORION_HEARTBEAT_TIMEOUT" envDefault:"90s"`
	SweepSchedule    string        `env:"ORION_SWEEP_SCHEDULE" envDefault:"@every 30s"`

	// DefaultAllowedTools is granted to new devices. Empty grants every catalog tool.
	DefaultAllowedTools []string `env:"ORION_DEFAULT_ALLOWED_TOOLS" envSeparator:","`
	DefaultAllowedPaths []string `env:"ORION_DEFAULT_ALLOWED_PATHS" envSeparator:"," envDefault:"C:/Users,D:/Projects,/home,/Users"`
	DefaultAllowedApps  []string `env:"ORION_DEFAULT_ALLOWED_APPS" envSeparator:"," envDefault:"notepad,calculator,chrome,firefox,edge,terminal,cmd"`
}

// Load reads optional dotenv files, then parses environment variables into
// Config. Variables already set in the environment win over file values.
func Load(envFiles ...string) (Config, error) {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
	}
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Listen) == "" {
		errs = append(errs, errors.New("ORION_LISTEN is required"))
	}
	for name, path := range map[string]string{"ORION_WS_PATH": c.WSPath, "ORION_MCP_PATH": c.MCPPath} {
		if !strings.HasPrefix(path, "/") {
			errs = append(errs, fmt.Errorf("%s must start with /", name))
		}
	}
	if c.WSPath == c.MCPPath {
		errs = append(errs, errors.New("ORION_WS_PATH and ORION_MCP_PATH must differ"))
	}
	if !slices.Contains([]string{store.DriverMemory, store.DriverSQLite, store.DriverPostgres}, c.DBDriver) {
		errs = append(errs, fmt.Errorf("ORION_DB_DRIVER: unsupported driver %q", c.DBDriver))
	}
	if c.DBDriver != store.DriverMemory && strings.TrimSpace(c.DBDSN) == "" {
		errs = append(errs, errors.New("ORION_DB_DSN is required"))
	}
	switch c.ConversationBackend {
	case constants.ConversationMemory:
	case constants.ConversationRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, errors.New("ORION_REDIS_ADDR is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("ORION_CONVERSATION_BACKEND: unsupported backend %q", c.ConversationBackend))
	}
	if c.MaxToolIterations < 1 {
		errs = append(errs, errors.New("ORION_MAX_TOOL_ITERATIONS must be at least 1"))
	}
	if c.HistoryLimit < 2 {
		errs = append(errs, errors.New("ORION_HISTORY_LIMIT must be at least 2"))
	}
	if c.MaxSessions < 1 {
		errs = append(errs, errors.New("ORION_MAX_SESSIONS must be at least 1"))
	}
	if c.DispatchRatePerMinute < 0 {
		errs = append(errs, errors.New("ORION_DISPATCH_RATE_PER_MINUTE must not be negative"))
	}
	if c.LLMMaxRetries < 0 {
		errs = append(errs, errors.New("ORION_LLM_MAX_RETRIES must not be negative"))
	}
	if c.LLMTemperature != nil && (*c.LLMTemperature < 0 || *c.LLMTemperature > 2) {
		errs = append(errs, errors.New("ORION_LLM_TEMPERATURE must be between 0 and 2"))
	}
	for name, d := range map[string]time.Duration{
		"ORION_SHUTDOWN_TIMEOUT":  c.ShutdownTimeout,
		"ORION_SESSION_TTL":       c.SessionTTL,
		"ORION_TOOL_TIMEOUT":      c.ToolTimeout,
		"ORION_HEARTBEAT_TIMEOUT": c.HeartbeatTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	return errors.Join(errs...)
}

// DefaultGrant returns the grant for newly registered devices. catalogTools
// is used when no tools are configured.
func (c Config) DefaultGrant(catalogTools []string) validate.Grant {
	tools := trimAll(c.DefaultAllowedTools)
	if len(tools) == 0 {
		tools = slices.Clone(catalogTools)
	}
	return validate.Grant{
		Tools: tools,
		Paths: trimAll(c.DefaultAllowedPaths),
		Apps:  trimAll(c.DefaultAllowedApps),
	}
}

// OriginPatterns returns the configured WebSocket origin patterns.
func (c Config) OriginPatterns() []string {
	return trimAll(c.WSOriginPatterns)
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

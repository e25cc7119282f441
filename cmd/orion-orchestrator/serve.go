package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/codex-k8s/orion-orchestrator/internal/agent"
	"github.com/codex-k8s/orion-orchestrator/internal/app"
	"github.com/codex-k8s/orion-orchestrator/internal/audit"
	"github.com/codex-k8s/orion-orchestrator/internal/config"
	"github.com/codex-k8s/orion-orchestrator/internal/constants"
	"github.com/codex-k8s/orion-orchestrator/internal/conversation"
	"github.com/codex-k8s/orion-orchestrator/internal/correlate"
	"github.com/codex-k8s/orion-orchestrator/internal/dispatch"
	"github.com/codex-k8s/orion-orchestrator/internal/hub"
	"github.com/codex-k8s/orion-orchestrator/internal/llm"
	"github.com/codex-k8s/orion-orchestrator/internal/log"
	"github.com/codex-k8s/orion-orchestrator/internal/mcpserver"
	"github.com/codex-k8s/orion-orchestrator/internal/store"
	"github.com/codex-k8s/orion-orchestrator/internal/sweeper"
	"github.com/codex-k8s/orion-orchestrator/internal/templates"
	"github.com/codex-k8s/orion-orchestrator/internal/validate"
)

type serveOptions struct {
	stdio bool
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the device WebSocket hub and the MCP endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.config()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			logger := log.New(cfg.LogLevel)
			if opts.stdio {
				// stdout carries the MCP stream.
				logger = log.NewWithWriter(os.Stderr, cfg.LogLevel)
			}
			if err := serve(cmd.Context(), cfg, logger, opts); err != nil {
				logger.Error("runtime error", "error", err)
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.stdio, "stdio", false, "also serve MCP over stdin/stdout; exits when the MCP client disconnects")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger, opts *serveOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bundle, err := templates.Load(cfg.Lang)
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}
	tools, cat, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	st, err := store.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("close store failed", "error", err)
		}
	}()

	convs, closeConvs, err := openConversations(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeConvs()

	client, err := llm.NewOpenAI(llm.Config{
		BaseURL:     cfg.LLMBaseURL,
		APIKey:      cfg.LLMAPIKey,
		Model:       cfg.LLMModel,
		Temperature: cfg.LLMTemperature,
		MaxRetries:  cfg.LLMMaxRetries,
	})
	if err != nil {
		return fmt.Errorf("llm client: %w", err)
	}

	// The hub is both the dispatcher's sender and its inbound reply source.
	var devices *hub.Hub
	sender := dispatch.SenderFunc(func(ctx context.Context, deviceID string, env dispatch.Envelope) bool {
		return devices.Send(ctx, deviceID, env)
	})
	perms := store.Permissions{Store: st}
	dispatcher := dispatch.New(cat, validate.New(perms), audit.NewRecorder(st, audit.New(logger)), sender, correlate.New(), dispatch.Options{
		Limiter: dispatch.NewLimiter(cfg.DispatchRatePerMinute),
		Logger:  logger,
	})

	manager, err := agent.New(agent.Options{
		Catalog:       cat,
		Permissions:   perms,
		Dispatcher:    dispatcher,
		LLM:           client,
		Conversations: convs,
		Messages:      bundle,
		Logger:        logger,
		Config: agent.Config{
			MaxIterations: cfg.MaxToolIterations,
			ToolTimeout:   cfg.ToolTimeout,
			HistoryLimit:  cfg.HistoryLimit,
		},
	})
	if err != nil {
		return fmt.Errorf("agent: %w", err)
	}

	devices = hub.New(st, dispatcher, manager, hub.Options{
		DefaultGrant:   cfg.DefaultGrant(toolNames(cat)),
		Messages:       bundle,
		Logger:         logger,
		OriginPatterns: cfg.OriginPatterns(),
	})

	name, version := tools.Server.Name, tools.Server.Version
	if name == "" {
		name = constants.ServiceName
	}
	if version == "" {
		version = constants.ServiceVersion
	}
	mcpServer, err := mcpserver.Builder{
		Name:        name,
		Version:     version,
		Agent:       manager,
		Dispatcher:  dispatcher,
		ToolTimeout: cfg.ToolTimeout,
		Logger:      logger,
	}.Build()
	if err != nil {
		return fmt.Errorf("build mcp server: %w", err)
	}

	sw, err := sweeper.New(st, convs, sweeper.Options{
		Schedule:         cfg.SweepSchedule,
		HeartbeatTimeout: cfg.HeartbeatTimeout,
		Logger:           logger,
	})
	if err != nil {
		return err
	}
	sw.Start(ctx)
	defer sw.Stop()

	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return mcpServer
	}, nil)
	application, err := app.New(ctx, app.Options{
		Listen: cfg.Listen,
		Routes: map[string]http.Handler{
			cfg.WSPath:  devices,
			cfg.MCPPath: mcpHandler,
		},
		Logger:          logger,
		ShutdownTimeout: cfg.ShutdownTimeout,
	})
	if err != nil {
		return err
	}

	logger.Info("orchestrator starting",
		"listen", cfg.Listen,
		"ws_path", cfg.WSPath,
		"mcp_path", cfg.MCPPath,
		"tools", cat.Len(),
		"db_driver", cfg.DBDriver,
		"conversation_backend", cfg.ConversationBackend,
		"model", cfg.LLMModel,
	)

	if !opts.stdio {
		return application.Run(ctx)
	}

	httpErr := make(chan error, 1)
	go func() { httpErr <- application.Run(ctx) }()
	stdioErr := mcpServer.Run(ctx, &mcp.StdioTransport{})
	cancel()
	return errors.Join(stdioErr, <-httpErr)
}

func openConversations(ctx context.Context, cfg config.Config) (conversation.Store, func(), error) {
	switch cfg.ConversationBackend {
	case constants.ConversationRedis:
		r, err := conversation.NewRedis(ctx, conversation.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.SessionTTL,
			Limit:    cfg.HistoryLimit,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("conversation store: %w", err)
		}
		return r, func() { _ = r.Close() }, nil
	default:
		return conversation.NewMemory(cfg.SessionTTL, cfg.MaxSessions, cfg.HistoryLimit), func() {}, nil
	}
}

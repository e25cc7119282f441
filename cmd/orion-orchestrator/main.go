package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/orion-orchestrator/configs"
	"github.com/codex-k8s/orion-orchestrator/internal/catalog"
	"github.com/codex-k8s/orion-orchestrator/internal/config"
	"github.com/codex-k8s/orion-orchestrator/internal/constants"
	"github.com/codex-k8s/orion-orchestrator/internal/dsl"
	"github.com/codex-k8s/orion-orchestrator/internal/render"
)

type rootOptions struct {
	envFile string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{}
	serve := newServeCmd(opts)

	root := &cobra.Command{
		Use:           constants.ServiceName,
		Short:         "Orion device orchestrator: LLM agent loop over WebSocket-connected devices",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading ORION_* variables")
	root.Flags().AddFlagSet(serve.Flags())

	root.AddCommand(
		serve,
		newToolsCmd(opts),
		newPromptCmd(opts),
		newDevicesCmd(opts),
		newExecutionsCmd(opts),
		newGrantCmd(opts),
	)
	return root
}

func (o *rootOptions) config() (config.Config, error) {
	if o.envFile == "" {
		return config.Load()
	}
	return config.Load(o.envFile)
}

// loadCatalog reads the tool catalog file, or the embedded default, and
// registers its tools.
func loadCatalog(cfg config.Config) (*dsl.Config, *catalog.Catalog, error) {
	var (
		tools *dsl.Config
		err   error
	)
	if cfg.ToolsFile != "" {
		tools, err = dsl.LoadFile(cfg.ToolsFile)
	} else {
		var raw []byte
		raw, err = configs.Load(configs.DefaultTools)
		if err == nil {
			raw, err = render.RenderBytes(configs.DefaultTools, raw)
		}
		if err == nil {
			tools, err = dsl.Load(raw)
		}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load tool catalog: %w", err)
	}
	cat := catalog.New()
	if err := tools.Register(cat); err != nil {
		return nil, nil, fmt.Errorf("register tools: %w", err)
	}
	return tools, cat, nil
}

func toolNames(cat *catalog.Catalog) []string {
	all := cat.ListAll()
	names := make([]string, 0, len(all))
	for _, tool := range all {
		names = append(names, tool.Name)
	}
	return names
}

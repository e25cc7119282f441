package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/orion-orchestrator/internal/agent"
	"github.com/codex-k8s/orion-orchestrator/internal/security"
	"github.com/codex-k8s/orion-orchestrator/internal/store"
	"github.com/codex-k8s/orion-orchestrator/internal/templates"
	"github.com/codex-k8s/orion-orchestrator/internal/validate"
)

func newToolsCmd(root *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the tool catalog grouped by category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.config()
			if err != nil {
				return err
			}
			_, cat, err := loadCatalog(cfg)
			if err != nil {
				return err
			}
			list, err := agent.ListTools(cmd.Context(), cat, nil, "")
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), list)
			}
			printTools(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of text")
	return cmd
}

func printTools(out io.Writer, list agent.ToolList) {
	byName := make(map[string]agent.ToolSummary, len(list.Tools))
	for _, tool := range list.Tools {
		byName[tool.Name] = tool
	}
	fmt.Fprintf(out, "%d tools\n", list.Count)
	for _, category := range list.Categories {
		fmt.Fprintf(out, "\n[%s]\n", category)
		for _, name := range list.ByCategory[category] {
			tool := byName[name]
			marker := ""
			if tool.Dangerous {
				marker = " (dangerous)"
			}
			fmt.Fprintf(out, "  %s%s: %s\n", tool.Name, marker, tool.Description)
		}
	}
}

func newPromptCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "prompt",
		Short: "Print the system prompt generated from the tool catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.config()
			if err != nil {
				return err
			}
			_, cat, err := loadCatalog(cfg)
			if err != nil {
				return err
			}
			bundle, err := templates.Load(cfg.Lang)
			if err != nil {
				return err
			}
			prompt, err := agent.BuildSystemPrompt(cat, bundle)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), prompt)
			return err
		},
	}
}

func newDevicesCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List registered devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), root, func(st store.Store) error {
				devices, err := st.ListDevices(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "DEVICE\tSTATUS\tHOST\tOS\tLAST HEARTBEAT")
				for _, d := range devices {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s %s\t%s\n", d.ID, d.Status, d.Hostname, d.OSType, d.OSVersion, formatTime(d.LastHeartbeat))
				}
				return w.Flush()
			})
		},
	}
}

func newExecutionsCmd(root *rootOptions) *cobra.Command {
	var (
		deviceID string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "executions",
		Short: "List recent tool executions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), root, func(st store.Store) error {
				executions, err := st.ListExecutions(cmd.Context(), deviceID, limit)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "EXECUTION\tDEVICE\tTOOL\tSTATUS\tCREATED\tERROR")
				for _, e := range executions {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", e.ID, e.DeviceID, e.ToolName, e.Status, formatTime(e.CreatedAt), security.Truncate(e.Error, 60))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&deviceID, "device", "", "only executions of this device")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of executions")
	return cmd
}

func newGrantCmd(root *rootOptions) *cobra.Command {
	var tools, paths, apps []string
	cmd := &cobra.Command{
		Use:   "grant DEVICE_ID",
		Short: "Replace the permissions of a registered device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			grant := validate.Grant{
				Tools: append([]string{}, tools...),
				Paths: append([]string{}, paths...),
				Apps:  append([]string{}, apps...),
			}
			return withStore(cmd.Context(), root, func(st store.Store) error {
				if err := st.SetGrant(cmd.Context(), args[0], grant); err != nil {
					return fmt.Errorf("grant %s: %w", args[0], err)
				}
				return writeJSON(cmd.OutOrStdout(), grant)
			})
		},
	}
	cmd.Flags().StringSliceVar(&tools, "tools", nil, "allowed tools")
	cmd.Flags().StringSliceVar(&paths, "paths", nil, "allowed path prefixes")
	cmd.Flags().StringSliceVar(&apps, "apps", nil, "allowed applications")
	return cmd
}

func withStore(ctx context.Context, root *rootOptions, fn func(store.Store) error) error {
	cfg, err := root.config()
	if err != nil {
		return err
	}
	st, err := store.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	return fn(st)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

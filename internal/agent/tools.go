package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/codex-k8s/orion-orchestrator/internal/catalog"
	"github.com/codex-k8s/orion-orchestrator/internal/validate"
)

// ParamSummary describes a tool parameter to clients.
type ParamSummary struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Default     any    `json:"default"`
}

// ToolSummary describes a tool to clients.
type ToolSummary struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	Parameters  []ParamSummary `json:"parameters"`
	Permission  string         `json:"permission,omitempty"`
	Dangerous   bool           `json:"dangerous"`
}

// ToolList is the catalog view returned to clients.
type ToolList struct {
	Tools      []ToolSummary       `json:"tools"`
	Count      int                 `json:"count"`
	Categories []string            `json:"categories"`
	ByCategory map[string][]string `json:"by_category"`
}

// GetAvailableTools lists the catalog grouped by category. With a device id,
// tools gated by a tool grant the device lacks are left out.
func (m *Manager) GetAvailableTools(ctx context.Context, deviceID string) (ToolList, error) {
	return ListTools(ctx, m.catalog, m.perms, deviceID)
}

// ListTools builds a ToolList from cat, filtered for deviceID when perms is
// set.
func ListTools(ctx context.Context, cat *catalog.Catalog, perms validate.Permissions, deviceID string) (ToolList, error) {
	deviceID = strings.TrimSpace(deviceID)
	list := ToolList{Tools: []ToolSummary{}, Categories: []string{}, ByCategory: map[string][]string{}}
	for _, tool := range cat.ListAll() {
		if tool.Permission == catalog.PermissionTool && deviceID != "" && perms != nil {
			ok, err := perms.PermittedTool(ctx, deviceID, tool.Name)
			if err != nil {
				return ToolList{}, fmt.Errorf("check tool permission %s: %w", tool.Name, err)
			}
			if !ok {
				continue
			}
		}
		if _, seen := list.ByCategory[tool.Category]; !seen {
			list.Categories = append(list.Categories, tool.Category)
		}
		list.ByCategory[tool.Category] = append(list.ByCategory[tool.Category], tool.Name)
		list.Tools = append(list.Tools, summarize(tool))
	}
	list.Count = len(list.Tools)
	return list, nil
}

func summarize(tool catalog.ToolDefinition) ToolSummary {
	params := make([]ParamSummary, 0, len(tool.Params))
	for _, p := range tool.Params {
		params = append(params, ParamSummary{
			Name:        p.Name,
			Type:        string(p.Type),
			Description: p.Description,
			Required:    p.Required,
			Default:     p.Default,
		})
	}
	return ToolSummary{
		Name:        tool.Name,
		Description: tool.Description,
		Category:    tool.Category,
		Parameters:  params,
		Permission:  string(tool.Permission),
		Dangerous:   tool.Dangerous,
	}
}

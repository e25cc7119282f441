package agent

import (
	"encoding/json"
	"fmt"

	"github.com/codex-k8s/orion-orchestrator/internal/catalog"
	"github.com/codex-k8s/orion-orchestrator/internal/extract"
	"github.com/codex-k8s/orion-orchestrator/internal/templates"
)

type promptTool struct {
	Name        string
	Category    string
	Description string
	Dangerous   bool
	Params      []promptParam
	Example     string
}

type promptParam struct {
	Name        string
	Type        string
	Description string
	Required    bool
	HasDefault  bool
	Default     string
}

// BuildSystemPrompt renders the system prompt describing every catalog tool
// and the tool call format.
func BuildSystemPrompt(cat *catalog.Catalog, r templates.Renderer) (string, error) {
	if r == nil {
		return "", fmt.Errorf("system prompt: templates are not loaded")
	}
	tools := cat.ListAll()
	data := struct{ Tools []promptTool }{Tools: make([]promptTool, 0, len(tools))}
	for _, tool := range tools {
		pt, err := describeTool(tool)
		if err != nil {
			return "", err
		}
		data.Tools = append(data.Tools, pt)
	}
	prompt, err := r.Render(templates.KeySystemPrompt, data)
	if err != nil {
		return "", fmt.Errorf("system prompt: %w", err)
	}
	return prompt, nil
}

func describeTool(tool catalog.ToolDefinition) (promptTool, error) {
	pt := promptTool{
		Name:        tool.Name,
		Category:    tool.Category,
		Description: tool.Description,
		Dangerous:   tool.Dangerous,
	}
	example := map[string]any{}
	for _, p := range tool.Params {
		pp := promptParam{
			Name:        p.Name,
			Type:        string(p.Type),
			Description: p.Description,
			Required:    p.Required,
		}
		if p.Default != nil {
			raw, err := json.Marshal(p.Default)
			if err != nil {
				return promptTool{}, fmt.Errorf("tool %s: default of %s: %w", tool.Name, p.Name, err)
			}
			pp.HasDefault = true
			pp.Default = string(raw)
		}
		if p.Required {
			example[p.Name] = exampleValue(p)
		}
		pt.Params = append(pt.Params, pp)
	}

	var call struct {
		ToolCall extract.ToolCall `json:"tool_call"`
	}
	call.ToolCall = extract.ToolCall{ToolName: tool.Name, Parameters: example}
	raw, err := json.Marshal(call)
	if err != nil {
		return promptTool{}, fmt.Errorf("tool %s: example: %w", tool.Name, err)
	}
	pt.Example = string(raw)
	return pt, nil
}

func exampleValue(p catalog.ParamSpec) any {
	switch p.Type {
	case catalog.TypePath:
		return "C:/Users/Example/Documents"
	case catalog.TypeBoolean:
		return false
	case catalog.TypeInteger:
		return 0
	case catalog.TypeArray:
		return []any{}
	case catalog.TypeObject:
		return map[string]any{}
	}
	switch p.Name {
	case "app_name":
		return "notepad"
	case "pattern":
		return "*.txt"
	case "confirm":
		return "DELETE"
	}
	return "example_" + p.Name
}

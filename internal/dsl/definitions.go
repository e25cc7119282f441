package dsl

import (
	"fmt"

	"github.com/codex-k8s/orion-orchestrator/internal/catalog"
)

// Definitions converts tool declarations into catalog definitions.
func (c *Config) Definitions() []catalog.ToolDefinition {
	out := make([]catalog.ToolDefinition, 0, len(c.Tools))
	for _, tool := range c.Tools {
		def := catalog.ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			Category:    tool.Category,
			Permission:  catalog.PermissionType(tool.Permission),
			Dangerous:   tool.Dangerous,
		}
		for _, p := range tool.Params {
			spec := catalog.ParamSpec{
				Name:        p.Name,
				Type:        catalog.ParamType(p.Type),
				Description: p.Description,
				Required:    p.Required,
				Default:     p.Default,
				Pattern:     p.Regex,
			}
			if p.Min != nil || p.Max != nil {
				spec.Range = &catalog.Range{Min: p.Min, Max: p.Max}
			}
			def.Params = append(def.Params, spec)
		}
		out = append(out, def)
	}
	return out
}

// Register loads every declared tool into cat.
func (c *Config) Register(cat *catalog.Catalog) error {
	for _, def := range c.Definitions() {
		if err := cat.Register(def); err != nil {
			return fmt.Errorf("register tool %s: %w", def.Name, err)
		}
	}
	return nil
}

package dsl

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/codex-k8s/orion-orchestrator/internal/catalog"
)

// Validate applies defaults and verifies required fields.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Server.Name == "" {
		cfg.Server.Name = "orion-orchestrator"
	}
	if cfg.Server.Version == "" {
		cfg.Server.Version = "dev"
	}
	if len(cfg.Tools) == 0 {
		return fmt.Errorf("tools must not be empty")
	}

	toolNames := map[string]struct{}{}
	for i, tool := range cfg.Tools {
		if strings.TrimSpace(tool.Name) == "" {
			return fmt.Errorf("tools[%d].name is required", i)
		}
		if _, exists := toolNames[tool.Name]; exists {
			return fmt.Errorf("duplicate tool name: %s", tool.Name)
		}
		toolNames[tool.Name] = struct{}{}
		if tool.Category == "" {
			return fmt.Errorf("tools[%d].category is required", i)
		}
		if !catalog.PermissionType(tool.Permission).Valid() {
			return fmt.Errorf("tools[%d].permission must be none, tool, path, or app", i)
		}

		paramNames := map[string]struct{}{}
		hasPath := false
		for j, param := range tool.Params {
			if strings.TrimSpace(param.Name) == "" {
				return fmt.Errorf("tools[%d].params[%d].name is required", i, j)
			}
			if _, exists := paramNames[param.Name]; exists {
				return fmt.Errorf("tools[%d].params[%d]: duplicate parameter %s", i, j, param.Name)
			}
			paramNames[param.Name] = struct{}{}
			if !catalog.ParamType(param.Type).Valid() {
				return fmt.Errorf("tools[%d].params[%d].type %q is unknown", i, j, param.Type)
			}
			if param.Type == string(catalog.TypePath) {
				hasPath = true
			}
			if param.Regex != "" {
				if _, err := regexp.Compile(param.Regex); err != nil {
					return fmt.Errorf("tools[%d].params[%d].regex is invalid: %w", i, j, err)
				}
			}
			if param.Min != nil && param.Max != nil && *param.Min > *param.Max {
				return fmt.Errorf("tools[%d].params[%d]: min is above max", i, j)
			}
		}

		switch catalog.PermissionType(tool.Permission) {
		case catalog.PermissionPath:
			if !hasPath {
				return fmt.Errorf("tools[%d]: path permission requires a path parameter", i)
			}
		case catalog.PermissionApp:
			if _, ok := paramNames["app_name"]; !ok {
				return fmt.Errorf("tools[%d]: app permission requires an app_name parameter", i)
			}
		}
	}

	return nil
}

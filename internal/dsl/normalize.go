package dsl

import (
	"fmt"
	"strings"
)

func normalizeConfig(cfg *Config) error {
	for i := range cfg.Tools {
		tool := &cfg.Tools[i]
		tool.Category = strings.ToLower(strings.TrimSpace(tool.Category))
		tool.Permission = strings.ToLower(strings.TrimSpace(tool.Permission))
		if tool.Permission == "none" {
			tool.Permission = ""
		}
		for j := range tool.Params {
			param := &tool.Params[j]
			param.Type = strings.ToLower(strings.TrimSpace(param.Type))
			def, err := normalizeValue(param.Default)
			if err != nil {
				return fmt.Errorf("tools[%d].params[%d].default: %w", i, j, err)
			}
			param.Default = def
		}
	}
	return nil
}

// normalizeValue converts YAML-decoded values into the shapes produced by
// parameter coercion: string-keyed maps and int64 integers.
func normalizeValue(value any) (any, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			normalized, err := normalizeValue(val)
			if err != nil {
				return nil, err
			}
			out[key] = normalized
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			keyStr, ok := key.(string)
			if !ok {
				return nil, fmt.Errorf("map key must be string, got %T", key)
			}
			normalized, err := normalizeValue(val)
			if err != nil {
				return nil, err
			}
			out[keyStr] = normalized
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			normalized, err := normalizeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = normalized
		}
		return out, nil
	default:
		return value, nil
	}
}

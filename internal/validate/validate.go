package validate

import (
	"context"
	"sort"

	"github.com/codex-k8s/orion-orchestrator/internal/catalog"
)

// Permissions answers per-device capability queries.
type Permissions interface {
	PermittedTool(ctx context.Context, deviceID, toolName string) (bool, error)
	PermittedPath(ctx context.Context, deviceID, path string) (bool, error)
	PermittedApp(ctx context.Context, deviceID, appName string) (bool, error)
}

// Validator checks raw tool parameters against the declared schema and the
// device's permission grant.
type Validator struct {
	perms Permissions
}

// New returns a validator backed by perms.
func New(perms Permissions) *Validator {
	return &Validator{perms: perms}
}

// Validate returns the coerced and defaulted parameter set or an *Error.
// Errors from the permission backend are returned as-is.
func (v *Validator) Validate(ctx context.Context, deviceID string, tool catalog.ToolDefinition, raw map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(tool.Params))
	for _, spec := range tool.Params {
		value, present := raw[spec.Name]
		if !present || value == nil {
			if spec.Required {
				return nil, newError(MissingRequired, tool.Name, spec.Name, "required parameter is missing")
			}
			if spec.Default == nil {
				continue
			}
			value = spec.Default
		}
		checked, err := checkValue(tool.Name, spec, value)
		if err != nil {
			return nil, err
		}
		out[spec.Name] = checked
	}

	var unknown []string
	for key := range raw {
		if _, ok := tool.Param(key); !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, newError(UnknownParameter, tool.Name, unknown[0], "parameter is not declared by tool %s", tool.Name)
	}

	if err := v.checkPermission(ctx, deviceID, tool, out); err != nil {
		return nil, err
	}
	return out, nil
}

// checkValue coerces value to the declared type and applies the pattern and
// range constraints. Declared defaults go through it as well.
func checkValue(toolName string, spec catalog.ParamSpec, value any) (any, error) {
	coerced, ok := coerce(spec.Type, value)
	if !ok {
		return nil, newError(TypeMismatch, toolName, spec.Name, "expected %s, got %T", spec.Type, value)
	}

	if re := spec.Regexp(); re != nil {
		if s, isString := coerced.(string); isString && !re.MatchString(s) {
			return nil, newError(RegexMismatch, toolName, spec.Name, "value does not match pattern %q", spec.Pattern)
		}
	}

	if spec.Range != nil {
		if n, isNumber := numeric(coerced); isNumber {
			if spec.Range.Min != nil && n < *spec.Range.Min {
				return nil, newError(RangeViolation, toolName, spec.Name, "value %v is below minimum %v", n, *spec.Range.Min)
			}
			if spec.Range.Max != nil && n > *spec.Range.Max {
				return nil, newError(RangeViolation, toolName, spec.Name, "value %v is above maximum %v", n, *spec.Range.Max)
			}
		}
	}
	return coerced, nil
}

func (v *Validator) checkPermission(ctx context.Context, deviceID string, tool catalog.ToolDefinition, params map[string]any) error {
	if tool.Permission == catalog.PermissionNone {
		return nil
	}
	if v.perms == nil {
		return newError(PermissionDenied, tool.Name, "", "no permission source configured for tool %s", tool.Name)
	}

	switch tool.Permission {
	case catalog.PermissionTool:
		ok, err := v.perms.PermittedTool(ctx, deviceID, tool.Name)
		if err != nil {
			return err
		}
		if !ok {
			return newError(PermissionDenied, tool.Name, "", "tool %s is not allowed on this device", tool.Name)
		}
	case catalog.PermissionPath:
		// Every path-typed parameter is checked so copy/move cannot write outside the grant.
		for _, spec := range tool.Params {
			if spec.Type != catalog.TypePath {
				continue
			}
			path, ok := params[spec.Name].(string)
			if !ok {
				continue
			}
			allowed, err := v.perms.PermittedPath(ctx, deviceID, path)
			if err != nil {
				return err
			}
			if !allowed {
				return newError(PermissionDenied, tool.Name, spec.Name, "path %s is not allowed on this device", path)
			}
		}
	case catalog.PermissionApp:
		app, _ := params["app_name"].(string)
		ok, err := v.perms.PermittedApp(ctx, deviceID, app)
		if err != nil {
			return err
		}
		if !ok {
			return newError(PermissionDenied, tool.Name, "app_name", "application %s is not allowed on this device", app)
		}
	}
	return nil
}

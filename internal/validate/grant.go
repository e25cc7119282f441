package validate

import (
	"context"
	"slices"
	"strings"
)

// Grant is a device's capability snapshot.
type Grant struct {
	Tools []string `json:"allowed_tools"`
	Paths []string `json:"allowed_paths"`
	Apps  []string `json:"allowed_apps"`
}

// AllowsTool reports whether name is in the allowed tool list.
func (g Grant) AllowsTool(name string) bool {
	return slices.Contains(g.Tools, name)
}

// AllowsPath reports whether path starts with one of the allowed prefixes.
// The comparison is a literal string prefix: no cleaning of "..", case or separators.
func (g Grant) AllowsPath(path string) bool {
	for _, prefix := range g.Paths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// AllowsApp reports whether name is in the allowed application list.
func (g Grant) AllowsApp(name string) bool {
	return slices.Contains(g.Apps, name)
}

// StaticPermissions serves grants from a fixed map keyed by device id.
// Unknown devices are granted nothing.
type StaticPermissions map[string]Grant

// PermittedTool implements Permissions.
func (s StaticPermissions) PermittedTool(_ context.Context, deviceID, toolName string) (bool, error) {
	return s[deviceID].AllowsTool(toolName), nil
}

// PermittedPath implements Permissions.
func (s StaticPermissions) PermittedPath(_ context.Context, deviceID, path string) (bool, error) {
	return s[deviceID].AllowsPath(path), nil
}

// PermittedApp implements Permissions.
func (s StaticPermissions) PermittedApp(_ context.Context, deviceID, appName string) (bool, error) {
	return s[deviceID].AllowsApp(appName), nil
}

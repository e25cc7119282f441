package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// ErrDuplicateName is returned when a tool name is registered twice.
var ErrDuplicateName = errors.New("duplicate tool name")

// Catalog is an append-only registry of tool definitions.
type Catalog struct {
	mu     sync.RWMutex
	byName map[string]int
	tools  []ToolDefinition
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{byName: make(map[string]int)}
}

// Register adds a tool. Patterns are compiled here so a bad catalog fails at startup.
func (c *Catalog) Register(tool ToolDefinition) error {
	name := strings.TrimSpace(tool.Name)
	if name == "" {
		return errors.New("tool name is required")
	}
	if !tool.Permission.Valid() {
		return fmt.Errorf("tool %s: unknown permission type %q", name, tool.Permission)
	}

	params := make([]ParamSpec, len(tool.Params))
	seen := make(map[string]struct{}, len(tool.Params))
	for i, p := range tool.Params {
		if p.Name == "" {
			return fmt.Errorf("tool %s: parameter %d has no name", name, i)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("tool %s: parameter %s declared twice", name, p.Name)
		}
		seen[p.Name] = struct{}{}
		if !p.Type.Valid() {
			return fmt.Errorf("tool %s: parameter %s: unknown type %q", name, p.Name, p.Type)
		}
		if p.Pattern != "" {
			re, err := regexp.Compile(`^(?:` + p.Pattern + `)`)
			if err != nil {
				return fmt.Errorf("tool %s: parameter %s: invalid pattern: %w", name, p.Name, err)
			}
			p.re = re
		}
		params[i] = p
	}
	tool.Name = name
	tool.Params = params

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.byName[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	c.byName[name] = len(c.tools)
	c.tools = append(c.tools, tool)
	return nil
}

// Get returns the tool with the given name.
func (c *Catalog) Get(name string) (ToolDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.byName[name]
	if !ok {
		return ToolDefinition{}, false
	}
	return c.tools[idx], true
}

// ListAll returns every tool in registration order.
func (c *Catalog) ListAll() []ToolDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ToolDefinition, len(c.tools))
	copy(out, c.tools)
	return out
}

// ListByCategory returns the tools of one category in registration order.
func (c *Catalog) ListByCategory(category string) []ToolDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []ToolDefinition
	for _, t := range c.tools {
		if t.Category == category {
			out = append(out, t)
		}
	}
	return out
}

// Categories returns the distinct categories in first-seen order.
func (c *Catalog) Categories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, t := range c.tools {
		if _, ok := seen[t.Category]; ok {
			continue
		}
		seen[t.Category] = struct{}{}
		out = append(out, t.Category)
	}
	return out
}

// Len returns the number of registered tools.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tools)
}

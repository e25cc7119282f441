package render

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"
)

// EnvTracker records environment variables referenced by a catalog file.
type EnvTracker struct {
	missing map[string]struct{}
}

func (t *EnvTracker) markMissing(key string) {
	if t.missing == nil {
		t.missing = map[string]struct{}{}
	}
	t.missing[key] = struct{}{}
}

// Missing returns the referenced variables that were not set, sorted.
func (t *EnvTracker) Missing() []string {
	out := make([]string, 0, len(t.missing))
	for key := range t.missing {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// RenderFile reads a tool catalog file and expands its env references.
func RenderFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tool catalog: %w", err)
	}
	return RenderBytes(path, raw)
}

// RenderBytes expands env references in raw. A file with no template
// actions is returned unchanged. Referencing an unset variable through env
// is an error; envOr supplies a fallback instead.
func RenderBytes(name string, raw []byte) ([]byte, error) {
	if !bytes.Contains(raw, []byte("{{")) {
		return raw, nil
	}
	if strings.TrimSpace(name) == "" {
		name = "catalog"
	}
	tracker := &EnvTracker{}
	tmpl, err := template.New(name).Funcs(FuncMap(tracker)).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse catalog template: %w", err)
	}

	var buf bytes.Buffer
	execErr := tmpl.Execute(&buf, map[string]any{})
	if missing := tracker.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("missing env vars: %s", strings.Join(missing, ", "))
	}
	if execErr != nil {
		return nil, fmt.Errorf("render catalog template: %w", execErr)
	}
	return buf.Bytes(), nil
}

package render

import (
	"os"
	"strings"
	"text/template"
)

// FuncMap returns the helpers available in tool catalog files.
func FuncMap(tracker *EnvTracker) template.FuncMap {
	return template.FuncMap{
		"env": func(key string) string {
			value, ok := os.LookupEnv(key)
			if !ok && tracker != nil {
				tracker.markMissing(key)
			}
			return value
		},
		"envOr": func(key, def string) string {
			if value, ok := os.LookupEnv(key); ok {
				return value
			}
			return def
		},
		"default": func(def, value string) string {
			if value == "" {
				return def
			}
			return value
		},
		"lower":    strings.ToLower,
		"upper":    strings.ToUpper,
		"replace":  strings.ReplaceAll,
		"toSlash":  func(p string) string { return strings.ReplaceAll(p, `\`, "/") },
		"trimPath": func(p string) string { return strings.TrimRight(p, `/\`) },
	}
}

package templates

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/codex-k8s/orion-orchestrator/internal/constants"
)

//go:embed data/*.json data/*.tmpl
var files embed.FS

// Message keys.
const (
	KeySystemPrompt  = "system_prompt"
	KeyApology       = "agent.apology"
	KeyContinue      = "agent.continue"
	KeyToolSuccess   = "agent.tool_success"
	KeyToolFailure   = "agent.tool_failure"
	KeyNoDevice      = "agent.no_device"
	KeyUnknownTool   = "agent.unknown_tool"
	KeyInternalError = "agent.internal_error"
	KeyNotRegistered = "hub.not_registered"
	KeyToolAccepted  = "hub.tool_accepted"
	KeyUnknownType   = "hub.unknown_type"
	KeyInvalidJSON   = "hub.invalid_json"
)

// Renderer renders localized messages by key.
type Renderer interface {
	// Render returns a localized message by key.
	Render(key string, data any) (string, error)
}

// Bundle holds parsed templates for a selected language.
type Bundle struct {
	lang      string
	templates map[string]*template.Template
}

// Load loads localized templates for the specified language (default: en).
func Load(lang string) (*Bundle, error) {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang != constants.LangRussian && lang != constants.LangEnglish {
		lang = constants.LangEnglish
	}

	raw, err := files.ReadFile(fmt.Sprintf("data/%s.json", lang))
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}

	var messages map[string]string
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	prompt, err := files.ReadFile("data/system_prompt.tmpl")
	if err != nil {
		return nil, fmt.Errorf("read system prompt: %w", err)
	}
	messages[KeySystemPrompt] = string(prompt)

	parsed := make(map[string]*template.Template, len(messages))
	for key, value := range messages {
		tmpl, err := template.New(key).Option("missingkey=zero").Parse(value)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", key, err)
		}
		parsed[key] = tmpl
	}

	return &Bundle{lang: lang, templates: parsed}, nil
}

// Lang returns the bundle language.
func (b *Bundle) Lang() string {
	if b == nil {
		return ""
	}
	return b.lang
}

// Render renders a message by key with the supplied data.
func (b *Bundle) Render(key string, data any) (string, error) {
	if b == nil {
		return "", fmt.Errorf("templates bundle is nil")
	}
	tmpl, ok := b.templates[key]
	if !ok {
		return "", fmt.Errorf("template not found: %s", key)
	}
	var out strings.Builder
	if err := tmpl.Execute(&out, data); err != nil {
		return "", fmt.Errorf("render template %s: %w", key, err)
	}
	return out.String(), nil
}

// RenderOr renders key and falls back to def when the renderer is nil or
// rendering fails.
func RenderOr(r Renderer, key string, data any, def string) string {
	if r == nil {
		return def
	}
	text, err := r.Render(key, data)
	if err != nil || strings.TrimSpace(text) == "" {
		return def
	}
	return text
}

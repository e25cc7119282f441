package dsl

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/codex-k8s/orion-orchestrator/internal/render"
)

// Load parses YAML bytes into Config and validates it.
func Load(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := normalizeConfig(&cfg); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile reads a tool catalog from disk, expanding env references such as
// {{ env "HOME" }} before parsing.
func LoadFile(path string) (*Config, error) {
	data, err := render.RenderFile(path)
	if err != nil {
		return nil, err
	}
	return Load(data)
}

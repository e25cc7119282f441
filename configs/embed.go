package configs

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

// DefaultTools is the filename of the built-in tool catalog.
const DefaultTools = "tools.yaml"

//go:embed *.yaml
var embeddedConfigs embed.FS

// Names returns the list of embedded YAML catalog filenames.
func Names() []string {
	entries, err := fs.Glob(embeddedConfigs, "*.yaml")
	if err != nil {
		return nil
	}
	sort.Strings(entries)
	return entries
}

// Load returns the embedded YAML catalog by filename.
func Load(name string) ([]byte, error) {
	if name == "" {
		return nil, fmt.Errorf("embedded catalog name is empty")
	}
	data, err := fs.ReadFile(embeddedConfigs, name)
	if err != nil {
		return nil, fmt.Errorf("read embedded catalog %q: %w", name, err)
	}
	return data, nil
}

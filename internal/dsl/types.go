package dsl

// Config is the top-level tool catalog file.
type Config struct {
	// Server describes the orchestrator identity advertised to MCP clients.
	Server ServerConfig `yaml:"server"`
	// Tools lists all tool declarations.
	Tools []ToolConfig `yaml:"tools"`
}

// ServerConfig defines orchestrator identity.
type ServerConfig struct {
	// Name is the advertised server name.
	Name string `yaml:"name"`
	// Version is the advertised server version.
	Version string `yaml:"version"`
}

// ToolConfig declares a device-side tool.
type ToolConfig struct {
	// Name is the tool name.
	Name string `yaml:"name"`
	// Description explains the tool for the agent.
	Description string `yaml:"description"`
	// Category groups the tool (file_system, application, device, ...).
	Category string `yaml:"category"`
	// Permission selects the device grant checked before dispatch (tool, path, app).
	Permission string `yaml:"permission"`
	// Dangerous marks destructive tools.
	Dangerous bool `yaml:"dangerous"`
	// Params is the ordered parameter schema.
	Params []ParamConfig `yaml:"params"`
}

// ParamConfig declares a single tool parameter.
type ParamConfig struct {
	// Name is the parameter key.
	Name string `yaml:"name"`
	// Type is one of string, integer, boolean, path, array, object.
	Type string `yaml:"type"`
	// Description explains the parameter for the agent.
	Description string `yaml:"description"`
	// Required marks the parameter as mandatory.
	Required bool `yaml:"required"`
	// Default is used when an optional parameter is absent.
	Default any `yaml:"default"`
	// Regex validates string value format.
	Regex string `yaml:"regex"`
	// Min sets numeric minimum.
	Min *float64 `yaml:"min"`
	// Max sets numeric maximum.
	Max *float64 `yaml:"max"`
}

package catalog

import "regexp"

// ParamType is the declared type of a tool parameter.
type ParamType string

// Parameter types understood by the validator.
const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypePath    ParamType = "path"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

// Valid reports whether t is a known parameter type.
func (t ParamType) Valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeBoolean, TypePath, TypeArray, TypeObject:
		return true
	}
	return false
}

// PermissionType selects which device grant a tool is checked against.
type PermissionType string

// Permission types.
const (
	PermissionNone PermissionType = ""
	PermissionTool PermissionType = "tool"
	PermissionPath PermissionType = "path"
	PermissionApp  PermissionType = "app"
)

// Valid reports whether p is a known permission type.
func (p PermissionType) Valid() bool {
	switch p {
	case PermissionNone, PermissionTool, PermissionPath, PermissionApp:
		return true
	}
	return false
}

// Tool categories.
const (
	CategoryFileSystem  = "file_system"
	CategoryApplication = "application"
	CategoryDevice      = "device"
	CategoryNetwork     = "network"
	CategoryHomelab     = "homelab"
	CategorySystem      = "system"
)

// Range bounds a numeric parameter. Nil ends are open.
type Range struct {
	Min *float64
	Max *float64
}

// ParamSpec declares a single tool parameter.
type ParamSpec struct {
	// Name is the parameter key.
	Name string
	// Type is the declared parameter type.
	Type ParamType
	// Description is shown to the LLM.
	Description string
	// Required marks the parameter as mandatory.
	Required bool
	// Default is substituted when an optional parameter is absent. Nil omits it.
	Default any
	// Pattern is an optional regular expression for string values.
	Pattern string
	// Range is an optional numeric bound.
	Range *Range

	re *regexp.Regexp
}

// Regexp returns the compiled pattern, or nil when no pattern is declared.
func (p ParamSpec) Regexp() *regexp.Regexp {
	return p.re
}

// ToolDefinition describes one device-side action.
type ToolDefinition struct {
	// Name is the unique tool name.
	Name string
	// Description explains the tool to the LLM.
	Description string
	// Category groups tools for listing.
	Category string
	// Params is the ordered parameter schema.
	Params []ParamSpec
	// Permission selects the permission check.
	Permission PermissionType
	// Dangerous marks destructive tools.
	Dangerous bool
}

// Param returns the parameter spec with the given name.
func (t ToolDefinition) Param(name string) (ParamSpec, bool) {
	for _, p := range t.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}

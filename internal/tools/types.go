// Package tools defines the tool contract and the registry that dispatches
// tool calls requested by the model.
package tools

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/datalens/internal/providers"
)

// Tool is the interface all tools implement.
type Tool interface {
	Name() string
	Description() string
	Schema() *ArgSchema
	Execute(ctx context.Context, args map[string]any) *Result
}

// ArgType enumerates the argument types a tool schema may declare.
type ArgType string

const (
	ArgString  ArgType = "string"
	ArgNumber  ArgType = "number"
	ArgInteger ArgType = "integer"
	ArgBool    ArgType = "boolean"
	ArgArray   ArgType = "array"
	ArgObject  ArgType = "object"
)

// ArgField declares one named argument.
type ArgField struct {
	Name        string
	Type        ArgType
	Description string
	Required    bool
	Enum        []string // string fields only
}

// ArgSchema is an explicit argument schema: a flat object of typed fields.
// Schemas are checked once at registration; arguments are checked against
// the schema on every invocation.
//
// Schemas obtained from external tool servers arrive as raw JSON Schema and
// are passed through unvalidated — the server owns validation for those.
type ArgSchema struct {
	Fields []ArgField
	raw    map[string]any
}

// NewSchema builds a schema from typed fields.
func NewSchema(fields ...ArgField) *ArgSchema {
	return &ArgSchema{Fields: fields}
}

// NewRawSchema wraps an external JSON Schema document (MCP bridge tools).
func NewRawSchema(schema map[string]any) *ArgSchema {
	return &ArgSchema{raw: schema}
}

var validArgTypes = map[ArgType]bool{
	ArgString: true, ArgNumber: true, ArgInteger: true,
	ArgBool: true, ArgArray: true, ArgObject: true,
}

// Check validates the schema itself: unique field names, known types,
// enums only on strings. Called once at registration.
func (s *ArgSchema) Check() error {
	if s.raw != nil {
		return nil
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema field with empty name")
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate schema field %q", f.Name)
		}
		seen[f.Name] = true
		if !validArgTypes[f.Type] {
			return fmt.Errorf("field %q: unknown type %q", f.Name, f.Type)
		}
		if len(f.Enum) > 0 && f.Type != ArgString {
			return fmt.Errorf("field %q: enum is only valid on string fields", f.Name)
		}
	}
	return nil
}

// Validate checks an argument map against the schema. Raw schemas are
// passed through without local validation.
func (s *ArgSchema) Validate(args map[string]any) error {
	if s.raw != nil {
		return nil
	}
	fields := make(map[string]ArgField, len(s.Fields))
	for _, f := range s.Fields {
		fields[f.Name] = f
		if f.Required {
			if _, ok := args[f.Name]; !ok {
				return fmt.Errorf("missing required argument %q", f.Name)
			}
		}
	}
	for name, val := range args {
		f, ok := fields[name]
		if !ok {
			return fmt.Errorf("unknown argument %q", name)
		}
		if val == nil {
			continue
		}
		if err := checkType(f, val); err != nil {
			return err
		}
	}
	return nil
}

func checkType(f ArgField, val any) error {
	switch f.Type {
	case ArgString:
		s, ok := val.(string)
		if !ok {
			return fmt.Errorf("argument %q: expected string, got %T", f.Name, val)
		}
		if len(f.Enum) > 0 {
			for _, e := range f.Enum {
				if s == e {
					return nil
				}
			}
			return fmt.Errorf("argument %q: %q is not one of %v", f.Name, s, f.Enum)
		}
	case ArgNumber:
		switch val.(type) {
		case float64, float32, int, int64:
		default:
			return fmt.Errorf("argument %q: expected number, got %T", f.Name, val)
		}
	case ArgInteger:
		switch v := val.(type) {
		case int, int64:
		case float64:
			if v != float64(int64(v)) {
				return fmt.Errorf("argument %q: expected integer, got %v", f.Name, v)
			}
		default:
			return fmt.Errorf("argument %q: expected integer, got %T", f.Name, val)
		}
	case ArgBool:
		if _, ok := val.(bool); !ok {
			return fmt.Errorf("argument %q: expected boolean, got %T", f.Name, val)
		}
	case ArgArray:
		if _, ok := val.([]any); !ok {
			return fmt.Errorf("argument %q: expected array, got %T", f.Name, val)
		}
	case ArgObject:
		if _, ok := val.(map[string]any); !ok {
			return fmt.Errorf("argument %q: expected object, got %T", f.Name, val)
		}
	}
	return nil
}

// JSONSchema renders the schema as a JSON Schema object for provider APIs.
func (s *ArgSchema) JSONSchema() map[string]any {
	if s.raw != nil {
		return s.raw
	}
	props := make(map[string]any, len(s.Fields))
	var required []string
	for _, f := range s.Fields {
		p := map[string]any{
			"type":        string(f.Type),
			"description": f.Description,
		}
		if len(f.Enum) > 0 {
			p["enum"] = f.Enum
		}
		props[f.Name] = p
		if f.Required {
			required = append(required, f.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Descriptor is the read-only view of a registered tool.
type Descriptor struct {
	Name        string
	Description string
	Schema      *ArgSchema
}

// ToProviderDef converts a Tool to a provider tool definition.
func ToProviderDef(t Tool) providers.ToolDefinition {
	return providers.ToolDefinition{
		Type: "function",
		Function: providers.ToolFunctionSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema().JSONSchema(),
		},
	}
}

// --- argument accessors shared by built-in tools ---

func stringArg(args map[string]any, name string) string {
	if v, ok := args[name].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, name string, def int) int {
	switch v := args[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

package tools

import "testing"

func TestArgSchemaCheck(t *testing.T) {
	tests := []struct {
		name    string
		schema  *ArgSchema
		wantErr bool
	}{
		{"empty", NewSchema(), false},
		{"valid", NewSchema(
			ArgField{Name: "q", Type: ArgString, Required: true},
			ArgField{Name: "n", Type: ArgInteger},
		), false},
		{"empty field name", NewSchema(ArgField{Type: ArgString}), true},
		{"duplicate field", NewSchema(
			ArgField{Name: "q", Type: ArgString},
			ArgField{Name: "q", Type: ArgInteger},
		), true},
		{"unknown type", NewSchema(ArgField{Name: "q", Type: "blob"}), true},
		{"enum on integer", NewSchema(
			ArgField{Name: "n", Type: ArgInteger, Enum: []string{"1"}},
		), true},
		{"raw passthrough", NewRawSchema(map[string]any{"type": "object"}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Check()
			if (err != nil) != tt.wantErr {
				t.Errorf("Check() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestArgSchemaValidate(t *testing.T) {
	schema := NewSchema(
		ArgField{Name: "query", Type: ArgString, Required: true},
		ArgField{Name: "limit", Type: ArgInteger},
		ArgField{Name: "kind", Type: ArgString, Enum: []string{"bar", "line"}},
		ArgField{Name: "cols", Type: ArgArray},
		ArgField{Name: "opts", Type: ArgObject},
		ArgField{Name: "flag", Type: ArgBool},
		ArgField{Name: "ratio", Type: ArgNumber},
	)

	tests := []struct {
		name    string
		args    map[string]any
		wantErr bool
	}{
		{"minimal", map[string]any{"query": "select 1"}, false},
		{"missing required", map[string]any{"limit": 5}, true},
		{"unknown argument", map[string]any{"query": "q", "bogus": 1}, true},
		{"wrong string type", map[string]any{"query": 42}, true},
		{"integer as float64", map[string]any{"query": "q", "limit": float64(10)}, false},
		{"fractional integer", map[string]any{"query": "q", "limit": 10.5}, true},
		{"enum ok", map[string]any{"query": "q", "kind": "bar"}, false},
		{"enum violation", map[string]any{"query": "q", "kind": "pie"}, true},
		{"array ok", map[string]any{"query": "q", "cols": []any{"a", "b"}}, false},
		{"array wrong type", map[string]any{"query": "q", "cols": "a,b"}, true},
		{"object ok", map[string]any{"query": "q", "opts": map[string]any{}}, false},
		{"bool wrong type", map[string]any{"query": "q", "flag": "yes"}, true},
		{"number ok", map[string]any{"query": "q", "ratio": 0.5}, false},
		{"nil value skipped", map[string]any{"query": "q", "limit": nil}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schema.Validate(tt.args)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestArgSchemaJSONSchema(t *testing.T) {
	schema := NewSchema(
		ArgField{Name: "q", Type: ArgString, Description: "the query", Required: true},
		ArgField{Name: "kind", Type: ArgString, Enum: []string{"bar", "line"}},
	)
	js := schema.JSONSchema()
	if js["type"] != "object" {
		t.Fatalf("type = %v, want object", js["type"])
	}
	props, ok := js["properties"].(map[string]any)
	if !ok {
		t.Fatal("properties missing")
	}
	if _, ok := props["q"]; !ok {
		t.Error("property q missing")
	}
	required, ok := js["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "q" {
		t.Errorf("required = %v, want [q]", js["required"])
	}

	raw := map[string]any{"type": "object", "properties": map[string]any{}}
	if got := NewRawSchema(raw).JSONSchema(); got["type"] != "object" {
		t.Error("raw schema should pass through unchanged")
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.MaxIterations != DefaultMaxIterations {
		t.Errorf("max_iterations = %d, want %d", cfg.Agent.MaxIterations, DefaultMaxIterations)
	}
	if cfg.Agent.ToolTimeout() != DefaultToolTimeout {
		t.Errorf("tool_timeout = %v, want %v", cfg.Agent.ToolTimeout(), DefaultToolTimeout)
	}
	if len(cfg.Agent.CodeTriggers) == 0 {
		t.Error("default code triggers not applied")
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("port = %d, want 8000", cfg.Server.Port)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9100
agent:
  max_iterations: 5
  tool_timeout_sec: 10
  code_triggers: ["run this"]
sessions:
  redis_url: redis://localhost:6379/0
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Agent.MaxIterations != 5 {
		t.Errorf("max_iterations = %d, want 5", cfg.Agent.MaxIterations)
	}
	if cfg.Agent.ToolTimeout() != 10*time.Second {
		t.Errorf("tool_timeout = %v, want 10s", cfg.Agent.ToolTimeout())
	}
	if len(cfg.Agent.CodeTriggers) != 1 || cfg.Agent.CodeTriggers[0] != "run this" {
		t.Errorf("code_triggers = %v", cfg.Agent.CodeTriggers)
	}
	if cfg.Sessions.RedisURL == "" {
		t.Error("redis_url not loaded")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATALENS_OPENAI_API_KEY", "sk-env")
	t.Setenv("DATALENS_DATABASE_DSN", "postgres://env/db")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.APIKey != "sk-env" {
		t.Errorf("api key = %q, want env override", cfg.Provider.APIKey)
	}
	if cfg.Database.DSN != "postgres://env/db" {
		t.Errorf("dsn = %q, want env override", cfg.Database.DSN)
	}
}

func TestLoadRejectsInvalidMCPServer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
mcp_servers:
  - name: broken
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for MCP server without command or url")
	}
}

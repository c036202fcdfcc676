// Package config loads and validates the DataLens configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Default policy values. Overridable per config file.
const (
	DefaultMaxIterations       = 3
	DefaultConsecutiveFailures = 2
	DefaultToolTimeout         = 30 * time.Second
	DefaultResultPreviewChars  = 500
	DefaultContextBudgetTokens = 24000
)

// defaultCodeTriggers are the phrases that force tool binding on the first
// reasoning step. Queries asking for runnable code must go through the
// sandbox rather than the conversational shortcut. The list is policy, not
// contract, and can be replaced wholesale in the config file.
var defaultCodeTriggers = []string{
	"code example",
	"code snippet",
	"python code",
	"javascript code",
	"show me code",
	"demonstrate code",
}

// Config is the top-level configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Provider ProviderConfig `yaml:"provider"`
	Agent    AgentConfig    `yaml:"agent"`
	Sessions SessionsConfig `yaml:"sessions"`
	MCP      []MCPServer    `yaml:"mcp_servers"`
	Tracing  TracingConfig  `yaml:"tracing"`
	LogLevel string         `yaml:"log_level"`
}

// ServerConfig configures the WebSocket/HTTP gateway.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	AuthToken    string `yaml:"auth_token"`
	RateLimitRPM int    `yaml:"rate_limit_rpm"` // per-user queries per minute, 0 = disabled
	RateBurst    int    `yaml:"rate_burst"`
}

// DatabaseConfig configures the analytics Postgres database.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// ProviderConfig configures the LLM endpoint (OpenAI-compatible).
type ProviderConfig struct {
	APIKey      string  `yaml:"api_key"`
	APIBase     string  `yaml:"api_base"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
}

// AgentConfig configures the ReAct loop policy.
type AgentConfig struct {
	MaxIterations       int `yaml:"max_iterations"`
	ConsecutiveFailures int `yaml:"consecutive_failures"`
	ToolTimeoutSec      int `yaml:"tool_timeout_sec"`
	ResultPreviewChars  int `yaml:"result_preview_chars"`
	ContextBudgetTokens int `yaml:"context_budget_tokens"`
	ToolRateLimit       int `yaml:"tool_rate_limit"` // tool calls per session per minute, 0 = disabled

	// CodeTriggers are phrases that bypass the conversational shortcut and
	// force tool binding. Replaces the defaults when non-empty.
	CodeTriggers []string `yaml:"code_triggers"`
}

// ToolTimeout returns the per-call tool timeout as a duration.
func (a AgentConfig) ToolTimeout() time.Duration {
	return time.Duration(a.ToolTimeoutSec) * time.Second
}

// SessionsConfig configures the conversation checkpoint store.
// RedisURL selects the managed backend; otherwise SQLitePath is used.
type SessionsConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
	RedisURL   string `yaml:"redis_url"`
}

// MCPServer describes one external MCP tool server.
type MCPServer struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"` // stdio transport
	Args    []string          `yaml:"args"`
	URL     string            `yaml:"url"` // streamable HTTP transport
	Env     map[string]string `yaml:"env"`
	Prefix  string            `yaml:"prefix"`      // tool name prefix, "" = none
	Timeout int               `yaml:"timeout_sec"` // per-call timeout
}

// TracingConfig configures OTLP trace export. Empty endpoint disables it.
type TracingConfig struct {
	Endpoint string `yaml:"otlp_endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// Load reads the config file at path and applies defaults and env overrides.
// A missing file yields the default config.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// defaults only
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.RateBurst == 0 {
		c.Server.RateBurst = 5
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 4
	}
	if c.Provider.APIBase == "" {
		c.Provider.APIBase = "https://api.openai.com/v1"
	}
	if c.Provider.Model == "" {
		c.Provider.Model = "gpt-4-turbo-preview"
	}
	if c.Provider.Temperature == 0 {
		c.Provider.Temperature = 0.1
	}
	if c.Agent.MaxIterations == 0 {
		c.Agent.MaxIterations = DefaultMaxIterations
	}
	if c.Agent.ConsecutiveFailures == 0 {
		c.Agent.ConsecutiveFailures = DefaultConsecutiveFailures
	}
	if c.Agent.ToolTimeoutSec == 0 {
		c.Agent.ToolTimeoutSec = int(DefaultToolTimeout / time.Second)
	}
	if c.Agent.ResultPreviewChars == 0 {
		c.Agent.ResultPreviewChars = DefaultResultPreviewChars
	}
	if c.Agent.ContextBudgetTokens == 0 {
		c.Agent.ContextBudgetTokens = DefaultContextBudgetTokens
	}
	if len(c.Agent.CodeTriggers) == 0 {
		c.Agent.CodeTriggers = append([]string(nil), defaultCodeTriggers...)
	}
	if c.Sessions.SQLitePath == "" && c.Sessions.RedisURL == "" {
		c.Sessions.SQLitePath = defaultSessionsPath()
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// applyEnv overrides secrets from the environment so they can stay out of
// the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("DATALENS_OPENAI_API_KEY"); v != "" {
		c.Provider.APIKey = v
	}
	if v := os.Getenv("DATALENS_DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("DATALENS_AUTH_TOKEN"); v != "" {
		c.Server.AuthToken = v
	}
	if v := os.Getenv("DATALENS_REDIS_URL"); v != "" {
		c.Sessions.RedisURL = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("agent.max_iterations must be >= 1, got %d", c.Agent.MaxIterations)
	}
	for i, srv := range c.MCP {
		if srv.Name == "" {
			return fmt.Errorf("mcp_servers[%d]: name is required", i)
		}
		if srv.Command == "" && srv.URL == "" {
			return fmt.Errorf("mcp server %q: either command or url is required", srv.Name)
		}
	}
	return nil
}

func defaultSessionsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "datalens-sessions.db"
	}
	return filepath.Join(home, ".datalens", "sessions.db")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	if v := os.Getenv("DATALENS_CONFIG"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "datalens.yaml"
	}
	return filepath.Join(home, ".datalens", "config.yaml")
}

package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/datalens/internal/providers"
)

// Registry manages tool registration and dispatch.
//
// Registration order is preserved for List and ProviderDefs so the tool
// catalogue shown to the model is stable across runs. Re-registering a name
// overwrites the previous tool in place (last write wins) — this is how
// deprecated tools are replaced without changing catalogue order.
type Registry struct {
	mu          sync.RWMutex
	tools       map[string]Tool
	order       []string
	timeout     time.Duration
	rateLimiter *RateLimiter // nil = no rate limiting
}

// NewRegistry creates a registry with the given per-call timeout.
// A zero timeout defaults to 30s.
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Registry{
		tools:   make(map[string]Tool),
		timeout: timeout,
	}
}

// SetRateLimiter enables per-session tool rate limiting.
func (r *Registry) SetRateLimiter(rl *RateLimiter) {
	r.rateLimiter = rl
}

// Register adds a tool. The schema is validated once here; a tool with a
// malformed schema is rejected.
func (r *Registry) Register(tool Tool) error {
	if tool.Name() == "" {
		return fmt.Errorf("tool with empty name")
	}
	if err := tool.Schema().Check(); err != nil {
		return fmt.Errorf("tool %q: %w", tool.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name()]; !exists {
		r.order = append(r.order, tool.Name())
	} else {
		slog.Warn("tool re-registered, overwriting", "tool", tool.Name())
	}
	r.tools[tool.Name()] = tool
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns descriptors for all tools in registration order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, Descriptor{
			Name:        t.Name(),
			Description: t.Description(),
			Schema:      t.Schema(),
		})
	}
	return out
}

// ProviderDefs returns tool definitions for the LLM provider API, in
// registration order.
func (r *Registry) ProviderDefs() []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]providers.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, ToProviderDef(r.tools[name]))
	}
	return defs
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Invoke runs a tool by name. It never returns an error: unknown tools,
// bad arguments, timeouts, and panics all come back as failed Results so
// the agent loop can feed them to the model as observations.
// sessionKey scopes rate limiting; empty disables it for the call.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any, sessionKey string) *Result {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return stamp(Fail("tool not found: "+name), name)
	}

	if err := tool.Schema().Validate(args); err != nil {
		return stamp(Fail(fmt.Sprintf("invalid arguments for %s: %v", name, err)), name)
	}

	if r.rateLimiter != nil && sessionKey != "" {
		if !r.rateLimiter.Allow(sessionKey) {
			return stamp(Fail(fmt.Sprintf("rate limit exceeded for tool calls in session %s", sessionKey)), name)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	result := runGuarded(callCtx, tool, args, r.timeout)
	duration := time.Since(start)

	slog.Debug("tool executed",
		"tool", name,
		"duration_ms", duration.Milliseconds(),
		"success", result.Success,
	)
	return stamp(result, name)
}

// runGuarded executes the tool in its own goroutine so a tool that ignores
// context cancellation still cannot stall the loop past the timeout.
// Panics inside tools are converted to failed results.
func runGuarded(ctx context.Context, tool Tool, args map[string]any, timeout time.Duration) *Result {
	done := make(chan *Result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("tool panicked", "tool", tool.Name(), "panic", rec)
				done <- Fail(fmt.Sprintf("tool %s failed internally", tool.Name()))
			}
		}()
		done <- tool.Execute(ctx, args)
	}()

	select {
	case res := <-done:
		if res == nil {
			return Fail(fmt.Sprintf("tool %s returned no result", tool.Name()))
		}
		return res
	case <-ctx.Done():
		return Fail(fmt.Sprintf("tool %s timed out after %s", tool.Name(), timeout))
	}
}

func stamp(res *Result, tool string) *Result {
	res.Tool = tool
	if res.Timestamp.IsZero() {
		res.Timestamp = time.Now().UTC()
	}
	return res
}

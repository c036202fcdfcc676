package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
)

const (
	sandboxTimeout   = 10 * time.Second
	sandboxOutputCap = 64 * 1024
)

// SandboxTool executes JavaScript in an embedded interpreter. The agent's
// policy requires code examples to be executed before they are shown to the
// user; this tool is the execution target.
type SandboxTool struct {
	timeout time.Duration
}

// NewSandboxTool creates the execute_javascript tool.
func NewSandboxTool() *SandboxTool {
	return &SandboxTool{timeout: sandboxTimeout}
}

func (t *SandboxTool) Name() string { return "execute_javascript" }

func (t *SandboxTool) Description() string {
	return "Execute JavaScript code in a sandboxed interpreter and return its console output and final value."
}

func (t *SandboxTool) Schema() *ArgSchema {
	return NewSchema(
		ArgField{Name: "code", Type: ArgString, Description: "JavaScript source to execute", Required: true},
	)
}

func (t *SandboxTool) Execute(ctx context.Context, args map[string]any) *Result {
	code := stringArg(args, "code")
	if strings.TrimSpace(code) == "" {
		return Fail("code argument is empty")
	}

	output, value, err := runSandboxed(ctx, code, nil, t.timeout)
	if err != nil {
		return Fail(fmt.Sprintf("execution failed: %v", err))
	}

	var b strings.Builder
	if output != "" {
		b.WriteString(output)
	}
	if value != "" && value != "undefined" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("=> " + value)
	}
	if b.Len() == 0 {
		b.WriteString("(no output)")
	}
	return Ok(b.String())
}

// RunProcessingCode applies a JavaScript snippet to query rows. The snippet
// must define process(data) returning the transformed row array. Used by the
// composite visualization tools for the optional processing_code argument.
func RunProcessingCode(ctx context.Context, code string, data []map[string]any) ([]map[string]any, error) {
	wrapped := code + "\n;process(__data__);"
	_, value, err := runSandboxed(ctx, wrapped, data, sandboxTimeout)
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	if err := json.Unmarshal([]byte(value), &out); err != nil {
		return nil, fmt.Errorf("process() must return an array of row objects: %w", err)
	}
	return out, nil
}

// runSandboxed evaluates code with console.log capture and an interrupt
// watchdog. data, when non-nil, is exposed as __data__.
func runSandboxed(ctx context.Context, code string, data []map[string]any, timeout time.Duration) (output, value string, err error) {
	vm := goja.New()

	var log strings.Builder
	console := vm.NewObject()
	logFn := func(call goja.FunctionCall) goja.Value {
		if log.Len() < sandboxOutputCap {
			parts := make([]string, 0, len(call.Arguments))
			for _, a := range call.Arguments {
				parts = append(parts, a.String())
			}
			log.WriteString(strings.Join(parts, " "))
			log.WriteString("\n")
		}
		return goja.Undefined()
	}
	console.Set("log", logFn)
	console.Set("error", logFn)
	vm.Set("console", console)

	if data != nil {
		vm.Set("__data__", data)
	}

	done := make(chan struct{})
	defer close(done)
	timer := time.AfterFunc(timeout, func() {
		vm.Interrupt("execution timed out")
	})
	defer timer.Stop()
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt("cancelled")
		case <-done:
		}
	}()

	result, err := vm.RunString(code)
	if err != nil {
		if _, ok := err.(*goja.InterruptedError); ok {
			return "", "", fmt.Errorf("execution timed out after %s", timeout)
		}
		return "", "", err
	}

	value = "undefined"
	if result != nil && !goja.IsUndefined(result) && !goja.IsNull(result) {
		// Marshal through JSON so objects serialize predictably.
		if exported := result.Export(); exported != nil {
			if b, jerr := json.Marshal(exported); jerr == nil {
				value = string(b)
			} else {
				value = result.String()
			}
		}
	}
	return strings.TrimRight(log.String(), "\n"), value, nil
}

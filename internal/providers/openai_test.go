package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIProvider_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("auth header = %q", got)
		}

		var req oaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("model = %q", req.Model)
		}
		if len(req.Tools) != 1 || req.Tools[0].Function.Name != "query_database" {
			t.Errorf("tools not forwarded: %+v", req.Tools)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"model": "test-model",
			"choices": []map[string]any{{
				"message": map[string]any{
					"role":    "assistant",
					"content": "let me check",
					"tool_calls": []map[string]any{{
						"id":   "call_1",
						"type": "function",
						"function": map[string]any{
							"name":      "query_database",
							"arguments": `{"sql":"SELECT 1"}`,
						},
					}},
				},
			}},
		})
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openai", "sk-test", srv.URL, "test-model")
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "top merchants"}},
		Tools: []ToolDefinition{{
			Type: "function",
			Function: ToolFunctionSchema{
				Name:       "query_database",
				Parameters: map[string]any{"type": "object"},
			},
		}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "let me check" {
		t.Errorf("content = %q", resp.Content)
	}
	if !resp.HasToolCalls() {
		t.Fatal("expected tool calls")
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "call_1" || tc.Name != "query_database" {
		t.Errorf("tool call = %+v", tc)
	}
	if tc.Arguments["sql"] != "SELECT 1" {
		t.Errorf("arguments = %v", tc.Arguments)
	}
}

func TestOpenAIProvider_ChatProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "bad key", "type": "invalid_request_error"},
		})
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openai", "sk-bad", srv.URL, "m")
	if _, err := p.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatal("expected error from provider")
	}
}

func TestOpenAIProvider_ChatNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	p := NewOpenAIProvider("", "", srv.URL, "m")
	if _, err := p.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestToWireMessagesToolRoundTrip(t *testing.T) {
	wire := toWireMessages([]Message{
		{Role: RoleAssistant, Content: "", ToolCalls: []ToolCall{
			{ID: "c1", Name: "create_chart_from_data", Arguments: map[string]any{"title": "t"}},
		}},
		{Role: RoleTool, Content: "ok", ToolCallID: "c1"},
	})
	if len(wire) != 2 {
		t.Fatalf("len = %d", len(wire))
	}
	if wire[0].ToolCalls[0].Function.Name != "create_chart_from_data" {
		t.Errorf("tool call name lost: %+v", wire[0])
	}
	if wire[1].ToolCallID != "c1" {
		t.Errorf("tool_call_id lost: %+v", wire[1])
	}
}

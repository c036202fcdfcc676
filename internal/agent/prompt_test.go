package agent

import (
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/datalens/internal/tools"
)

func TestSystemPrompt(t *testing.T) {
	descriptors := []tools.Descriptor{
		{Name: "query_database", Description: "run sql"},
		{Name: "create_chart_from_data", Description: "chart it"},
	}
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	got := systemPrompt("- sales: region(text) total(numeric)", descriptors, now)

	for _, want := range []string{
		"2026-08-27",
		"- sales: region(text) total(numeric)",
		"query_database: run sql",
		"create_chart_from_data: chart it",
		"follow-up",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestSystemPromptWithoutSchema(t *testing.T) {
	got := systemPrompt("", nil, time.Now())
	if strings.Contains(got, "Database schema:") {
		t.Error("empty schema should omit the schema section")
	}
}

func TestContinuationPrompt(t *testing.T) {
	ok := tools.Ok(strings.Repeat("x", 600))
	ok.Tool = "query_database"
	failed := tools.Fail("boom")
	failed.Tool = "create_chart_from_data"

	got := continuationPrompt([]*tools.Result{ok, failed}, 500)

	if !strings.Contains(got, "[SUCCESS] query_database") {
		t.Error("missing success tag")
	}
	if !strings.Contains(got, "[FAILED] create_chart_from_data: boom") {
		t.Error("missing failure tag")
	}
	if !strings.Contains(got, "Do not retry a failed call") {
		t.Error("missing retry guidance after a failure")
	}
	// long content is previewed, not included whole
	if strings.Contains(got, strings.Repeat("x", 600)) {
		t.Error("result content was not truncated")
	}
	if !strings.Contains(got, strings.Repeat("x", 500)+"…") {
		t.Error("preview should keep the first 500 chars with ellipsis")
	}
}

func TestContinuationPromptNoFailures(t *testing.T) {
	ok := tools.Ok("fine")
	ok.Tool = "query_database"
	got := continuationPrompt([]*tools.Result{ok}, 500)
	if strings.Contains(got, "Do not retry") {
		t.Error("retry guidance should only appear after failures")
	}
}

func TestIsCodeQuery(t *testing.T) {
	triggers := []string{"code example", "python code"}
	tests := []struct {
		query string
		want  bool
	}{
		{"show me a code example", true},
		{"Show Me A CODE EXAMPLE", true},
		{"write python code to parse this", true},
		{"what were sales last month", false},
		{"decode this for me", false},
	}
	for _, tt := range tests {
		if got := IsCodeQuery(tt.query, triggers); got != tt.want {
			t.Errorf("IsCodeQuery(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

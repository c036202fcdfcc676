package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/nextlevelbuilder/datalens/internal/tools"
)

// systemPrompt builds the preamble for a turn: role, schema, tool
// catalogue, and the ground rules the loop depends on.
func systemPrompt(schemaSummary string, descriptors []tools.Descriptor, now time.Time) string {
	var b strings.Builder

	b.WriteString("You are a data analyst assistant for an analytics database. ")
	b.WriteString("Answer questions by querying the database and building visualizations with the available tools.\n\n")

	fmt.Fprintf(&b, "Current date: %s\n\n", now.Format("2006-01-02"))

	if schemaSummary != "" {
		b.WriteString("Database schema:\n")
		b.WriteString(schemaSummary)
		b.WriteString("\n\n")
	}

	if len(descriptors) > 0 {
		b.WriteString("Available tools:\n")
		for _, d := range descriptors {
			fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
		}
		b.WriteString("\n")
	}

	b.WriteString("Rules:\n")
	b.WriteString("- Only read from the database; write statements are rejected.\n")
	b.WriteString("- Prefer the composite visualization tools (chart, table, histogram) when the user wants to see data; they run the query and build the output in one call.\n")
	b.WriteString("- When asked for runnable code, execute it with the sandbox tool before presenting it.\n")
	b.WriteString("- Earlier messages in this conversation are available to you; use them to resolve follow-up questions.\n")
	b.WriteString("- When you have what you need, answer directly without calling more tools.\n")

	return b.String()
}

// continuationPrompt summarizes the last batch of tool results for the next
// reasoning step. Each result is previewed and tagged so the model can tell
// failures from data.
func continuationPrompt(results []*tools.Result, previewChars int) string {
	var b strings.Builder
	b.WriteString("Tool results from this step:\n")

	anyFailed := false
	for _, res := range results {
		tag := "SUCCESS"
		if !res.Success {
			tag = "FAILED"
			anyFailed = true
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", tag, res.Tool, preview(res.Content, previewChars))
	}

	b.WriteString("\nContinue working toward the user's goal.")
	if anyFailed {
		b.WriteString(" Do not retry a failed call with identical arguments; fix the cause or take a different approach.")
	}
	b.WriteString(" If the goal is achieved, answer the user without calling more tools.")
	return b.String()
}

// failurePrompt asks the model to explain repeated tool failures instead of
// continuing the loop.
func failurePrompt() string {
	return "The tool calls above kept failing. Stop using tools. " +
		"Explain to the user in plain language what went wrong and suggest how they could rephrase or narrow the request."
}

// capPrompt asks the model to wrap up when the iteration cap is reached.
func capPrompt() string {
	return "You have used all available tool steps for this turn. " +
		"Summarize what you found so far for the user without calling more tools."
}

func preview(s string, n int) string {
	if n <= 0 {
		n = 500
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}

// IsCodeQuery reports whether the query asks for runnable code, which
// disables the first-step conversational shortcut.
func IsCodeQuery(query string, triggers []string) bool {
	q := strings.ToLower(query)
	for _, t := range triggers {
		if strings.Contains(q, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

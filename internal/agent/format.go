package agent

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/datalens/internal/tools"
	"github.com/nextlevelbuilder/datalens/pkg/protocol"
)

// turnOutcome carries everything the formatter needs from a finished loop.
type turnOutcome struct {
	finalAnswer    string
	reasoning      []string
	results        []*tools.Result
	codeQuery      bool
	conversational bool
	circuitBroken  bool
	capReached     bool
	providerFailed bool
}

// buildRecord shapes a finished turn into the stable output record. The
// richest renderable result wins: visualization over tabular data over text.
func buildRecord(o *turnOutcome) *protocol.TurnRecord {
	rec := &protocol.TurnRecord{
		Type:         protocol.RecordText,
		Response:     strings.TrimSpace(o.finalAnswer),
		Reasoning:    strings.Join(o.reasoning, " → "),
		CurrentStep:  StepCompleted,
		GoalAchieved: true,
	}
	if rec.Response == "" {
		rec.Response = "I wasn't able to produce an answer for that request."
		rec.GoalAchieved = false
	}

	// last SQL statement seen, regardless of outcome
	for i := len(o.results) - 1; i >= 0; i-- {
		if o.results[i].SQLQuery != "" {
			rec.SQLQuery = o.results[i].SQLQuery
			break
		}
	}

	if viz := lastVisualization(o.results); viz != nil {
		rec.Type = protocol.RecordVisualization
		rec.Visualization = viz
	} else if data := lastTabularData(o.results); data != nil {
		rec.Type = protocol.RecordData
		rec.Data = data
	}

	switch {
	case o.providerFailed:
		rec.Type = protocol.RecordError
		rec.CurrentStep = StepModelError
		rec.GoalAchieved = false
	case o.circuitBroken:
		// deliberate stop: the turn is done and the explanation is the
		// answer, so the goal stands achieved
		rec.CurrentStep = StepFailuresExplained
		rec.GoalAchieved = true
	case o.capReached:
		rec.CurrentStep = StepMaxIterations
		rec.GoalAchieved = false
	case o.conversational:
		rec.CurrentStep = StepConversational
	}

	// Code policy: an answer that shows runnable code must have gone
	// through the sandbox first.
	if containsExecutableCode(rec.Response) && !executedCode(o.results) {
		slog.Warn("answer contains an unexecuted code block")
		rec.GoalAchieved = false
		rec.CurrentStep = StepCodeExecRequired
	}

	return rec
}

// lastVisualization returns the payload of the most recent successful
// visualization tool result.
func lastVisualization(results []*tools.Result) map[string]any {
	for i := len(results) - 1; i >= 0; i-- {
		if !results[i].Success {
			continue
		}
		if tools.ParseVizPayload(results[i].Content) == nil {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(results[i].Content), &m); err == nil {
			return m
		}
	}
	return nil
}

// lastTabularData returns rows from the most recent successful result whose
// content is a JSON array of objects.
func lastTabularData(results []*tools.Result) []map[string]any {
	for i := len(results) - 1; i >= 0; i-- {
		if !results[i].Success {
			continue
		}
		trimmed := strings.TrimSpace(results[i].Content)
		if !strings.HasPrefix(trimmed, "[") {
			continue
		}
		var rows []map[string]any
		if err := json.Unmarshal([]byte(trimmed), &rows); err == nil && len(rows) > 0 {
			return rows
		}
	}
	return nil
}

// executableFenceLangs are fence tags whose code must run in the sandbox
// before it may be shown. Markup and query languages (sql, json, yaml, ...)
// are exempt.
var executableFenceLangs = map[string]bool{
	"python": true, "javascript": true, "js": true, "java": true,
	"cpp": true, "c": true, "go": true, "rust": true, "r": true, "julia": true,
}

// containsExecutableCode reports whether s has a fenced code block tagged
// with an executable language.
func containsExecutableCode(s string) bool {
	for {
		i := strings.Index(s, "```")
		if i < 0 {
			return false
		}
		s = s[i+3:]
		nl := strings.IndexByte(s, '\n')
		if nl < 0 {
			return false
		}
		if executableFenceLangs[strings.ToLower(strings.TrimSpace(s[:nl]))] {
			return true
		}
		s = s[nl+1:]
	}
}

func executedCode(results []*tools.Result) bool {
	for _, r := range results {
		if r.Success && r.Tool == "execute_javascript" {
			return true
		}
	}
	return false
}

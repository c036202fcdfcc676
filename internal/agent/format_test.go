package agent

import (
	"testing"

	"github.com/nextlevelbuilder/datalens/internal/tools"
	"github.com/nextlevelbuilder/datalens/pkg/protocol"
)

func okResult(tool, content, sql string) *tools.Result {
	r := tools.Ok(content)
	r.Tool = tool
	r.SQLQuery = sql
	return r
}

func TestBuildRecordTextFallback(t *testing.T) {
	rec := buildRecord(&turnOutcome{finalAnswer: "plain answer"})
	if rec.Type != protocol.RecordText || rec.Response != "plain answer" {
		t.Errorf("record = %+v", rec)
	}
	if !rec.GoalAchieved || rec.CurrentStep != StepCompleted {
		t.Errorf("goal=%v step=%s", rec.GoalAchieved, rec.CurrentStep)
	}
}

func TestBuildRecordEmptyAnswer(t *testing.T) {
	rec := buildRecord(&turnOutcome{finalAnswer: "   "})
	if rec.Response == "" {
		t.Error("empty answer must get fallback text")
	}
	if rec.GoalAchieved {
		t.Error("empty answer must not achieve the goal")
	}
}

func TestBuildRecordDataPriority(t *testing.T) {
	o := &turnOutcome{
		finalAnswer: "numbers below",
		results: []*tools.Result{
			okResult("query_database", `[{"a":1}]`, "SELECT a"),
		},
	}
	rec := buildRecord(o)
	if rec.Type != protocol.RecordData || len(rec.Data) != 1 {
		t.Errorf("record = %+v", rec)
	}
	if rec.SQLQuery != "SELECT a" {
		t.Errorf("sql_query = %q", rec.SQLQuery)
	}
}

func TestBuildRecordVisualizationBeatsData(t *testing.T) {
	o := &turnOutcome{
		finalAnswer: "chart below",
		results: []*tools.Result{
			okResult("create_chart_from_data", `{"kind":"chart","title":"T"}`, "SELECT 1"),
			okResult("query_database", `[{"a":1}]`, "SELECT a"),
		},
	}
	rec := buildRecord(o)
	if rec.Type != protocol.RecordVisualization {
		t.Errorf("type = %s, want visualization", rec.Type)
	}
	if rec.Visualization["kind"] != "chart" {
		t.Errorf("visualization = %v", rec.Visualization)
	}
	// most recent SQL wins
	if rec.SQLQuery != "SELECT a" {
		t.Errorf("sql_query = %q", rec.SQLQuery)
	}
}

func TestBuildRecordFailedResultsIgnored(t *testing.T) {
	failed := tools.Fail(`[{"a":1}]`)
	failed.Tool = "query_database"
	rec := buildRecord(&turnOutcome{finalAnswer: "x", results: []*tools.Result{failed}})
	if rec.Type != protocol.RecordText {
		t.Errorf("type = %s, failed result content must not surface as data", rec.Type)
	}
}

func TestBuildRecordReasoningJoined(t *testing.T) {
	rec := buildRecord(&turnOutcome{
		finalAnswer: "x",
		reasoning:   []string{"look at schema", "query sales"},
	})
	if rec.Reasoning != "look at schema → query sales" {
		t.Errorf("reasoning = %q", rec.Reasoning)
	}
}

func TestBuildRecordCodePolicy(t *testing.T) {
	answer := "Use this:\n```js\n1+1\n```"

	// the check applies to every answer, not just code-triggered queries
	rec := buildRecord(&turnOutcome{finalAnswer: answer})
	if rec.GoalAchieved || rec.CurrentStep != StepCodeExecRequired {
		t.Errorf("unexecuted code: goal=%v step=%s", rec.GoalAchieved, rec.CurrentStep)
	}

	// executed code passes the policy
	executed := okResult("execute_javascript", "=> 2", "")
	rec = buildRecord(&turnOutcome{finalAnswer: answer, codeQuery: true, results: []*tools.Result{executed}})
	if !rec.GoalAchieved {
		t.Error("executed code answer should achieve the goal")
	}

	// non-executable fences are exempt
	rec = buildRecord(&turnOutcome{finalAnswer: "Try:\n```sql\nSELECT 1;\n```", codeQuery: true})
	if !rec.GoalAchieved {
		t.Error("sql fence must not trip the code policy")
	}
}

func TestContainsExecutableCode(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"no code here", false},
		{"```python\nprint(1)\n```", true},
		{"prose\n```Javascript\nx\n```\nmore", true},
		{"```go\nfmt.Println(1)\n```", true},
		{"```sql\nSELECT 1;\n```", false},
		{"```json\n{}\n```", false},
		{"```\nplain fence\n```", false},
		{"dangling ``` fence", false},
	}
	for _, tc := range cases {
		if got := containsExecutableCode(tc.text); got != tc.want {
			t.Errorf("containsExecutableCode(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestBuildRecordTerminalFlags(t *testing.T) {
	// the breaker ends the turn on purpose: the explanation is the answer
	rec := buildRecord(&turnOutcome{finalAnswer: "the table is missing", circuitBroken: true})
	if rec.Type != protocol.RecordText || !rec.GoalAchieved || rec.CurrentStep != StepFailuresExplained {
		t.Errorf("circuit broken record = %+v", rec)
	}

	rec = buildRecord(&turnOutcome{finalAnswer: "model is down", providerFailed: true})
	if rec.Type != protocol.RecordError || rec.GoalAchieved || rec.CurrentStep != StepModelError {
		t.Errorf("provider failed record = %+v", rec)
	}

	rec = buildRecord(&turnOutcome{finalAnswer: "partial", capReached: true})
	if rec.GoalAchieved || rec.CurrentStep != StepMaxIterations {
		t.Errorf("cap reached record = %+v", rec)
	}

	rec = buildRecord(&turnOutcome{finalAnswer: "hi", conversational: true})
	if !rec.GoalAchieved || rec.CurrentStep != StepConversational {
		t.Errorf("conversational record = %+v", rec)
	}
}

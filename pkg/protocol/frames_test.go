package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"query", `{"type":"QUERY","payload":{"query":"hi"}}`, "QUERY", false},
		{"legacy", `{"type":"user_query"}`, "user_query", false},
		{"ping", `{"type":"PING"}`, "PING", false},
		{"empty type", `{"payload":{}}`, "", false},
		{"invalid json", `{type: QUERY}`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseType([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseType error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseType = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsQueryType(t *testing.T) {
	for _, alias := range []string{TypeQuery, TypeQueryLegacy, TypeQueryLegacy2} {
		if !IsQueryType(alias) {
			t.Errorf("IsQueryType(%q) = false, want true", alias)
		}
	}
	if IsQueryType(TypePing) {
		t.Error("IsQueryType(PING) = true, want false")
	}
}

func TestNewEnvelopeRoundTrip(t *testing.T) {
	env := NewEnvelope(TypeResponse, "msg-1", TurnRecord{
		Type:         RecordText,
		Response:     "hello",
		Reasoning:    "step one",
		CurrentStep:  "completed",
		GoalAchieved: true,
	})
	if env.Type != TypeResponse || env.MessageID != "msg-1" {
		t.Fatalf("envelope header mismatch: %+v", env)
	}
	if env.Timestamp == "" {
		t.Error("timestamp not set")
	}

	var rec TurnRecord
	if err := json.Unmarshal(env.Payload, &rec); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if rec.Response != "hello" || !rec.GoalAchieved {
		t.Errorf("payload round trip mismatch: %+v", rec)
	}
}

func TestTurnRecordStableFieldNames(t *testing.T) {
	rec := TurnRecord{
		Type:          RecordVisualization,
		Response:      "done",
		Reasoning:     "a → b",
		SQLQuery:      "SELECT 1",
		Data:          []map[string]any{{"n": 1}},
		Visualization: map[string]any{"kind": "chart"},
		CurrentStep:   "completed",
		GoalAchieved:  true,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"type", "response", "reasoning", "sql_query", "data", "visualization", "current_step", "goal_achieved"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing stable field %q", key)
		}
	}
}

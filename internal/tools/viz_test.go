package tools

import (
	"encoding/json"
	"testing"
)

func TestParseVizPayload(t *testing.T) {
	chart := VizPayload{Kind: VizChart, Title: "Sales", ChartType: "bar", XAxis: "region", YAxis: "total"}
	raw, _ := json.Marshal(chart)

	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"chart payload", string(raw), true},
		{"plain text", "just some text", false},
		{"json without kind", `{"title": "x"}`, false},
		{"unknown kind", `{"kind": "gauge"}`, false},
		{"not json", "{broken", false},
		{"leading whitespace", "  " + string(raw), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseVizPayload(tt.content)
			if (got != nil) != tt.want {
				t.Errorf("ParseVizPayload(%q) = %v, want payload=%v", tt.content, got, tt.want)
			}
		})
	}

	p := ParseVizPayload(string(raw))
	if p.ChartType != "bar" || p.XAxis != "region" {
		t.Errorf("payload fields lost: %+v", p)
	}
}

func TestColumnsOf(t *testing.T) {
	rows := []map[string]any{{"b": 1, "a": 2, "c": 3}}
	got := ColumnsOf(rows)
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("cols[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if ColumnsOf(nil) != nil {
		t.Error("empty rows should yield nil columns")
	}
}

func TestNumericColumn(t *testing.T) {
	rows := []map[string]any{
		{"v": float64(1.5)},
		{"v": int64(2)},
		{"v": "3.5"},
		{"v": "not a number"},
		{"v": nil},
	}
	got := numericColumn(rows, "v")
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0] != 1.5 || got[1] != 2 || got[2] != 3.5 {
		t.Errorf("values = %v", got)
	}
}

func TestBucketValues(t *testing.T) {
	values := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	bins := BucketValues(values, 5)
	if len(bins) != 5 {
		t.Fatalf("len(bins) = %d, want 5", len(bins))
	}
	total := 0
	for _, b := range bins {
		total += b.Count
	}
	if total != len(values) {
		t.Errorf("total count = %d, want %d", total, len(values))
	}
	// max value lands in the last bin, not out of range
	if bins[4].Count == 0 {
		t.Error("last bin should contain the maximum value")
	}
}

func TestBucketValuesDegenerate(t *testing.T) {
	bins := BucketValues([]float64{5, 5, 5}, 10)
	if len(bins) != 1 {
		t.Fatalf("len(bins) = %d, want 1 for constant values", len(bins))
	}
	if bins[0].Count != 3 {
		t.Errorf("count = %d, want 3", bins[0].Count)
	}

	bins = BucketValues([]float64{1, 2}, 0)
	if len(bins) != 10 {
		t.Errorf("len(bins) = %d, want default 10", len(bins))
	}

	if bins := BucketValues(nil, 5); bins != nil {
		t.Errorf("BucketValues(nil) = %v, want nil", bins)
	}
}

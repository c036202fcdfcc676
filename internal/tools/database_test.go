package tools

import (
	"testing"
	"time"
)

func TestCheckReadOnly(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantErr bool
	}{
		{"simple select", "SELECT * FROM orders", false},
		{"lowercase select", "select count(*) from users", false},
		{"leading whitespace", "  \n SELECT 1", false},
		{"cte", "WITH t AS (SELECT 1) SELECT * FROM t", false},
		{"insert", "INSERT INTO orders VALUES (1)", true},
		{"update", "UPDATE users SET name = 'x'", true},
		{"delete", "DELETE FROM users", true},
		{"drop", "DROP TABLE users", true},
		{"truncate", "TRUNCATE orders", true},
		{"stacked mutation", "SELECT 1; DROP TABLE users", true},
		{"explain", "EXPLAIN SELECT 1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkReadOnly(tt.query)
			if (err != nil) != tt.wantErr {
				t.Errorf("checkReadOnly(%q) error = %v, wantErr %v", tt.query, err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeRow(t *testing.T) {
	ts := time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)
	row := map[string]any{
		"name":    []byte("widgets"),
		"sold_at": ts,
		"count":   int64(7),
	}
	normalizeRow(row)

	if row["name"] != "widgets" {
		t.Errorf("name = %v, want widgets", row["name"])
	}
	if row["sold_at"] != "2026-03-15T09:30:00Z" {
		t.Errorf("sold_at = %v, want RFC3339", row["sold_at"])
	}
	if row["count"] != int64(7) {
		t.Errorf("count = %v, want untouched int64", row["count"])
	}
}

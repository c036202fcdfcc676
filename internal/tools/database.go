package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const maxQueryRows = 1000

// forbiddenSQL blocks statements that mutate state. The analytics database
// is read-only from the agent's perspective.
var forbiddenSQL = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|truncate|grant|revoke|copy)\b`)

// QueryTool executes read-only SQL against the analytics database.
type QueryTool struct {
	db *sqlx.DB
}

// NewQueryTool creates the query_database tool.
func NewQueryTool(db *sqlx.DB) *QueryTool {
	return &QueryTool{db: db}
}

func (t *QueryTool) Name() string { return "query_database" }

func (t *QueryTool) Description() string {
	return "Execute a read-only SQL SELECT query against the analytics database and return rows as JSON."
}

func (t *QueryTool) Schema() *ArgSchema {
	return NewSchema(
		ArgField{Name: "sql", Type: ArgString, Description: "SQL SELECT statement to execute", Required: true},
	)
}

func (t *QueryTool) Execute(ctx context.Context, args map[string]any) *Result {
	query := strings.TrimSpace(stringArg(args, "sql"))
	if query == "" {
		return Fail("sql argument is empty")
	}
	if err := checkReadOnly(query); err != nil {
		return Fail(err.Error()).WithSQL(query)
	}

	rows, err := QueryRows(ctx, t.db, query)
	if err != nil {
		return Fail(fmt.Sprintf("query failed: %v", err)).WithSQL(query)
	}

	data, err := json.Marshal(rows)
	if err != nil {
		return Fail(fmt.Sprintf("encode rows: %v", err)).WithSQL(query)
	}
	return Ok(string(data)).WithSQL(query)
}

func checkReadOnly(query string) error {
	head := strings.ToLower(strings.TrimSpace(query))
	if !strings.HasPrefix(head, "select") && !strings.HasPrefix(head, "with") {
		return fmt.Errorf("only SELECT queries are allowed")
	}
	if forbiddenSQL.MatchString(query) {
		return fmt.Errorf("query contains a forbidden statement keyword")
	}
	return nil
}

// QueryRows runs a query and returns rows as JSON-friendly maps.
// Shared by the query tool and the composite visualization tools.
func QueryRows(ctx context.Context, db *sqlx.DB, query string) ([]map[string]any, error) {
	rows, err := db.QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]map[string]any, 0, 16)
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		normalizeRow(row)
		out = append(out, row)
		if len(out) >= maxQueryRows {
			break
		}
	}
	return out, rows.Err()
}

// normalizeRow converts driver types that do not marshal cleanly to JSON.
func normalizeRow(row map[string]any) {
	for k, v := range row {
		switch t := v.(type) {
		case []byte:
			row[k] = string(t)
		case time.Time:
			row[k] = t.UTC().Format(time.RFC3339)
		}
	}
}

// SchemaTool returns a summary of the analytics database schema.
type SchemaTool struct {
	db *sqlx.DB
}

// NewSchemaTool creates the get_database_schema tool.
func NewSchemaTool(db *sqlx.DB) *SchemaTool {
	return &SchemaTool{db: db}
}

func (t *SchemaTool) Name() string { return "get_database_schema" }

func (t *SchemaTool) Description() string {
	return "Return the tables and columns of the analytics database, with types."
}

func (t *SchemaTool) Schema() *ArgSchema { return NewSchema() }

const schemaQuery = `
SELECT table_name, column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema = 'public'
ORDER BY table_name, ordinal_position`

func (t *SchemaTool) Execute(ctx context.Context, args map[string]any) *Result {
	summary, err := SchemaSummary(ctx, t.db)
	if err != nil {
		return Fail(fmt.Sprintf("schema lookup failed: %v", err))
	}
	return Ok(summary)
}

// SchemaSummary renders a compact table/column listing for prompts.
func SchemaSummary(ctx context.Context, db *sqlx.DB) (string, error) {
	rows, err := QueryRows(ctx, db, schemaQuery)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	var current string
	for _, row := range rows {
		table, _ := row["table_name"].(string)
		column, _ := row["column_name"].(string)
		dtype, _ := row["data_type"].(string)
		if table != current {
			if current != "" {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "- %s:", table)
			current = table
		}
		fmt.Fprintf(&b, " %s(%s)", column, dtype)
	}
	if b.Len() == 0 {
		return "(no tables found)", nil
	}
	return b.String(), nil
}

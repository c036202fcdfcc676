package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Visualization payload kinds. The response formatter promotes any tool
// result whose content parses as one of these to the primary response body.
const (
	VizChart     = "chart"
	VizTable     = "table"
	VizHistogram = "histogram"
)

var chartTypes = []string{"bar", "line", "pie", "scatter", "area"}

// VizPayload is the renderable visualization descriptor. Rendering to
// HTML/JS is the frontend's job; the backend only ships the descriptor.
type VizPayload struct {
	Kind      string           `json:"kind"`
	Title     string           `json:"title"`
	ChartType string           `json:"chart_type,omitempty"`
	XAxis     string           `json:"x_axis,omitempty"`
	YAxis     string           `json:"y_axis,omitempty"`
	Columns   []string         `json:"columns,omitempty"`
	Data      []map[string]any `json:"data,omitempty"`
	Bins      []HistogramBin   `json:"bins,omitempty"`
}

// HistogramBin is one bucket of a server-side computed histogram.
type HistogramBin struct {
	Label string  `json:"label"`
	Lo    float64 `json:"lo"`
	Hi    float64 `json:"hi"`
	Count int     `json:"count"`
}

// ParseVizPayload attempts to decode a tool result content string as a
// visualization payload. Returns nil if the content is not one.
func ParseVizPayload(content string) *VizPayload {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "{") {
		return nil
	}
	var p VizPayload
	if err := json.Unmarshal([]byte(trimmed), &p); err != nil {
		return nil
	}
	switch p.Kind {
	case VizChart, VizTable, VizHistogram:
		return &p
	}
	return nil
}

// composite tool plumbing: query → optional processing code → payload.
// Mirrors the single-call workflow of the source composite data tools so no
// raw row data round-trips through the model.
func fetchAndProcess(ctx context.Context, db *sqlx.DB, query, processingCode string) ([]map[string]any, error) {
	if err := checkReadOnly(query); err != nil {
		return nil, err
	}
	rows, err := QueryRows(ctx, db, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	if strings.TrimSpace(processingCode) != "" {
		rows, err = RunProcessingCode(ctx, processingCode, rows)
		if err != nil {
			return nil, fmt.Errorf("processing code failed: %w", err)
		}
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("query returned no rows")
	}
	return rows, nil
}

func payloadResult(p *VizPayload, sql string) *Result {
	data, err := json.Marshal(p)
	if err != nil {
		return Fail(fmt.Sprintf("encode visualization: %v", err)).WithSQL(sql)
	}
	return Ok(string(data)).WithSQL(sql)
}

// ChartTool builds a chart descriptor from a database query.
type ChartTool struct {
	db *sqlx.DB
}

// NewChartTool creates the create_chart_from_data tool.
func NewChartTool(db *sqlx.DB) *ChartTool { return &ChartTool{db: db} }

func (t *ChartTool) Name() string { return "create_chart_from_data" }

func (t *ChartTool) Description() string {
	return "Run a SQL query, optionally post-process rows with JavaScript, and produce a chart visualization."
}

func (t *ChartTool) Schema() *ArgSchema {
	return NewSchema(
		ArgField{Name: "title", Type: ArgString, Description: "Chart title", Required: true},
		ArgField{Name: "chart_type", Type: ArgString, Description: "Chart style", Required: true, Enum: chartTypes},
		ArgField{Name: "sql_query", Type: ArgString, Description: "SELECT query producing the data", Required: true},
		ArgField{Name: "x_axis", Type: ArgString, Description: "Column for the x axis", Required: true},
		ArgField{Name: "y_axis", Type: ArgString, Description: "Column for the y axis", Required: true},
		ArgField{Name: "processing_code", Type: ArgString, Description: "Optional JavaScript: process(data) => rows"},
	)
}

func (t *ChartTool) Execute(ctx context.Context, args map[string]any) *Result {
	query := stringArg(args, "sql_query")
	rows, err := fetchAndProcess(ctx, t.db, query, stringArg(args, "processing_code"))
	if err != nil {
		return Fail(err.Error()).WithSQL(query)
	}
	return payloadResult(&VizPayload{
		Kind:      VizChart,
		Title:     stringArg(args, "title"),
		ChartType: stringArg(args, "chart_type"),
		XAxis:     stringArg(args, "x_axis"),
		YAxis:     stringArg(args, "y_axis"),
		Data:      rows,
	}, query)
}

// TableTool builds a table descriptor from a database query.
type TableTool struct {
	db *sqlx.DB
}

// NewTableTool creates the create_table_from_data tool.
func NewTableTool(db *sqlx.DB) *TableTool { return &TableTool{db: db} }

func (t *TableTool) Name() string { return "create_table_from_data" }

func (t *TableTool) Description() string {
	return "Run a SQL query, optionally post-process rows with JavaScript, and produce a data table visualization."
}

func (t *TableTool) Schema() *ArgSchema {
	return NewSchema(
		ArgField{Name: "title", Type: ArgString, Description: "Table title", Required: true},
		ArgField{Name: "sql_query", Type: ArgString, Description: "SELECT query producing the data", Required: true},
		ArgField{Name: "columns", Type: ArgArray, Description: "Column order; defaults to first-row keys"},
		ArgField{Name: "processing_code", Type: ArgString, Description: "Optional JavaScript: process(data) => rows"},
	)
}

func (t *TableTool) Execute(ctx context.Context, args map[string]any) *Result {
	query := stringArg(args, "sql_query")
	rows, err := fetchAndProcess(ctx, t.db, query, stringArg(args, "processing_code"))
	if err != nil {
		return Fail(err.Error()).WithSQL(query)
	}

	var columns []string
	if raw, ok := args["columns"].([]any); ok {
		for _, c := range raw {
			if s, ok := c.(string); ok {
				columns = append(columns, s)
			}
		}
	}
	if len(columns) == 0 {
		columns = ColumnsOf(rows)
	}

	return payloadResult(&VizPayload{
		Kind:    VizTable,
		Title:   stringArg(args, "title"),
		Columns: columns,
		Data:    rows,
	}, query)
}

// HistogramTool builds a histogram descriptor from a database query,
// bucketing values server-side.
type HistogramTool struct {
	db *sqlx.DB
}

// NewHistogramTool creates the create_histogram_from_data tool.
func NewHistogramTool(db *sqlx.DB) *HistogramTool { return &HistogramTool{db: db} }

func (t *HistogramTool) Name() string { return "create_histogram_from_data" }

func (t *HistogramTool) Description() string {
	return "Run a SQL query and produce a histogram of one numeric column."
}

func (t *HistogramTool) Schema() *ArgSchema {
	return NewSchema(
		ArgField{Name: "title", Type: ArgString, Description: "Histogram title", Required: true},
		ArgField{Name: "sql_query", Type: ArgString, Description: "SELECT query producing the data", Required: true},
		ArgField{Name: "value_field", Type: ArgString, Description: "Numeric column to bucket", Required: true},
		ArgField{Name: "bin_count", Type: ArgInteger, Description: "Number of buckets (default 10)"},
		ArgField{Name: "processing_code", Type: ArgString, Description: "Optional JavaScript: process(data) => rows"},
	)
}

func (t *HistogramTool) Execute(ctx context.Context, args map[string]any) *Result {
	query := stringArg(args, "sql_query")
	rows, err := fetchAndProcess(ctx, t.db, query, stringArg(args, "processing_code"))
	if err != nil {
		return Fail(err.Error()).WithSQL(query)
	}

	field := stringArg(args, "value_field")
	values := numericColumn(rows, field)
	if len(values) == 0 {
		return Fail(fmt.Sprintf("column %q has no numeric values", field)).WithSQL(query)
	}

	bins := BucketValues(values, intArg(args, "bin_count", 10))
	return payloadResult(&VizPayload{
		Kind:  VizHistogram,
		Title: stringArg(args, "title"),
		XAxis: field,
		Bins:  bins,
	}, query)
}

// ColumnsOf returns the sorted keys of the first row.
func ColumnsOf(rows []map[string]any) []string {
	if len(rows) == 0 {
		return nil
	}
	cols := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func numericColumn(rows []map[string]any, field string) []float64 {
	out := make([]float64, 0, len(rows))
	for _, row := range rows {
		switch v := row[field].(type) {
		case float64:
			out = append(out, v)
		case int:
			out = append(out, float64(v))
		case int64:
			out = append(out, float64(v))
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				out = append(out, f)
			}
		}
	}
	return out
}

// BucketValues splits values into binCount equal-width buckets. An empty
// input yields no bins.
func BucketValues(values []float64, binCount int) []HistogramBin {
	if len(values) == 0 {
		return nil
	}
	if binCount < 1 {
		binCount = 10
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo == hi {
		return []HistogramBin{{
			Label: formatBinLabel(lo, hi),
			Lo:    lo, Hi: hi, Count: len(values),
		}}
	}

	width := (hi - lo) / float64(binCount)
	bins := make([]HistogramBin, binCount)
	for i := range bins {
		bins[i].Lo = lo + float64(i)*width
		bins[i].Hi = bins[i].Lo + width
		bins[i].Label = formatBinLabel(bins[i].Lo, bins[i].Hi)
	}
	for _, v := range values {
		idx := int((v - lo) / width)
		if idx >= binCount {
			idx = binCount - 1
		}
		bins[idx].Count++
	}
	return bins
}

func formatBinLabel(lo, hi float64) string {
	return fmt.Sprintf("%.4g–%.4g", lo, hi)
}

package tools

import "time"

// Result is the unified return type from tool execution. Success is an
// explicit flag set at the invocation boundary; it is never inferred from
// the content text.
type Result struct {
	CallID    string    `json:"call_id"`
	Tool      string    `json:"tool"`
	Success   bool      `json:"success"`
	Content   string    `json:"content"`
	SQLQuery  string    `json:"sql_query,omitempty"` // set by database-backed tools
	Iteration int       `json:"iteration"`
	Timestamp time.Time `json:"timestamp"`
}

// Ok builds a successful result.
func Ok(content string) *Result {
	return &Result{Success: true, Content: content}
}

// Fail builds a failed result with a human-readable reason.
func Fail(message string) *Result {
	return &Result{Success: false, Content: message}
}

// WithSQL annotates the result with the SQL statement that produced it.
func (r *Result) WithSQL(sql string) *Result {
	r.SQLQuery = sql
	return r
}

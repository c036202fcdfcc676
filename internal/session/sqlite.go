package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/datalens/internal/providers"
)

// SQLiteCheckpointer persists session history in a local SQLite database.
// Each session is one row holding the full history as a JSON document.
type SQLiteCheckpointer struct {
	db *sql.DB
}

// NewSQLiteCheckpointer opens (or creates) the database at path.
func NewSQLiteCheckpointer(path string) (*SQLiteCheckpointer, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	c := &SQLiteCheckpointer{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("session checkpoint store opened", "path", path)
	return c, nil
}

func (c *SQLiteCheckpointer) migrate() error {
	_, err := c.db.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		history TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`)
	return err
}

func (c *SQLiteCheckpointer) Load(ctx context.Context, sessionID string) ([]providers.Message, error) {
	var doc string
	err := c.db.QueryRowContext(ctx,
		`SELECT history FROM sessions WHERE session_id = ?`, sessionID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	var history []providers.Message
	if err := json.Unmarshal([]byte(doc), &history); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return history, nil
}

func (c *SQLiteCheckpointer) Save(ctx context.Context, sessionID string, history []providers.Message) error {
	doc, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sessionID, err)
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, history, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET history = excluded.history, updated_at = excluded.updated_at`,
		sessionID, string(doc), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save session %s: %w", sessionID, err)
	}
	return nil
}

func (c *SQLiteCheckpointer) Delete(ctx context.Context, sessionID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

func (c *SQLiteCheckpointer) List(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT session_id FROM sessions ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (c *SQLiteCheckpointer) Close() error {
	return c.db.Close()
}

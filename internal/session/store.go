// Package session holds conversation history per session. The in-process
// backup map is authoritative for reads; a checkpoint store, when configured,
// persists history across restarts and is consulted only on a backup miss.
package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/nextlevelbuilder/datalens/internal/providers"
)

// Checkpointer persists session history outside the process. Writes are
// best-effort: a failing checkpointer degrades durability, never a turn.
type Checkpointer interface {
	Load(ctx context.Context, sessionID string) ([]providers.Message, error)
	Save(ctx context.Context, sessionID string, history []providers.Message) error
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]string, error)
	Close() error
}

// Store is the dual-path conversation memory.
type Store struct {
	mu     sync.RWMutex
	backup map[string][]providers.Message

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex

	checkpoint Checkpointer // nil = in-memory only
}

// NewStore creates a store. checkpoint may be nil.
func NewStore(checkpoint Checkpointer) *Store {
	return &Store{
		backup:     make(map[string][]providers.Message),
		locks:      make(map[string]*sync.Mutex),
		checkpoint: checkpoint,
	}
}

// TurnLock serializes turns within one session. Concurrent queries for the
// same session queue; different sessions proceed in parallel.
func (s *Store) TurnLock(sessionID string) func() {
	s.lockMu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	s.lockMu.Unlock()

	l.Lock()
	return l.Unlock
}

// History returns a copy of the session's message history. On a backup miss
// the checkpoint store is consulted and, when it has history, the backup is
// repaired from it.
func (s *Store) History(ctx context.Context, sessionID string) []providers.Message {
	s.mu.RLock()
	history, ok := s.backup[sessionID]
	s.mu.RUnlock()
	if ok {
		return copyHistory(history)
	}

	if s.checkpoint == nil {
		return nil
	}
	loaded, err := s.checkpoint.Load(ctx, sessionID)
	if err != nil {
		slog.Warn("checkpoint load failed", "session", sessionID, "error", err)
		return nil
	}
	if len(loaded) == 0 {
		return nil
	}

	s.mu.Lock()
	// a concurrent writer wins over the repair
	if existing, ok := s.backup[sessionID]; ok {
		loaded = existing
	} else {
		s.backup[sessionID] = loaded
	}
	s.mu.Unlock()

	slog.Debug("session repaired from checkpoint", "session", sessionID, "messages", len(loaded))
	return copyHistory(loaded)
}

// Append adds messages to the session and checkpoints the full history
// best-effort.
func (s *Store) Append(ctx context.Context, sessionID string, msgs ...providers.Message) {
	if len(msgs) == 0 {
		return
	}
	s.mu.Lock()
	s.backup[sessionID] = append(s.backup[sessionID], msgs...)
	history := copyHistory(s.backup[sessionID])
	s.mu.Unlock()

	if s.checkpoint != nil {
		if err := s.checkpoint.Save(ctx, sessionID, history); err != nil {
			slog.Warn("checkpoint save failed", "session", sessionID, "error", err)
		}
	}
}

// Replace overwrites the session history, used after pruning.
func (s *Store) Replace(ctx context.Context, sessionID string, history []providers.Message) {
	s.mu.Lock()
	s.backup[sessionID] = copyHistory(history)
	s.mu.Unlock()

	if s.checkpoint != nil {
		if err := s.checkpoint.Save(ctx, sessionID, history); err != nil {
			slog.Warn("checkpoint save failed", "session", sessionID, "error", err)
		}
	}
}

// Clear removes the session from both paths.
func (s *Store) Clear(ctx context.Context, sessionID string) {
	s.mu.Lock()
	delete(s.backup, sessionID)
	s.mu.Unlock()

	if s.checkpoint != nil {
		if err := s.checkpoint.Delete(ctx, sessionID); err != nil {
			slog.Warn("checkpoint delete failed", "session", sessionID, "error", err)
		}
	}
}

// Len reports the number of messages held for a session without touching
// the checkpoint store.
func (s *Store) Len(sessionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.backup[sessionID])
}

// Sessions lists known session IDs across both paths, sorted.
func (s *Store) Sessions(ctx context.Context) []string {
	seen := make(map[string]bool)
	s.mu.RLock()
	for id := range s.backup {
		seen[id] = true
	}
	s.mu.RUnlock()

	if s.checkpoint != nil {
		ids, err := s.checkpoint.List(ctx)
		if err != nil {
			slog.Warn("checkpoint list failed", "error", err)
		}
		for _, id := range ids {
			seen[id] = true
		}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Close releases the checkpoint store.
func (s *Store) Close() error {
	if s.checkpoint == nil {
		return nil
	}
	return s.checkpoint.Close()
}

func copyHistory(history []providers.Message) []providers.Message {
	out := make([]providers.Message, len(history))
	copy(out, history)
	return out
}

package shell

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// maxHistory bounds the per-session command history.
	maxHistory = 200
	// historyTTL expires idle persisted histories.
	historyTTL = 24 * time.Hour
)

// HistoryStore persists a session's history across reconnects. Both
// implementations overwrite the whole slice; histories are small and the
// write path is one command per keystroke at worst.
type HistoryStore interface {
	Load(ctx context.Context, key string) ([]string, error)
	Save(ctx context.Context, key string, entries []string) error
}

// History is an ordered, bounded command log with arrow-key style cursor
// navigation. Not safe for concurrent use; each terminal session owns one.
type History struct {
	entries []string
	cursor  int
	draft   string
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{}
}

// Restore replaces the history with previously persisted entries.
func (h *History) Restore(entries []string) {
	if len(entries) > maxHistory {
		entries = entries[len(entries)-maxHistory:]
	}
	h.entries = append([]string(nil), entries...)
	h.cursor = len(h.entries)
}

// Add appends a command. Blank lines and immediate repeats are dropped, and
// the oldest entry is evicted once the bound is hit. The cursor snaps back
// to the live end.
func (h *History) Add(command string) {
	defer func() { h.cursor = len(h.entries) }()

	if command == "" {
		return
	}
	if n := len(h.entries); n > 0 && h.entries[n-1] == command {
		return
	}
	h.entries = append(h.entries, command)
	if len(h.entries) > maxHistory {
		h.entries = h.entries[1:]
	}
}

// Prev moves the cursor one step back and returns that entry. draft is the
// line currently being edited; it is kept so Next can restore it.
func (h *History) Prev(draft string) (string, bool) {
	if h.cursor == 0 {
		return "", false
	}
	if h.cursor == len(h.entries) {
		h.draft = draft
	}
	h.cursor--
	return h.entries[h.cursor], true
}

// Next moves the cursor one step forward. Stepping past the newest entry
// returns the saved draft.
func (h *History) Next() (string, bool) {
	if h.cursor >= len(h.entries) {
		return "", false
	}
	h.cursor++
	if h.cursor == len(h.entries) {
		return h.draft, true
	}
	return h.entries[h.cursor], true
}

// Entries returns a copy of the history, oldest first.
func (h *History) Entries() []string {
	return append([]string(nil), h.entries...)
}

// Len returns the number of stored commands.
func (h *History) Len() int {
	return len(h.entries)
}

// MemoryHistoryStore keeps histories in-process. Used when Redis is not
// configured; histories then survive reconnects but not restarts.
type MemoryHistoryStore struct {
	mu       sync.Mutex
	sessions map[string][]string
}

// NewMemoryHistoryStore creates an empty in-process history store.
func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{sessions: make(map[string][]string)}
}

// Load implements HistoryStore.
func (s *MemoryHistoryStore) Load(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sessions[key]...), nil
}

// Save implements HistoryStore.
func (s *MemoryHistoryStore) Save(_ context.Context, key string, entries []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[key] = append([]string(nil), entries...)
	return nil
}

// RedisHistoryStore persists histories in Redis so they survive engine
// restarts. Keys expire after a day of inactivity.
type RedisHistoryStore struct {
	client *redis.Client
}

// NewRedisHistoryStore creates a Redis-backed history store.
func NewRedisHistoryStore(client *redis.Client) *RedisHistoryStore {
	return &RedisHistoryStore{client: client}
}

func historyKey(key string) string {
	return "terminal:history:" + key
}

// Load implements HistoryStore.
func (s *RedisHistoryStore) Load(ctx context.Context, key string) ([]string, error) {
	raw, err := s.client.Get(ctx, historyKey(key)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	var entries []string
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("corrupt history for %s: %w", key, err)
	}
	return entries, nil
}

// Save implements HistoryStore.
func (s *RedisHistoryStore) Save(ctx context.Context, key string, entries []string) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	if err := s.client.Set(ctx, historyKey(key), raw, historyTTL).Err(); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

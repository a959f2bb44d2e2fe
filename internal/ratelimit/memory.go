package ratelimit

import (
	"context"
	"sync"
	"time"
)

type windowEntry struct {
	count     int
	resetTime time.Time
}

// Memory is a process-wide fixed-window limiter. Expired entries are removed
// by Sweep, driven by the cleanup worker.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*windowEntry

	max    int
	window time.Duration
	now    func() time.Time
}

// NewMemory creates an in-memory limiter allowing max requests per window.
func NewMemory(max int, window time.Duration) *Memory {
	return &Memory{
		entries: make(map[string]*windowEntry),
		max:     max,
		window:  window,
		now:     time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Allow implements Limiter.
func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	entry, ok := m.entries[key]

	if !ok || now.After(entry.resetTime) {
		m.entries[key] = &windowEntry{count: 1, resetTime: now.Add(m.window)}
		return true, nil
	}

	if entry.count >= m.max {
		return false, nil
	}

	entry.count++
	return true, nil
}

// Remaining implements Limiter.
func (m *Memory) Remaining(_ context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok || m.now().After(entry.resetTime) {
		return m.max, nil
	}
	if entry.count >= m.max {
		return 0, nil
	}
	return m.max - entry.count, nil
}

// Sweep removes expired windows and returns how many were deleted.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	deleted := 0
	for key, entry := range m.entries {
		if now.After(entry.resetTime) {
			delete(m.entries, key)
			deleted++
		}
	}
	return deleted
}

// Len returns the number of live windows.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

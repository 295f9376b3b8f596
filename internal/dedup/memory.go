package dedup

import (
	"context"
	"sync"
	"time"
)

// Memory is the process-local store. Its contents are lost on restart.
type Memory struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]time.Time), now: time.Now}
}

func (m *Memory) Contains(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	_, ok := m.entries[id]
	m.mu.Unlock()
	return ok, nil
}

func (m *Memory) Insert(_ context.Context, id string) error {
	m.mu.Lock()
	m.entries[id] = m.now()
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]time.Time)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Size(_ context.Context) (int, error) {
	m.mu.Lock()
	n := len(m.entries)
	m.mu.Unlock()
	return n, nil
}

func (m *Memory) Prune(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, at := range m.entries {
		if at.Before(before) {
			delete(m.entries, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) Close() error { return nil }

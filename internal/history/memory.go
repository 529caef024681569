package history

import (
	"context"
	"sync"
)

// DefaultMemoryCap bounds the in-process store. Oldest turns are evicted
// first.
const DefaultMemoryCap = 20

// Memory is an in-process Store with FIFO eviction. Safe for concurrent use.
type Memory struct {
	mu    sync.Mutex
	turns []Turn
	cap   int
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithCap overrides the retention cap. Non-positive values are ignored.
func WithCap(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.cap = n
		}
	}
}

// NewMemory returns an empty Memory store with the default cap.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{cap: DefaultMemoryCap}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Append implements Store. When the cap is reached the oldest turn is
// evicted.
func (m *Memory) Append(ctx context.Context, turn Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turn)
	if len(m.turns) > m.cap {
		m.turns = m.turns[len(m.turns)-m.cap:]
	}
	return nil
}

// Recent implements Store.
func (m *Memory) Recent(ctx context.Context, limit int) ([]Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	turns := m.turns
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

// Clear implements Store.
func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
	return nil
}

// Len returns the number of retained turns.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns)
}

var _ Store = (*Memory)(nil)

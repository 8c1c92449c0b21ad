package locks

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker serializes holders inside a single process.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
	wait  time.Duration
}

type slot struct {
	token chan struct{}
	refs  int
}

// NewMemoryLocker returns an in-process Locker.
func NewMemoryLocker(wait time.Duration) *MemoryLocker {
	return &MemoryLocker{slots: make(map[string]*slot), wait: wait}
}

func (m *MemoryLocker) Lock(ctx context.Context, keys ...string) (Lease, error) {
	return lockAll(ctx, m, m.wait, keys)
}

func (m *MemoryLocker) acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	m.mu.Lock()
	s, ok := m.slots[key]
	if !ok {
		s = &slot{token: make(chan struct{}, 1)}
		m.slots[key] = s
	}
	s.refs++
	m.mu.Unlock()

	select {
	case s.token <- struct{}{}:
		return func(context.Context) error {
			m.release(key, s, true)
			return nil
		}, nil
	case <-ctx.Done():
		m.release(key, s, false)
		return nil, ctx.Err()
	}
}

func (m *MemoryLocker) release(key string, s *slot, held bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if held {
		<-s.token
	}
	s.refs--
	if s.refs == 0 {
		delete(m.slots, key)
	}
}

// size reports how many keys are tracked; used by tests.
func (m *MemoryLocker) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}

package loader

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Memo memoizes an expensive resource load such as reading an engine
// binary. Concurrent callers share one load. A successful value is kept
// for the lifetime of the Memo; a failure is returned to the callers that
// joined it and the next call tries again.
type Memo[T any] struct {
	load  func(ctx context.Context) (T, error)
	group singleflight.Group

	mu     sync.RWMutex
	loaded bool
	value  T
}

// NewMemo creates a memo around load
func NewMemo[T any](load func(ctx context.Context) (T, error)) *Memo[T] {
	return &Memo[T]{load: load}
}

// Get returns the memoized value, loading it on first use
func (m *Memo[T]) Get(ctx context.Context) (T, error) {
	m.mu.RLock()
	if m.loaded {
		v := m.value
		m.mu.RUnlock()
		return v, nil
	}
	m.mu.RUnlock()

	ch := m.group.DoChan("load", func() (any, error) {
		return m.fill(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		v, _ := res.Val.(T)
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// fill runs inside the flight. A caller that missed the fast path while an
// earlier flight was landing finds the value here instead of loading again.
func (m *Memo[T]) fill(ctx context.Context) (any, error) {
	m.mu.RLock()
	if m.loaded {
		v := m.value
		m.mu.RUnlock()
		return v, nil
	}
	m.mu.RUnlock()

	v, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.value, m.loaded = v, true
	m.mu.Unlock()
	return v, nil
}

// Loaded reports whether a value has been memoized
func (m *Memo[T]) Loaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}

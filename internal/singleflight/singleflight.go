// Package singleflight suppresses duplicate concurrent construction work and
// memoises the successful results.
package singleflight

import (
	"context"
	"sync"
)

// Group runs at most one call per key at a time. Callers that arrive while a
// call is in flight wait for it and share its result.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*call[V]
}

type call[V any] struct {
	done chan struct{}

	// written once before done is closed
	val V
	err error

	// guarded by Group.mu
	dups int
}

// Do executes fn for key unless a call for key is already running, in which
// case it waits for that call. shared reports whether the result went to
// more than one caller. A cancelled ctx stops the wait, not fn.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func() (V, error)) (v V, err error, shared bool) {
	if err := ctx.Err(); err != nil {
		return v, err, false
	}

	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*call[V])
	}
	if c, ok := g.m[key]; ok {
		c.dups++
		g.mu.Unlock()
		return wait(ctx, c, true)
	}
	c := &call[V]{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	go g.run(c, key, fn)
	return wait(ctx, c, false)
}

func wait[V any](ctx context.Context, c *call[V], dup bool) (v V, err error, shared bool) {
	select {
	case <-ctx.Done():
		return v, ctx.Err(), false
	case <-c.done:
		return c.val, c.err, dup || c.dups > 0
	}
}

func (g *Group[K, V]) run(c *call[V], key K, fn func() (V, error)) {
	c.val, c.err = fn()

	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()
	close(c.done)
}

// InFlight returns the number of keys currently being processed
func (g *Group[K, V]) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.m)
}

// Memo is a Group that keeps successful results. Failed calls are not
// remembered, so the next caller retries.
type Memo[K comparable, V any] struct {
	group Group[K, V]

	mu   sync.RWMutex
	vals map[K]V
}

// Get returns the memoised value for key, computing it with fn on first use
func (m *Memo[K, V]) Get(ctx context.Context, key K, fn func() (V, error)) (V, error) {
	if v, ok := m.Peek(key); ok {
		return v, nil
	}

	v, err, _ := m.group.Do(ctx, key, func() (V, error) {
		if v, ok := m.Peek(key); ok {
			return v, nil
		}
		v, err := fn()
		if err != nil {
			return v, err
		}
		m.mu.Lock()
		if m.vals == nil {
			m.vals = make(map[K]V)
		}
		m.vals[key] = v
		m.mu.Unlock()
		return v, nil
	})
	return v, err
}

// Peek returns the memoised value for key without computing it
func (m *Memo[K, V]) Peek(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vals[key]
	return v, ok
}

// Len returns the number of memoised values
func (m *Memo[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vals)
}

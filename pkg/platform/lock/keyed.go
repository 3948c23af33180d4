// Package lock provides per-key mutual exclusion for operations that must be
// serialized against themselves, such as badge attribution for a single
// (holder, competency) pair. Two implementations are provided: an in-process
// keyed mutex for single-instance deployments and tests, and a Redis lease
// lock for multi-instance deployments.
package lock

import (
	"context"
	"sync"
)

// Keyed serializes critical sections per key. Acquire blocks until the key is
// free or the context is done. The returned release func must be called
// exactly once.
type Keyed interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Local is an in-process Keyed implementation backed by per-key channels.
type Local struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocal creates an in-process keyed lock.
func NewLocal() *Local {
	return &Local{slots: make(map[string]chan struct{})}
}

func (l *Local) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}
	return slot
}

// Acquire blocks until the key's slot is free or ctx is done.
func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	slot := l.slot(key)
	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

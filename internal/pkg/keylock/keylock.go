// Package keylock provides mutual exclusion keyed by an arbitrary string,
// with context-aware (and therefore bounded) acquisition. It backs the
// per-product and per-user critical sections of the in-memory stores.
package keylock

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// Table is a set of single-holder locks, one per key. Entries are created on
// first use and removed once the last waiter releases, so the table stays
// proportional to the number of contended keys.
type Table struct {
	mu    sync.Mutex
	locks map[string]*entry
}

func New() *Table {
	return &Table{locks: make(map[string]*entry)}
}

// Acquire blocks until the lock for key is held or ctx is done. On success it
// returns a release function that must be called exactly once.
func (t *Table) Acquire(ctx context.Context, key string) (func(), error) {
	t.mu.Lock()
	e, ok := t.locks[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		t.locks[key] = e
	}
	e.refs++
	t.mu.Unlock()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		t.put(key, e)
		return nil, err
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			e.sem.Release(1)
			t.put(key, e)
		})
	}
	return release, nil
}

func (t *Table) put(key string, e *entry) {
	t.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(t.locks, key)
	}
	t.mu.Unlock()
}

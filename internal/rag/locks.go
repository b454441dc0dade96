package rag

import (
	"sync"

	"github.com/google/uuid"
)

// lockRegistry serializes pipeline turns per conversation within this
// process. The database row lock taken at persistence time guards the
// write, but without this registry two concurrent turns on the same
// conversation would each generate an answer against the same stale
// history. Entries are reference counted so the map does not grow with
// the number of conversations ever seen.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[uuid.UUID]*lockEntry)}
}

// acquire blocks until the caller holds the conversation's lock and
// returns the release function.
func (r *lockRegistry) acquire(id uuid.UUID) (release func()) {
	r.mu.Lock()
	entry, ok := r.locks[id]
	if !ok {
		entry = &lockEntry{}
		r.locks[id] = entry
	}
	entry.refs++
	r.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		r.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(r.locks, id)
		}
		r.mu.Unlock()
	}
}

// Package adminlock serializes operations on a single admin's working
// directory. Uploads, resets, and pipeline runs for the same admin share one
// lock so interleaved writes cannot corrupt the master dataset; different
// admins proceed independently.
package adminlock

import (
	"sync"

	"github.com/google/uuid"
)

type Locks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func New() *Locks {
	return &Locks{locks: map[uuid.UUID]*sync.Mutex{}}
}

func (l *Locks) get(adminID uuid.UUID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[adminID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[adminID] = m
	}
	return m
}

// Lock acquires the admin's lock and returns its unlock function.
func (l *Locks) Lock(adminID uuid.UUID) func() {
	m := l.get(adminID)
	m.Lock()
	return m.Unlock
}

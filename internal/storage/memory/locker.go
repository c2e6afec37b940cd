package memory

import (
	"context"
	"sync"

	"onchain-intel/internal/storage"
)

// Locker mimics postgres advisory locks within one process.
type Locker struct {
	mu   sync.Mutex
	held map[int64]bool
}

// NewLocker creates a new Locker.
func NewLocker() *Locker {
	return &Locker{held: make(map[int64]bool)}
}

var _ storage.AdvisoryLocker = (*Locker)(nil)

// TryAdvisoryLock acquires key if free.
func (l *Locker) TryAdvisoryLock(_ context.Context, key int64) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}
	return unlock, true, nil
}

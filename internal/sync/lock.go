package sync

import "sync"

// KeyLock manages named mutexes. The processor locks on the review key so
// two deliveries for the same pull request cannot interleave task creation.
type KeyLock struct {
	locks sync.Map
}

// NewKeyLock creates a new KeyLock instance
func NewKeyLock() *KeyLock {
	return &KeyLock{}
}

// Lock acquires the lock for the given key.
func (l *KeyLock) Lock(key string) {
	val, _ := l.locks.LoadOrStore(key, &sync.Mutex{})
	val.(*sync.Mutex).Lock()
}

// Unlock releases the lock for the given key.
func (l *KeyLock) Unlock(key string) {
	val, ok := l.locks.Load(key)
	if !ok {
		return
	}
	val.(*sync.Mutex).Unlock()
	// Entries are kept; review keys are finite over a process lifetime and
	// safe cleanup would need ref counting.
}

// TryLock attempts to acquire the lock, returning true on success.
func (l *KeyLock) TryLock(key string) bool {
	val, _ := l.locks.LoadOrStore(key, &sync.Mutex{})
	return val.(*sync.Mutex).TryLock()
}

package alerts

import "sync"

// KeyLock provides mutual exclusion per fingerprint so transitions for
// one alert serialize while unrelated alerts proceed independently.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*keyEntry
}

type keyEntry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyLock creates an empty keyed lock set.
func NewKeyLock() *KeyLock {
	return &KeyLock{locks: make(map[string]*keyEntry)}
}

// Lock acquires the lock for key, creating it on first use.
func (kl *KeyLock) Lock(key string) {
	kl.mu.Lock()
	entry, ok := kl.locks[key]
	if !ok {
		entry = &keyEntry{}
		kl.locks[key] = entry
	}
	entry.refs++
	kl.mu.Unlock()

	entry.mu.Lock()
}

// Unlock releases the lock for key and discards it once nobody waits.
func (kl *KeyLock) Unlock(key string) {
	kl.mu.Lock()
	entry, ok := kl.locks[key]
	if ok {
		entry.refs--
		if entry.refs == 0 {
			delete(kl.locks, key)
		}
	}
	kl.mu.Unlock()

	if ok {
		entry.mu.Unlock()
	}
}

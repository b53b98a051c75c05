package enforce

import (
	"sync"
)

// KeyedLocks serializes operations per key (account id). The trust toggle's
// read-then-act sequence runs under the target account's lock so concurrent
// toggles resolve deterministically.
type KeyedLocks struct {
	lk    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedLocks() *KeyedLocks {
	return &KeyedLocks{locks: make(map[string]*keyedLock)}
}

// Lock acquires the key's lock and returns its release func. Entries are
// dropped once the last holder releases, so the map stays bounded by
// in-flight keys.
func (k *KeyedLocks) Lock(key string) func() {
	k.lk.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.lk.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.lk.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.lk.Unlock()
	}
}

package flow

import "sync"

// keyedMutex serialises work per owner. Entries are dropped once nobody holds or waits
// for them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

// Lock acquires the owner's lock and returns its release function.
func (k *keyedMutex) Lock(owner string) func() {
	k.mu.Lock()
	l, ok := k.locks[owner]
	if !ok {
		l = &refLock{}
		k.locks[owner] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, owner)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

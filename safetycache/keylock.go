package safetycache

import (
	"sync"
)

type keyLockEntry struct {
	mu       sync.RWMutex
	refCount int
}

// keyLock serializes operations per drone id without a global lock.
// Each key gets its own RWMutex, created on demand and dropped once
// no goroutine holds it.
//
// Usage:
//
//	unlock := kl.Lock("drone-7")
//	defer unlock()
//
// The returned unlock function must be called to release the lock
// and decrement the reference count.
type keyLock struct {
	mu    sync.Mutex
	locks map[string]*keyLockEntry
}

func newKeyLock() *keyLock {
	return &keyLock{
		locks: make(map[string]*keyLockEntry),
	}
}

// Lock acquires an exclusive lock for the given key
func (kl *keyLock) Lock(key string) func() {
	entry := kl.acquire(key)
	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		kl.release(key)
	}
}

// RLock acquires a shared lock for the given key
func (kl *keyLock) RLock(key string) func() {
	entry := kl.acquire(key)
	entry.mu.RLock()
	return func() {
		entry.mu.RUnlock()
		kl.release(key)
	}
}

func (kl *keyLock) acquire(key string) *keyLockEntry {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	entry, ok := kl.locks[key]
	if !ok {
		entry = &keyLockEntry{}
		kl.locks[key] = entry
	}
	entry.refCount++
	return entry
}

func (kl *keyLock) release(key string) {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	entry, ok := kl.locks[key]
	if !ok {
		return
	}
	entry.refCount--
	if entry.refCount == 0 {
		delete(kl.locks, key)
	}
}

// tracked returns the number of keys currently holding locks, for tests
func (kl *keyLock) tracked() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.locks)
}

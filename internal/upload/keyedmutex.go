package upload

import (
	"sync"
	"sync/atomic"
)

// keyedMutex is a named-mutex-per-key primitive: one mutex per active key,
// refcounted so the sync.Map entry is removed once nothing references it.
// Keyed on the upload session id, it ensures only one assembler per session
// runs at once.
type keyedMutex struct {
	entries sync.Map // map[string]*keyedMutexEntry
}

type keyedMutexEntry struct {
	mu   sync.Mutex
	refs int32
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	for {
		v, _ := k.entries.LoadOrStore(key, &keyedMutexEntry{})
		e := v.(*keyedMutexEntry)
		atomic.AddInt32(&e.refs, 1)
		e.mu.Lock()
		// The entry may have been removed between LoadOrStore and Lock; a
		// removed entry excludes nobody, so retry with the current one.
		if cur, ok := k.entries.Load(key); ok && cur == e {
			return func() {
				if atomic.AddInt32(&e.refs, -1) == 0 {
					k.entries.CompareAndDelete(key, e)
				}
				e.mu.Unlock()
			}
		}
		atomic.AddInt32(&e.refs, -1)
		e.mu.Unlock()
	}
}

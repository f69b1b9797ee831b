// Package keyindex maps (key value, game) pairs to the key that owns them so
// verification does not scan every reseller's key collection.
package keyindex

import "sync"

// Lookup identifies one (key value, game) pair. Both fields match exactly.
type Lookup struct {
	KeyValue string
	GameName string
}

// Entry locates a key in its owner's collection.
type Entry struct {
	Username string
	KeyID    string
}

type Index struct {
	mu      sync.RWMutex
	entries map[Lookup]Entry
}

func New() *Index {
	return &Index{entries: make(map[Lookup]Entry)}
}

func (ix *Index) Get(l Lookup) (Entry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.entries[l]
	return e, ok
}

// Reserve claims l for e. It returns false if another key already holds it.
func (ix *Index) Reserve(l Lookup, e Entry) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if cur, ok := ix.entries[l]; ok && cur != e {
		return false
	}
	ix.entries[l] = e
	return true
}

// Release drops l only if it still belongs to keyID.
func (ix *Index) Release(l Lookup, keyID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if cur, ok := ix.entries[l]; ok && cur.KeyID == keyID {
		delete(ix.entries, l)
	}
}

// DropOwner removes every entry owned by username.
func (ix *Index) DropOwner(username string) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	n := 0
	for l, e := range ix.entries {
		if e.Username == username {
			delete(ix.entries, l)
			n++
		}
	}
	return n
}

// Replace swaps the whole index for a freshly built one.
func (ix *Index) Replace(entries map[Lookup]Entry) {
	fresh := make(map[Lookup]Entry, len(entries))
	for l, e := range entries {
		fresh[l] = e
	}
	ix.mu.Lock()
	ix.entries = fresh
	ix.mu.Unlock()
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

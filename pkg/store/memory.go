package store

import (
	"strings"
	"sync"
)

// Memory is an in-process Store, used for tests and for running the
// filesystem without an external backend.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Open(root string) (Txn, error) {
	m.mu.RLock()
	preload := make(map[string]Entry, len(m.entries))
	for k, v := range m.entries {
		if k == root || strings.HasPrefix(k, root+"/") {
			preload[k] = v
		}
	}
	m.mu.RUnlock()
	return &memTxn{store: m, root: root, preload: preload, staged: make(map[string]Entry)}, nil
}

func (m *Memory) Walk(root string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Entry
	for k, v := range m.entries {
		if k == root || strings.HasPrefix(k, root+"/") {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }

type memTxn struct {
	store   *Memory
	root    string
	preload map[string]Entry
	staged  map[string]Entry
	deletes []string
}

func (t *memTxn) Set(key, value string, meta map[string]string) {
	t.staged[key] = Entry{Key: key, Value: value, Meta: meta}
}

func (t *memTxn) Delete(key string, recursive bool) {
	t.deletes = append(t.deletes, key)
	if recursive {
		for k := range t.preload {
			if k == key || strings.HasPrefix(k, key+"/") {
				t.deletes = append(t.deletes, k)
			}
		}
	}
}

func (t *memTxn) Commit() error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, k := range t.deletes {
		delete(t.store.entries, k)
	}
	for k, v := range t.staged {
		t.store.entries[k] = v
	}
	t.staged = make(map[string]Entry)
	t.deletes = nil
	return nil
}

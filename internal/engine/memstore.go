package engine

import (
	"encoding/json"
	"log/slog"
	"slices"
	"sort"
	"sync"
)

// MemStore is a thread-safe in-memory document store.
// Stored documents are never modified in place; every write replaces the slice.
type MemStore struct {
	mu sync.RWMutex
	// Structure: [collection][id]document
	data      map[string]map[string]json.RawMessage
	gen       map[string]uint64
	persister Persister
	wg        sync.WaitGroup

	saveMu sync.Mutex
	saved  map[string]uint64
}

// NewMemStore initializes a store.
// It accepts existing data (from LoadAll) and an optional persister.
func NewMemStore(initialData map[string]map[string]json.RawMessage, p Persister) *MemStore {
	if initialData == nil {
		initialData = make(map[string]map[string]json.RawMessage)
	}
	return &MemStore{
		data:      initialData,
		gen:       make(map[string]uint64),
		persister: p,
		saved:     make(map[string]uint64),
	}
}

// Wait waits for all background persistence tasks to complete.
func (m *MemStore) Wait() {
	m.wg.Wait()
}

// Close flushes pending writes and closes the persister.
func (m *MemStore) Close() error {
	m.Wait()
	if m.persister != nil {
		return m.persister.Close()
	}
	return nil
}

// Get returns a copy of the document stored under id.
func (m *MemStore) Get(collection, id string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.data[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(doc), nil
}

// Put stores doc under id, replacing any previous version.
func (m *MemStore) Put(collection, id string, doc json.RawMessage) error {
	return m.PutChecked(collection, id, doc, nil)
}

// PutChecked stores doc under id if check, run under the write lock against the
// current contents of the collection, returns nil. check must not retain the map.
func (m *MemStore) PutChecked(collection, id string, doc json.RawMessage, check func(docs map[string]json.RawMessage) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if check != nil {
		if err := check(m.data[collection]); err != nil {
			return err
		}
	}
	if m.data[collection] == nil {
		m.data[collection] = make(map[string]json.RawMessage)
	}
	m.data[collection][id] = slices.Clone(doc)
	m.persistLocked(collection)
	return nil
}

// Delete removes a single document.
func (m *MemStore) Delete(collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[collection][id]; !ok {
		return ErrNotFound
	}
	delete(m.data[collection], id)
	m.persistLocked(collection)
	return nil
}

// DeleteWhere removes every document for which match returns true and reports how many were removed.
func (m *MemStore) DeleteWhere(collection string, match func(id string, doc json.RawMessage) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, doc := range m.data[collection] {
		if match(id, doc) {
			delete(m.data[collection], id)
			removed++
		}
	}
	if removed > 0 {
		m.persistLocked(collection)
	}
	return removed
}

// Snapshot returns a consistent copy of a collection. The documents themselves
// are shared and must be treated as read-only.
func (m *MemStore) Snapshot(collection string) map[string]json.RawMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.copyCollection(collection)
}

// Collections lists the names of all non-empty collections.
func (m *MemStore) Collections() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var list []string
	for name, docs := range m.data {
		if len(docs) > 0 {
			list = append(list, name)
		}
	}
	sort.Strings(list)
	return list
}

// copyCollection creates a shallow copy of a collection.
// It MUST be called while holding m.mu.Lock or m.mu.RLock.
func (m *MemStore) copyCollection(collection string) map[string]json.RawMessage {
	original := m.data[collection]
	out := make(map[string]json.RawMessage, len(original))
	for id, doc := range original {
		out[id] = doc
	}
	return out
}

// persistLocked schedules a background save of the collection.
// It MUST be called while holding m.mu.Lock.
func (m *MemStore) persistLocked(collection string) {
	if m.persister == nil {
		return
	}
	m.gen[collection]++
	gen := m.gen[collection]
	snapshot := m.copyCollection(collection)

	m.wg.Add(1)
	go m.save(collection, gen, snapshot)
}

// save writes a snapshot unless a newer generation of the same collection has
// already reached the persister.
func (m *MemStore) save(collection string, gen uint64, docs map[string]json.RawMessage) {
	defer m.wg.Done()

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	if m.saved[collection] >= gen {
		return
	}
	if err := m.persister.SaveCollection(collection, docs); err != nil {
		slog.Warn("persisting collection failed", "collection", collection, "generation", gen, "error", err)
		return
	}
	m.saved[collection] = gen
}

package checkpoint

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory checkpoint store for testing and single-process use.
// Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]Record // threadID -> record
	closed bool
}

// NewMemoryStore creates a new in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]Record),
	}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, threadID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return Record{}, ErrStoreClosed
	}

	rec, ok := m.data[threadID]
	if !ok {
		return Record{}, ErrNotFound
	}

	// Return a copy to prevent modification
	rec.Data = cloneBytes(rec.Data)
	return rec, nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, threadID string, expectedSeq int, data []byte) (Record, error) {
	if threadID == "" {
		return Record{}, ErrEmptyThreadID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Record{}, ErrStoreClosed
	}

	if m.data[threadID].Sequence != expectedSeq {
		return Record{}, ErrConflict
	}

	rec := Record{
		ThreadID:  threadID,
		Sequence:  expectedSeq + 1,
		Data:      cloneBytes(data),
		UpdatedAt: time.Now().UTC(),
	}
	m.data[threadID] = rec

	rec.Data = cloneBytes(rec.Data)
	return rec, nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	infos := make([]Info, 0, len(m.data))
	for threadID, rec := range m.data {
		infos = append(infos, Info{
			ThreadID:  threadID,
			Sequence:  rec.Sequence,
			Timestamp: rec.UpdatedAt,
			Size:      int64(len(rec.Data)),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ThreadID < infos[j].ThreadID
	})

	return infos, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	delete(m.data, threadID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.data = nil
	return nil
}

// Len returns the number of stored threads.
// Useful for testing.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.data)
}

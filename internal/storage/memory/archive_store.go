package memory

import (
	"context"
	"sync"

	"evm-tx-monitor/internal/storage"
)

// ArchiveStore is an in-memory implementation of storage.ArchiveStore.
type ArchiveStore struct {
	mu   sync.RWMutex
	data map[string]*storage.ArchiveRecord // keyed by hash
}

// NewArchiveStore creates a new in-memory archive store.
func NewArchiveStore() *ArchiveStore {
	return &ArchiveStore{
		data: make(map[string]*storage.ArchiveRecord),
	}
}

// Compile-time interface check.
var _ storage.ArchiveStore = (*ArchiveStore)(nil)

// InsertBatch stores records, skipping hashes already present.
func (s *ArchiveStore) InsertBatch(_ context.Context, records []storage.ArchiveRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for i := range records {
		if records[i].Hash == "" {
			return inserted, storage.ErrInvalidInput
		}
		if _, exists := s.data[records[i].Hash]; exists {
			continue
		}
		rec := records[i]
		s.data[rec.Hash] = &rec
		inserted++
	}
	return inserted, nil
}

// GetByHash retrieves a record by hash. Returns ErrNotFound if not exists.
func (s *ArchiveStore) GetByHash(_ context.Context, hash string) (*storage.ArchiveRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.data[hash]
	if !exists {
		return nil, storage.ErrNotFound
	}

	recCopy := *rec
	return &recCopy, nil
}

// Count returns the number of stored records.
func (s *ArchiveStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.data)), nil
}

// Close is a no-op.
func (s *ArchiveStore) Close() error {
	return nil
}

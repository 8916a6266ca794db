package state

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and examples. It keys records
// by Ref.Identifier().
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
	now     func() time.Time
}

type memoryRecord struct {
	payload []byte
	meta    Meta
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]memoryRecord{}, now: time.Now}
}

func (s *MemoryStore) Load(_ context.Context, ref Ref) ([]byte, Meta, bool, error) {
	key, err := ref.Identifier()
	if err != nil {
		return nil, Meta{}, false, err
	}

	s.mu.RLock()
	record, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return nil, Meta{}, false, nil
	}
	return bytes.Clone(record.payload), cloneMeta(record.meta), true, nil
}

func (s *MemoryStore) Save(_ context.Context, ref Ref, payload []byte, meta Meta) (Meta, error) {
	key, err := ref.Identifier()
	if err != nil {
		return Meta{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.records[key]
	if err := checkETag(meta.ETag, current.meta.ETag); err != nil {
		return Meta{}, err
	}
	saved := nextMeta(current.meta, meta, payload, s.now())
	s.records[key] = memoryRecord{payload: bytes.Clone(payload), meta: saved}
	return cloneMeta(saved), nil
}

func (s *MemoryStore) Delete(_ context.Context, ref Ref, meta Meta) error {
	key, err := ref.Identifier()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[key]
	if !ok {
		return ErrNotFound
	}
	if err := checkETag(meta.ETag, current.meta.ETag); err != nil {
		return err
	}
	delete(s.records, key)
	return nil
}

// Len reports the number of stored snapshots.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

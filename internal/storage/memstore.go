package storage

import (
	"bytes"
	"sort"
	"sync"

	"github.com/polytorus/polytorus/internal/hashsig"
	"github.com/polytorus/polytorus/internal/types"
)

// MemStore is an in-memory Store, used by layer unit tests and as the
// working set the WAL-backed Store replays into on startup.
type MemStore struct {
	mu    sync.RWMutex
	blobs map[types.Hash][]byte
	kv    map[string][]byte
}

// NewMemStore constructs an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		blobs: make(map[types.Hash][]byte),
		kv:    make(map[string][]byte),
	}
}

func (s *MemStore) PutBlob(data []byte) (types.Hash, error) {
	h := hashsig.Hash(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.blobs[h] = cp
	return h, nil
}

func (s *MemStore) GetBlob(h types.Hash) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.blobs[h]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (s *MemStore) Put(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	s.kv[string(key)] = cp
	return nil
}

func (s *MemStore) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.kv[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (s *MemStore) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kv, string(key))
	return nil
}

func (s *MemStore) IterPrefix(prefix []byte) Iterator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.kv {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	pairs := make([][2][]byte, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, [2][]byte{[]byte(k), s.kv[k]})
	}
	return &memIterator{pairs: pairs, idx: -1}
}

type memIterator struct {
	pairs [][2][]byte
	idx   int
}

func (it *memIterator) Next() bool {
	it.idx++
	return it.idx < len(it.pairs)
}
func (it *memIterator) Key() []byte   { return it.pairs[it.idx][0] }
func (it *memIterator) Value() []byte { return it.pairs[it.idx][1] }
func (it *memIterator) Error() error  { return nil }
func (it *memIterator) Close() error  { return nil }

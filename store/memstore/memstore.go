// Package memstore is an in-memory store.Store: an alternative to
// badgerstore that writes nothing to disk.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/Edwardvaneechoud/Flowfile-sub004/store"
)

// Store is an in-memory store.Store.
type Store struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{docs: make(map[string][]byte)}
}

func (s *Store) Put(ctx context.Context, graphID string, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(doc))
	copy(cp, doc)
	s.docs[graphID] = cp
	return nil
}

func (s *Store) Get(ctx context.Context, graphID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[graphID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := make([]byte, len(doc))
	copy(cp, doc)
	return cp, nil
}

func (s *Store) Delete(ctx context.Context, graphID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[graphID]; !ok {
		return store.ErrNotFound
	}
	delete(s.docs, graphID)
	return nil
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.docs))
	for id := range s.docs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Close() error { return nil }

var _ store.Store = (*Store)(nil)

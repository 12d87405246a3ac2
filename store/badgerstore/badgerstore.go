// Package badgerstore persists canonical graph documents in a
// github.com/dgraph-io/badger/v4 database, one key per graph_id, mirroring
// the teacher pack's BadgerEngine open/close/prefix-scan idiom
// (straga-Mimir_lite/nornicdb/pkg/storage/badger.go) applied to a flat
// key-value document store instead of a node/edge graph store.
package badgerstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/Edwardvaneechoud/Flowfile-sub004/store"
)

// Store is a Badger-backed store.Store.
type Store struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
}

// Options configures the Badger database.
type Options struct {
	DataDir    string
	InMemory   bool
	SyncWrites bool
}

// Open opens (or creates) a Badger database at opts.DataDir.
func Open(opts Options) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir).WithLogger(nil)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: opening database at %q: %w", opts.DataDir, err)
	}
	return &Store{db: db}, nil
}

func docKey(graphID string) []byte {
	return append([]byte("graph:"), []byte(graphID)...)
}

func (s *Store) Put(ctx context.Context, graphID string, doc []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("badgerstore: store is closed")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(docKey(graphID), doc)
	})
}

func (s *Store) Get(ctx context.Context, graphID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("badgerstore: store is closed")
	}
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(docKey(graphID))
		if err == badger.ErrKeyNotFound {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, graphID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("badgerstore: store is closed")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		key := docKey(graphID)
		if _, err := txn.Get(key); err == badger.ErrKeyNotFound {
			return store.ErrNotFound
		} else if err != nil {
			return err
		}
		return txn.Delete(key)
	})
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("badgerstore: store is closed")
	}
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte("graph:")
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	return ids, err
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

var _ store.Store = (*Store)(nil)

package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

import "container/list"
import "sync"

import "github.com/Edwardvaneechoud/Flowfile-sub004/flowgraph"
import "github.com/Edwardvaneechoud/Flowfile-sub004/lazyframe"

// Sample is a cached node result snapshot: a bounded row sample plus the
// schema it was read with (spec §4.3 Caching).
type Sample struct {
	Schema flowgraph.Schema `json:"schema"`
	Rows   []lazyframe.Row  `json:"rows"`
}

type cacheEntry struct {
	hash  string
	value *Sample
}

// SampleCache persists one sample per node content_hash under
// dir/<content_hash>.sample, fronted by an in-memory LRU so a run that
// revisits the same hash (a shared sub-pipeline reused by two sinks)
// doesn't re-read disk. Grounded on the pack's own
// nornicdb/pkg/cache.QueryCache (container/list + map LRU, evict-oldest-
// on-overflow), adapted from query-plan caching to node-result caching.
type SampleCache struct {
	mu      sync.Mutex
	dir     string
	maxSize int
	list    *list.List
	items   map[string]*list.Element
}

// NewSampleCache builds a cache writing through to dir (empty dir means
// memory-only, useful for tests) with room for maxSize in-memory entries.
func NewSampleCache(dir string, maxSize int) *SampleCache {
	if maxSize <= 0 {
		maxSize = 256
	}
	return &SampleCache{
		dir:     dir,
		maxSize: maxSize,
		list:    list.New(),
		items:   make(map[string]*list.Element, maxSize),
	}
}

func (c *SampleCache) path(hash string) string {
	return filepath.Join(c.dir, hash+".sample")
}

// Get returns the cached sample for hash, reading through to disk on an
// in-memory miss. A missing or unreadable file is a plain cache miss —
// retrieval is keyed by content_hash alone, so there is no separate
// "mismatch" to detect (spec §4.3 "mismatches are treated as cache
// miss").
func (c *SampleCache) Get(hash string) (*Sample, bool) {
	c.mu.Lock()
	if elem, ok := c.items[hash]; ok {
		c.list.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		c.mu.Unlock()
		return entry.value, true
	}
	c.mu.Unlock()

	if c.dir == "" {
		return nil, false
	}
	data, err := os.ReadFile(c.path(hash))
	if err != nil {
		return nil, false
	}
	var sample Sample
	if err := json.Unmarshal(data, &sample); err != nil {
		return nil, false
	}
	c.promote(hash, &sample)
	return &sample, true
}

// Put writes sample to disk atomically — temp file then rename, the same
// pattern lazyframe/memframe's own Output sink uses — and promotes it to
// the front of the in-memory LRU.
func (c *SampleCache) Put(hash string, sample *Sample) error {
	if c.dir != "" {
		if err := os.MkdirAll(c.dir, 0o755); err != nil {
			return &flowgraph.IoError{Op: "mkdir", Path: c.dir, Cause: err}
		}
		data, err := json.Marshal(sample)
		if err != nil {
			return fmt.Errorf("engine: encoding sample for %s: %w", hash, err)
		}
		tmp, err := os.CreateTemp(c.dir, ".flowfile-sample-*")
		if err != nil {
			return &flowgraph.IoError{Op: "write", Path: c.path(hash), Cause: err}
		}
		tmpPath := tmp.Name()
		defer os.Remove(tmpPath)
		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			return &flowgraph.IoError{Op: "write", Path: c.path(hash), Cause: err}
		}
		if err := tmp.Close(); err != nil {
			return &flowgraph.IoError{Op: "write", Path: c.path(hash), Cause: err}
		}
		if err := os.Rename(tmpPath, c.path(hash)); err != nil {
			return &flowgraph.IoError{Op: "write", Path: c.path(hash), Cause: err}
		}
	}
	c.promote(hash, sample)
	return nil
}

func (c *SampleCache) promote(hash string, sample *Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[hash]; ok {
		elem.Value.(*cacheEntry).value = sample
		c.list.MoveToFront(elem)
		return
	}
	for c.list.Len() >= c.maxSize {
		oldest := c.list.Back()
		if oldest == nil {
			break
		}
		c.list.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).hash)
	}
	elem := c.list.PushFront(&cacheEntry{hash: hash, value: sample})
	c.items[hash] = elem
}

// Package memory provides an in-process kv.Store backed by a map.
//
// Contents are lost when the process exits. It is used for tests and for
// deployments that only care about the event stream.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/marmos91/atlasfs/pkg/store/kv"
)

// Store is a map-backed kv.Store.
type Store struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// New creates an empty store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) Put(ctx context.Context, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kv.ErrClosed
	}
	s.data[string(key)] = bytes.Clone(value)
	return nil
}

func (s *Store) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false, kv.ErrClosed
	}
	value, ok := s.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(value), true, nil
}

func (s *Store) Delete(ctx context.Context, key []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kv.ErrClosed
	}
	delete(s.data, string(key))
	return nil
}

// Scan visits entries in key order. It works on a snapshot, so fn may call
// back into the store.
func (s *Store) Scan(ctx context.Context, prefix []byte, fn kv.ScanFunc) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return kv.ErrClosed
	}
	keys := make([]string, 0, len(s.data))
	snapshot := make(map[string][]byte, len(s.data))
	for k, v := range s.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
			snapshot[k] = v
		}
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn([]byte(k), snapshot[k]); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kv.ErrClosed
	}
	s.closed = true
	s.data = nil
	return nil
}

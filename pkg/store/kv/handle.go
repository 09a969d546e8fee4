package kv

import (
	"context"
	"sync"
	"sync/atomic"
)

// shared is the state behind every clone of a Handle.
type shared struct {
	store Store
	exec  *Executor
	refs  atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

// Handle is a reference-counted, independently closable view of a Store.
//
// The server opens one Handle and shares it through the registry; the
// registry's Close releases it. Clone gives a holder that outlives the
// registry its own reference. The underlying engine is closed when the last
// Handle is closed. All calls are dispatched through the shared Executor, so
// a slow engine never blocks a caller past its context.
//
// Thread Safety: Safe for concurrent use. A single Handle may be shared by
// goroutines, but Close must be called exactly once per Handle.
type Handle struct {
	s      *shared
	closed atomic.Bool
}

// NewHandle takes ownership of store and returns the first handle to it.
// A nil exec selects an Executor with DefaultMaxBlockingOps slots.
func NewHandle(store Store, exec *Executor) *Handle {
	if exec == nil {
		exec = NewExecutor(0)
	}
	s := &shared{store: store, exec: exec}
	s.refs.Store(1)
	return &Handle{s: s}
}

// Clone returns a new handle to the same store.
func (h *Handle) Clone() *Handle {
	h.s.refs.Add(1)
	return &Handle{s: h.s}
}

// Refs returns the number of open handles to the store.
func (h *Handle) Refs() int64 {
	return h.s.refs.Load()
}

// Close releases this handle. The store is closed when the last handle goes.
// Closing the same handle twice returns ErrClosed.
func (h *Handle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	if h.s.refs.Add(-1) > 0 {
		return nil
	}
	h.s.closeOnce.Do(func() {
		h.s.closeErr = h.s.store.Close()
	})
	return h.s.closeErr
}

func (h *Handle) check() error {
	if h.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Put stores value under key.
func (h *Handle) Put(ctx context.Context, key, value []byte) error {
	if err := h.check(); err != nil {
		return err
	}
	return h.s.exec.Do(ctx, func() error {
		return h.s.store.Put(ctx, key, value)
	})
}

// Get returns the value stored under key.
func (h *Handle) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if err := h.check(); err != nil {
		return nil, false, err
	}

	var (
		value []byte
		found bool
	)
	err := h.s.exec.Do(ctx, func() error {
		var err error
		value, found, err = h.s.store.Get(ctx, key)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return value, found, nil
}

// Delete removes key.
func (h *Handle) Delete(ctx context.Context, key []byte) error {
	if err := h.check(); err != nil {
		return err
	}
	return h.s.exec.Do(ctx, func() error {
		return h.s.store.Delete(ctx, key)
	})
}

type entry struct {
	key, value []byte
}

// Scan visits every entry under prefix. Entries are collected on the
// executor and fn is invoked on the caller's goroutine.
func (h *Handle) Scan(ctx context.Context, prefix []byte, fn ScanFunc) error {
	if err := h.check(); err != nil {
		return err
	}

	var entries []entry
	err := h.s.exec.Do(ctx, func() error {
		return h.s.store.Scan(ctx, prefix, func(key, value []byte) error {
			entries = append(entries, entry{
				key:   append([]byte(nil), key...),
				value: append([]byte(nil), value...),
			})
			return nil
		})
	})
	if err != nil {
		return err
	}

	for _, e := range entries {
		if err := fn(e.key, e.value); err != nil {
			return err
		}
	}
	return nil
}

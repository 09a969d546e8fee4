package kv

import (
	"bytes"
	"context"
)

// NamespaceSeparator joins a namespace and a key.
const NamespaceSeparator = '/'

// namespaced prefixes every key with "<ns>/".
type namespaced struct {
	store  Store
	prefix []byte
}

// WithNamespace partitions store so that every key is stored as "<ns>/<key>".
// Keys written outside the namespace are invisible through the returned
// Store. An empty ns returns store unchanged.
func WithNamespace(store Store, ns string) Store {
	if ns == "" {
		return store
	}
	return &namespaced{store: store, prefix: NamespacePrefix(ns)}
}

// NamespacePrefix returns the raw key prefix used for ns.
func NamespacePrefix(ns string) []byte {
	return append([]byte(ns), NamespaceSeparator)
}

func (n *namespaced) key(k []byte) []byte {
	out := make([]byte, 0, len(n.prefix)+len(k))
	out = append(out, n.prefix...)
	return append(out, k...)
}

func (n *namespaced) Put(ctx context.Context, key, value []byte) error {
	return n.store.Put(ctx, n.key(key), value)
}

func (n *namespaced) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	return n.store.Get(ctx, n.key(key))
}

func (n *namespaced) Delete(ctx context.Context, key []byte) error {
	return n.store.Delete(ctx, n.key(key))
}

func (n *namespaced) Scan(ctx context.Context, prefix []byte, fn ScanFunc) error {
	return n.store.Scan(ctx, n.key(prefix), func(key, value []byte) error {
		return fn(bytes.TrimPrefix(key, n.prefix), value)
	})
}

func (n *namespaced) Close() error {
	return n.store.Close()
}

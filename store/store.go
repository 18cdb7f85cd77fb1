// Package store defines the key/value persistence contract the cache
// coordinator keeps its entries in, plus the backends it ships with.
//
// Keys are grouped in namespaces. The coordinator uses one namespace per
// entity type and session and two keys inside it (the entry and its
// metadata), so every backend must be able to write several keys of one
// namespace atomically and drop a namespace in one call.
package store

import "context"

// Store is a namespaced key/value store
type Store interface {
	// Get returns the value stored under key. ok is false when the key is absent.
	Get(ctx context.Context, namespace, key string) (value []byte, ok bool, err error)

	// Put stores value under key
	Put(ctx context.Context, namespace, key string, value []byte) error

	// PutAll stores every key of values in one atomic write
	PutAll(ctx context.Context, namespace string, values map[string][]byte) error

	// DeleteNamespace removes every key of namespace.
	// It reports whether anything was removed.
	DeleteNamespace(ctx context.Context, namespace string) (bool, error)

	// Close releases the resources held by the store
	Close() error
}

// Unavailable is a Store for runtimes without a persistence backend.
// Every call fails with ErrUnavailable.
type Unavailable struct{}

func (Unavailable) Get(context.Context, string, string) ([]byte, bool, error) {
	return nil, false, ErrUnavailable
}

func (Unavailable) Put(context.Context, string, string, []byte) error {
	return ErrUnavailable
}

func (Unavailable) PutAll(context.Context, string, map[string][]byte) error {
	return ErrUnavailable
}

func (Unavailable) DeleteNamespace(context.Context, string) (bool, error) {
	return false, ErrUnavailable
}

func (Unavailable) Close() error { return nil }

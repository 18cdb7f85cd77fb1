package store

import (
	"context"
	"sync"
)

// Memory is a process-local Store. It is the default for tests and for
// single-process deployments where the cache does not need to outlive the
// process.
type Memory struct {
	mu     sync.RWMutex
	data   map[string]map[string][]byte
	closed bool
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	v, ok := m.data[namespace][key]
	if !ok {
		return nil, false, nil
	}
	return clone(v), true, nil
}

func (m *Memory) Put(ctx context.Context, namespace, key string, value []byte) error {
	return m.PutAll(ctx, namespace, map[string][]byte{key: value})
}

func (m *Memory) PutAll(_ context.Context, namespace string, values map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	ns, ok := m.data[namespace]
	if !ok {
		ns = make(map[string][]byte, len(values))
		m.data[namespace] = ns
	}
	for k, v := range values {
		ns[k] = clone(v)
	}
	return nil
}

func (m *Memory) DeleteNamespace(_ context.Context, namespace string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	_, ok := m.data[namespace]
	delete(m.data, namespace)
	return ok, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.data = nil
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

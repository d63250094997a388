// Package store persists registry pools in an ordered key-value store.
package store

import (
	"bytes"
	"errors"
	"sort"
	"sync"
)

// ErrNotFound is returned by KV.Get for a missing key.
var ErrNotFound = errors.New("key not found")

// Write is one entry of an atomic batch. A nil Value deletes the key.
type Write struct {
	Key   []byte
	Value []byte
}

// KV is an ordered byte store.
type KV interface {
	Get(key []byte) ([]byte, error)
	// Apply writes all entries or none.
	Apply(writes []Write) error
	// Scan calls fn for every key with the given prefix in ascending key order.
	Scan(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// MemoryKV is a KV held in memory. It is safe for concurrent use.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
	// failNext makes the next Apply fail, used to exercise rollback paths
	failNext error
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (m *MemoryKV) Apply(writes []Write) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNext; err != nil {
		m.failNext = nil
		return err
	}
	for _, w := range writes {
		if w.Value == nil {
			delete(m.data, string(w.Key))
			continue
		}
		m.data[string(w.Key)] = bytes.Clone(w.Value)
	}
	return nil
}

func (m *MemoryKV) Scan(prefix []byte, fn func(key, value []byte) error) error {
	m.mu.RLock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = m.data[k]
	}
	m.mu.RUnlock()

	for i, k := range keys {
		if err := fn([]byte(k), values[i]); err != nil {
			return err
		}
	}
	return nil
}

// FailNextApply makes the next Apply return err without writing anything.
func (m *MemoryKV) FailNextApply(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

func (m *MemoryKV) Close() error { return nil }

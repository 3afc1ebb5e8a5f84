// Package eventlog provides append-only, concurrency-safe event logs shared
// by the trace and toolevent sinks.
package eventlog

import (
	"encoding/json"
	"io"
	"sync"
)

// Memory is an in-memory append-only log.
type Memory[T any] struct {
	mu    sync.RWMutex
	items []T
}

// NewMemory creates an empty log.
func NewMemory[T any]() *Memory[T] {
	return &Memory[T]{items: []T{}}
}

// Append adds v at the end of the log.
func (m *Memory[T]) Append(v T) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = append(m.items, v)
}

// Items returns a copy of the log in append order.
func (m *Memory[T]) Items() []T {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]T, len(m.items))
	copy(out, m.items)

	return out
}

// Len returns the number of entries.
func (m *Memory[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.items)
}

// GroupBy partitions items by key, preserving append order inside each group.
func GroupBy[T any, K comparable](items []T, key func(T) K) map[K][]T {
	out := map[K][]T{}
	for _, it := range items {
		k := key(it)
		out[k] = append(out[k], it)
	}
	return out
}

// JSONL streams entries as JSON lines. The first write error is retained and
// subsequent entries are dropped.
type JSONL[T any] struct {
	mu  sync.Mutex
	enc *json.Encoder
	err error
}

// NewJSONL creates a JSONL log writing to w.
func NewJSONL[T any](w io.Writer) *JSONL[T] {
	return &JSONL[T]{enc: json.NewEncoder(w)}
}

// Append encodes v as one line.
func (j *JSONL[T]) Append(v T) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.err != nil {
		return
	}
	j.err = j.enc.Encode(v)
}

// Err returns the first write error, if any.
func (j *JSONL[T]) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.err
}

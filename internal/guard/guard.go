// Package guard provides the two lock-wrapped value boxes every shared
// structure in the index is stored in.
//
// Value is a mutex box for scalars (counters, flags, timestamps) where a
// tear-free read or write is all that is needed. RWValue is a read/write box
// for containers: many readers may hold it at once, a writer waits for the
// reader count to reach zero and then holds it exclusively.
//
// Neither box is re-entrant. Never acquire a box from inside a scope that
// already holds it.
package guard

import "sync"

// Value guards a single value with an exclusive lock.
//
// Get followed by Set is not atomic as a pair; use Swap or Update when the
// new value depends on the old one.
type Value[T any] struct {
	mu sync.Mutex
	v  T
}

// NewValue returns a Value holding v.
func NewValue[T any](v T) *Value[T] {
	return &Value[T]{v: v}
}

// Get returns the current value.
func (b *Value[T]) Get() T {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.v
}

// Set replaces the current value.
func (b *Value[T]) Set(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.v = v
}

// Swap stores v and returns the previous value in one critical section.
func (b *Value[T]) Swap(v T) T {
	b.mu.Lock()
	defer b.mu.Unlock()
	old := b.v
	b.v = v
	return old
}

// Update replaces the value with fn(old) and returns the new value.
func (b *Value[T]) Update(fn func(T) T) T {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.v = fn(b.v)
	return b.v
}

// RWValue guards a container value with a multiple-reader, single-writer
// lock. Access goes through scoped callbacks so a lock can never be leaked.
type RWValue[T any] struct {
	mu sync.RWMutex
	v  T
}

// NewRWValue returns an RWValue holding v.
func NewRWValue[T any](v T) *RWValue[T] {
	return &RWValue[T]{v: v}
}

// Read runs fn with shared access. fn must not retain or mutate the value
// beyond what its type makes safe for concurrent readers.
func (b *RWValue[T]) Read(fn func(T)) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	fn(b.v)
}

// Write runs fn with exclusive access; fn may replace the value through the
// pointer.
func (b *RWValue[T]) Write(fn func(*T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.v)
}

// Load returns the value under shared access.
func (b *RWValue[T]) Load() T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.v
}

// Store replaces the value under exclusive access.
func (b *RWValue[T]) Store(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.v = v
}

package util

import "sync"

// RingBuffer keeps the newest cap items. Push overwrites the oldest once
// full. Safe for concurrent use.
type RingBuffer[T any] struct {
	mu    sync.RWMutex
	items []T
	next  int // slot the next Push writes
	full  bool
}

func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer[T]{items: make([]T, capacity)}
}

func (r *RingBuffer[T]) Push(item T) {
	r.mu.Lock()
	r.items[r.next] = item
	r.next = (r.next + 1) % len(r.items)
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()
}

// Snapshot copies every item, oldest first.
func (r *RingBuffer[T]) Snapshot() []T {
	return r.Last(0)
}

// Last copies the newest n items, oldest first. n <= 0 means all.
func (r *RingBuffer[T]) Last(n int) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := r.lenLocked()
	if n <= 0 || n > count {
		n = count
	}
	out := make([]T, n)
	start := r.next - n
	if start < 0 {
		start += len(r.items)
	}
	for i := range out {
		out[i] = r.items[(start+i)%len(r.items)]
	}
	return out
}

func (r *RingBuffer[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lenLocked()
}

func (r *RingBuffer[T]) lenLocked() int {
	if r.full {
		return len(r.items)
	}
	return r.next
}

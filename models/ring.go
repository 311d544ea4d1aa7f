package models

import (
	"encoding/json"
)

// Default capacities for the bounded collections
const (
	DefaultHistoryCapacity  = 50
	DefaultActivityCapacity = 50
	DefaultAlertCapacity    = 500
)

// Ring is a fixed-capacity FIFO. Pushing past capacity evicts the oldest
// element. It is not safe for concurrent use; callers hold their own lock.
type Ring[T any] struct {
	buf   []T
	start int
	n     int
}

// NewRing creates an empty ring. Capacities below one are raised to one.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// RingOf builds a ring from items given oldest first, keeping the newest
// capacity elements.
func RingOf[T any](capacity int, items []T) *Ring[T] {
	r := NewRing[T](capacity)
	for _, it := range items {
		r.Push(it)
	}
	return r
}

// Push appends v, evicting the oldest element when full
func (r *Ring[T]) Push(v T) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = v
		r.n++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

func (r *Ring[T]) Len() int {
	if r == nil {
		return 0
	}
	return r.n
}

func (r *Ring[T]) Cap() int {
	if r == nil {
		return 0
	}
	return len(r.buf)
}

// Items returns a copy of the contents, oldest first
func (r *Ring[T]) Items() []T {
	if r == nil {
		return nil
	}
	out := make([]T, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Newest returns up to n elements, newest first. n <= 0 returns everything.
func (r *Ring[T]) Newest(n int) []T {
	if r == nil {
		return nil
	}
	if n <= 0 || n > r.n {
		n = r.n
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.start+r.n-1-i)%len(r.buf)]
	}
	return out
}

// Last returns the most recent element
func (r *Ring[T]) Last() (T, bool) {
	var zero T
	if r.Len() == 0 {
		return zero, false
	}
	return r.buf[(r.start+r.n-1)%len(r.buf)], true
}

// Resize changes the capacity, dropping the oldest elements if needed
func (r *Ring[T]) Resize(capacity int) {
	items := r.Items()
	*r = *RingOf(capacity, items)
}

func (r *Ring[T]) Clone() *Ring[T] {
	if r == nil {
		return nil
	}
	c := &Ring[T]{buf: make([]T, len(r.buf)), start: r.start, n: r.n}
	copy(c.buf, r.buf)
	return c
}

// MarshalJSON encodes the ring as a plain array, oldest first
func (r *Ring[T]) MarshalJSON() ([]byte, error) {
	items := r.Items()
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}

// UnmarshalJSON decodes a plain array. A ring without capacity takes the
// length of the array; callers resize to their configured capacity.
func (r *Ring[T]) UnmarshalJSON(data []byte) error {
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	capacity := len(r.buf)
	if capacity == 0 {
		capacity = len(items)
	}
	*r = *RingOf(capacity, items)
	return nil
}

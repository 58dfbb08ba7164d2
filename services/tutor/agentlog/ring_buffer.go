// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agentlog

// ringBuffer is a fixed-size circular buffer holding the most recent items.
//
// # Description
//
// O(1) push with bounded memory. When full, the oldest item is overwritten.
// Items and Tail return elements oldest-first.
//
// # Thread Safety
//
// NOT safe for concurrent use; the owning Store synchronizes access.
type ringBuffer[T any] struct {
	data  []T
	head  int // next write position
	count int
	cap   int
}

// newRingBuffer creates a buffer with the given capacity (min 1).
func newRingBuffer[T any](capacity int) *ringBuffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &ringBuffer[T]{
		data: make([]T, capacity),
		cap:  capacity,
	}
}

// Push appends an item, overwriting the oldest when full.
func (r *ringBuffer[T]) Push(item T) {
	r.data[r.head] = item
	r.head = (r.head + 1) % r.cap
	if r.count < r.cap {
		r.count++
	}
}

// Len returns the number of stored items.
func (r *ringBuffer[T]) Len() int {
	return r.count
}

// Items returns a copy of all items, oldest first.
func (r *ringBuffer[T]) Items() []T {
	out := make([]T, 0, r.count)
	start := r.head - r.count
	if start < 0 {
		start += r.cap
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.data[(start+i)%r.cap])
	}
	return out
}

// Tail returns a copy of the most recent n items, oldest first.
func (r *ringBuffer[T]) Tail(n int) []T {
	if n <= 0 {
		return nil
	}
	if n > r.count {
		n = r.count
	}
	out := make([]T, 0, n)
	start := r.head - n
	if start < 0 {
		start += r.cap
	}
	for i := 0; i < n; i++ {
		out = append(out, r.data[(start+i)%r.cap])
	}
	return out
}

// Copyright 2025 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package util

import (
	"container/heap"
)

// A priority queue ordered by 'before': Dequeue returns an element x
// for which before(y, x) is false for every other element y.  Equal
// elements come out in no particular order.

type PriorityQueueT[T any] struct {
	heap heapT[T]
}

func NewPriorityQueue[T any](before func(x T, y T) bool, elts ...T) *PriorityQueueT[T] {
	pq := &PriorityQueueT[T]{heapT[T]{elts: append([]T{}, elts...), before: before}}
	heap.Init(&pq.heap)
	return pq
}

func (pq *PriorityQueueT[T]) Len() int    { return len(pq.heap.elts) }
func (pq *PriorityQueueT[T]) Empty() bool { return len(pq.heap.elts) == 0 }

func (pq *PriorityQueueT[T]) Enqueue(x T) {
	heap.Push(&pq.heap, x)
}

func (pq *PriorityQueueT[T]) Dequeue() T {
	return heap.Pop(&pq.heap).(T)
}

func (pq *PriorityQueueT[T]) Peek() T {
	return pq.heap.elts[0]
}

// The container/heap interface, kept out of PriorityQueueT's method set.

type heapT[T any] struct {
	elts   []T
	before func(x T, y T) bool
}

func (h heapT[T]) Len() int           { return len(h.elts) }
func (h heapT[T]) Less(i, j int) bool { return h.before(h.elts[i], h.elts[j]) }
func (h heapT[T]) Swap(i, j int)      { h.elts[i], h.elts[j] = h.elts[j], h.elts[i] }

func (h *heapT[T]) Push(x any) {
	h.elts = append(h.elts, x.(T))
}

func (h *heapT[T]) Pop() any {
	last := len(h.elts) - 1
	x := h.elts[last]
	var zero T
	h.elts[last] = zero
	h.elts = h.elts[:last]
	return x
}

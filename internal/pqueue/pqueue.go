// Package pqueue implements the min-heap scheduler ClientLoop uses to track
// when each registered InhibitingCondition is next due for a check.
package pqueue

import (
	"container/heap"
	"errors"
	"time"

	"github.com/ericghara/no-doze/internal/condition"
)

// ErrEmpty is returned by Poll and Peek on an empty queue.
var ErrEmpty = errors.New("pqueue: empty")

// ScheduledCheck pairs the time a condition is next due with the condition
// itself. Ordered by Time ascending.
type ScheduledCheck struct {
	Time      time.Time
	Condition condition.InhibitingCondition
}

// PriorityQueue is a min-heap over ScheduledCheck.Time. Exactly one
// ScheduledCheck per registered condition is alive in the queue at any
// moment for the lifetime of a ClientLoop.
type PriorityQueue struct {
	h checkHeap
}

// New returns an empty PriorityQueue.
func New() *PriorityQueue {
	pq := &PriorityQueue{}
	heap.Init(&pq.h)
	return pq
}

// Offer inserts a ScheduledCheck.
func (q *PriorityQueue) Offer(c ScheduledCheck) {
	heap.Push(&q.h, c)
}

// Poll removes and returns the minimum ScheduledCheck.
func (q *PriorityQueue) Poll() (ScheduledCheck, error) {
	if q.IsEmpty() {
		return ScheduledCheck{}, ErrEmpty
	}
	return heap.Pop(&q.h).(ScheduledCheck), nil
}

// Peek returns the minimum ScheduledCheck without removing it.
func (q *PriorityQueue) Peek() (ScheduledCheck, error) {
	if q.IsEmpty() {
		return ScheduledCheck{}, ErrEmpty
	}
	return q.h[0], nil
}

// Len returns the number of entries currently queued.
func (q *PriorityQueue) Len() int {
	return q.h.Len()
}

// IsEmpty reports whether the queue has no entries.
func (q *PriorityQueue) IsEmpty() bool {
	return q.Len() == 0
}

// All returns every queued entry; order is not guaranteed.
func (q *PriorityQueue) All() []ScheduledCheck {
	out := make([]ScheduledCheck, len(q.h))
	copy(out, q.h)
	return out
}

// checkHeap implements container/heap.Interface over []ScheduledCheck.
type checkHeap []ScheduledCheck

func (h checkHeap) Len() int            { return len(h) }
func (h checkHeap) Less(i, j int) bool  { return h[i].Time.Before(h[j].Time) }
func (h checkHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *checkHeap) Push(x interface{}) { *h = append(*h, x.(ScheduledCheck)) }
func (h *checkHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

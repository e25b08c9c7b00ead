// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package learning

import (
	"container/heap"
	"time"

	"github.com/traylinx/switchAIAssist/internal/intent"
)

// DefaultQueueCapacity bounds the retraining queue.
const DefaultQueueCapacity = 10000

// Item is one pending retraining example.
type Item struct {
	Text     string        `json:"text"`
	Intent   intent.Intent `json:"intent"`
	Slots    intent.Slots  `json:"slots,omitempty"`
	Priority int           `json:"priority"`
	Queued   time.Time     `json:"queued"`

	seq uint64
}

// itemHeap orders by priority, then by arrival.
type itemHeap []*Item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(*Item)) }

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// Queue is a bounded max-heap of retraining items. It is not safe for
// concurrent use; Loop guards it.
type Queue struct {
	items    itemHeap
	capacity int
	seq      uint64
	evicted  int64
}

// NewQueue creates a queue holding at most capacity items.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{capacity: capacity}
}

// Push adds it. When full, the lowest-priority item (the newest among equals)
// is evicted, which may be it itself. It reports whether it was kept.
func (q *Queue) Push(it *Item) bool {
	q.seq++
	it.seq = q.seq
	if q.items.Len() < q.capacity {
		heap.Push(&q.items, it)
		return true
	}

	worst := 0
	for i := 1; i < len(q.items); i++ {
		if q.items.Less(worst, i) {
			worst = i
		}
	}
	q.evicted++
	if it.Priority <= q.items[worst].Priority {
		return false
	}
	q.items[worst] = it
	heap.Fix(&q.items, worst)
	return true
}

// Pop removes and returns up to n items in priority order.
func (q *Queue) Pop(n int) []*Item {
	if n <= 0 || n > q.items.Len() {
		n = q.items.Len()
	}
	out := make([]*Item, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, heap.Pop(&q.items).(*Item))
	}
	return out
}

// Peek returns the highest-priority item without removing it.
func (q *Queue) Peek() *Item {
	if q.items.Len() == 0 {
		return nil
	}
	return q.items[0]
}

// Len returns the number of queued items.
func (q *Queue) Len() int { return q.items.Len() }

// Evicted returns how many items were discarded because the queue was full.
func (q *Queue) Evicted() int64 { return q.evicted }

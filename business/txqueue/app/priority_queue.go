package app

import "container/heap"

// PriorityQueue orders elements by priority, highest first. Equal
// priorities pop in insertion order. It is not safe for concurrent use.
type PriorityQueue[T any] struct {
	items pqHeap[T]
	index map[uint64]*pqItem[T]
	seq   uint64
}

type pqItem[T any] struct {
	id       uint64
	element  T
	priority int
	seq      uint64
	pos      int
}

// NewPriorityQueue returns an empty queue.
func NewPriorityQueue[T any]() *PriorityQueue[T] {
	return &PriorityQueue[T]{index: make(map[uint64]*pqItem[T])}
}

// Add inserts element under id. An existing id is overwritten in place and
// keeps its insertion order.
func (q *PriorityQueue[T]) Add(id uint64, element T, priority int) {
	if it, ok := q.index[id]; ok {
		it.element = element
		it.priority = priority
		heap.Fix(&q.items, it.pos)
		return
	}

	q.seq++
	it := &pqItem[T]{id: id, element: element, priority: priority, seq: q.seq}
	q.index[id] = it
	heap.Push(&q.items, it)
}

// Remove drops id. It reports whether id was present.
func (q *PriorityQueue[T]) Remove(id uint64) (T, bool) {
	it, ok := q.index[id]
	if !ok {
		var zero T
		return zero, false
	}
	heap.Remove(&q.items, it.pos)
	delete(q.index, id)
	return it.element, true
}

// SetPriority changes the priority of an existing id. Unknown ids are
// ignored.
func (q *PriorityQueue[T]) SetPriority(id uint64, priority int) {
	it, ok := q.index[id]
	if !ok {
		return
	}
	it.priority = priority
	heap.Fix(&q.items, it.pos)
}

// Next removes and returns the highest-priority element.
func (q *PriorityQueue[T]) Next() (T, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	it := heap.Pop(&q.items).(*pqItem[T])
	delete(q.index, it.id)
	return it.element, true
}

// Size returns the number of queued elements.
func (q *PriorityQueue[T]) Size() int {
	return len(q.items)
}

// Drain removes and returns every element in pop order.
func (q *PriorityQueue[T]) Drain() []T {
	out := make([]T, 0, len(q.items))
	for {
		v, ok := q.Next()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

type pqHeap[T any] []*pqItem[T]

func (h pqHeap[T]) Len() int { return len(h) }

func (h pqHeap[T]) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h pqHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].pos = i
	h[j].pos = j
}

func (h *pqHeap[T]) Push(x any) {
	it := x.(*pqItem[T])
	it.pos = len(*h)
	*h = append(*h, it)
}

func (h *pqHeap[T]) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	it.pos = -1
	return it
}

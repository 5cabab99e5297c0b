// Package queue provides a FIFO used by the bus simulator to hold bytes a
// device still has to put on the bus.
package queue

// Queue is a first-in first-out queue. It is not safe for concurrent use.
type Queue[T any] struct {
	items []T
	head  int
}

// New creates a queue with room for prealloc items.
func New[T any](prealloc int) *Queue[T] {
	return &Queue[T]{items: make([]T, 0, prealloc)}
}

// Enqueue adds items to the tail of the queue.
func (q *Queue[T]) Enqueue(items ...T) {
	if q.head > 0 && q.head == len(q.items) {
		q.Reset()
	}
	q.items = append(q.items, items...)
}

// Dequeue removes and returns the item at the head of the queue. ok is false
// when the queue is empty.
func (q *Queue[T]) Dequeue() (item T, ok bool) {
	if q.IsEmpty() {
		return item, false
	}
	item = q.items[q.head]
	var zero T
	q.items[q.head] = zero
	q.head++

	return item, true
}

// Peek returns the item at the head of the queue without removing it.
func (q *Queue[T]) Peek() (item T, ok bool) {
	if q.IsEmpty() {
		return item, false
	}

	return q.items[q.head], true
}

// Reset empties the queue, keeping its storage.
func (q *Queue[T]) Reset() {
	clear(q.items)
	q.items = q.items[:0]
	q.head = 0
}

// IsEmpty returns true if the queue is empty.
func (q *Queue[T]) IsEmpty() bool {
	return q.head == len(q.items)
}

// Length returns the number of items in the queue.
func (q *Queue[T]) Length() int {
	return len(q.items) - q.head
}

// Items returns a copy of the queued items, head first.
func (q *Queue[T]) Items() []T {
	return append([]T(nil), q.items[q.head:]...)
}

package indexing

import (
	"context"
	"sync"
)

// rootQueue is an unbounded FIFO of root paths with a single consumer.
type rootQueue struct {
	mu       sync.Mutex
	items    []string
	enqueued int
	notify   chan struct{}
}

func newRootQueue() *rootQueue {
	return &rootQueue{notify: make(chan struct{}, 1)}
}

func (q *rootQueue) push(root string) {
	q.mu.Lock()
	q.items = append(q.items, root)
	q.enqueued++
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop blocks until a root is available or ctx is done.
func (q *rootQueue) pop(ctx context.Context) (string, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			root := q.items[0]
			q.items[0] = ""
			q.items = q.items[1:]
			q.mu.Unlock()
			return root, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", false
		case <-q.notify:
		}
	}
}

func (q *rootQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *rootQueue) total() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enqueued
}

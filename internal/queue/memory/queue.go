// Package memory provides the in-process analysis job queue.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/cookie-crawler/internal/jobs"
)

// ErrQueueClosed is returned after Close.
var ErrQueueClosed = jobs.ErrQueueClosed

// ErrQueueFull is returned by TryEnqueue when no capacity is left.
var ErrQueueFull = errors.New("queue full")

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan jobs.Item
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{ch: make(chan jobs.Item, capacity)}
}

// Enqueue blocks until there is room or ctx ends.
func (q *Queue) Enqueue(ctx context.Context, item jobs.Item) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// TryEnqueue adds item without blocking so the API can shed load.
func (q *Queue) TryEnqueue(item jobs.Item) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue pops the next item, respecting ctx cancellation.
func (q *Queue) Dequeue(ctx context.Context) (jobs.Item, error) {
	select {
	case <-ctx.Done():
		return jobs.Item{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return jobs.Item{}, ErrQueueClosed
		}
		return item, nil
	}
}

// Len reports the number of queued items.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops the queue. Pending items are still delivered.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}

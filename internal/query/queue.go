package query

import (
	"log/slog"
	"sync"

	"github.com/openmmo/querymanager/internal/logger"
)

// Queue is the bounded ring the worker pool drains. Capacity is fixed at
// construction; a full queue blocks producers rather than dropping work, so
// a slow database stalls connections instead of losing queries.
type Queue struct {
	mu       sync.Mutex
	notEmpty sync.Cond
	notFull  sync.Cond

	ring []*Query
	head int
	size int

	stopped bool
}

// NewQueue builds a queue holding at most capacity queries.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue{ring: make([]*Query, capacity)}
	q.notEmpty.L = &q.mu
	q.notFull.L = &q.mu
	return q
}

// Len returns the number of queued queries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return len(q.ring)
}

// Enqueue hands the query to the worker pool, taking the pool's reference.
// It blocks while the queue is full and reports false if the query is
// already referenced elsewhere or the queue has stopped.
func (q *Queue) Enqueue(item *Query) bool {
	if !item.acquire() {
		logger.WarnCtx(item.Context(), "Query already referenced, dropping",
			logger.Query(item.Opcode().String()),
			slog.Int("refs", int(item.Refs())))
		return false
	}

	q.mu.Lock()
	for q.size == len(q.ring) && !q.stopped {
		logger.WarnCtx(item.Context(),
			"Execution stalled: queue is full, consider increasing the number of worker threads",
			logger.QueueLen(q.size),
			logger.QueueCap(len(q.ring)))
		q.notFull.Wait()
	}
	if q.stopped {
		q.mu.Unlock()
		item.Release()
		return false
	}

	q.ring[(q.head+q.size)%len(q.ring)] = item
	q.size++
	q.mu.Unlock()

	q.notEmpty.Signal()
	return true
}

// Dequeue blocks until a query is available and returns it. It returns nil
// once the queue has stopped, even if queries remain; Stop fails those
// itself so their connections are not left waiting.
func (q *Queue) Dequeue() *Query {
	q.mu.Lock()
	for q.size == 0 && !q.stopped {
		q.notEmpty.Wait()
	}
	if q.stopped {
		q.mu.Unlock()
		return nil
	}

	item := q.ring[q.head]
	q.ring[q.head] = nil
	q.head = (q.head + 1) % len(q.ring)
	q.size--
	q.mu.Unlock()

	q.notFull.Signal()
	return item
}

// Stop wakes all producers and consumers and fails every query still
// queued, releasing the pool's reference so waiting connections observe
// completion.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true

	drained := make([]*Query, 0, q.size)
	for q.size > 0 {
		drained = append(drained, q.ring[q.head])
		q.ring[q.head] = nil
		q.head = (q.head + 1) % len(q.ring)
		q.size--
	}
	q.mu.Unlock()

	q.notEmpty.Broadcast()
	q.notFull.Broadcast()

	for _, item := range drained {
		item.Failed()
		item.Release()
	}
}

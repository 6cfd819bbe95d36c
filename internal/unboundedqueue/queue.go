// Package unboundedqueue provides a growable, unbounded FIFO queue of
// messages: producers never block, and the queue grows in memory if
// consumers fall behind.
package unboundedqueue

import (
	"sync"

	"github.com/nullbridge/orchestrator/message"
)

// Queue is a FIFO queue of messages safe for concurrent producers and a
// single consumer.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []message.Message
	closed bool
}

// New returns an empty, open Queue.
func New() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues m. It never blocks.
func (q *Queue) Push(m message.Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, m)
	q.cond.Signal()
}

// Pop blocks until a message is available or the queue is closed, in which
// case ok is false.
func (q *Queue) Pop() (m message.Message, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return message.Message{}, false
	}
	m, q.items = q.items[0], q.items[1:]
	return m, true
}

// Close marks the queue closed, unblocking any pending Pop once drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

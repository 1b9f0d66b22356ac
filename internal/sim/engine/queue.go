package engine

import "sync"

// Queue is the effect queue between command handlers and dispatch. Multiple
// handler invocations may enqueue concurrently; Drain hands back everything
// in enqueue order, exactly once.
type Queue struct {
	mu      sync.Mutex
	pending []Effect
}

func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) Enqueue(e Effect) {
	q.mu.Lock()
	q.pending = append(q.pending, e)
	q.mu.Unlock()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Drain removes and returns all queued effects in FIFO order.
func (q *Queue) Drain() []Effect {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	out := q.pending
	q.pending = nil
	return out
}

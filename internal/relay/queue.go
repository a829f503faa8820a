package relay

import (
	"sync"

	"gtrbot/internal/gtr"
	"gtrbot/internal/metrics"
)

// queue is the unbounded FIFO buffer between the stream callback and the
// drain loop. One mutex covers both producer and consumer so neither can
// observe a torn state.
type queue struct {
	mu    sync.Mutex
	items []*gtr.Event
}

func newQueue() *queue {
	return &queue{}
}

func (q *queue) Enqueue(ev *gtr.Event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	metrics.QueueDepth.Set(float64(len(q.items)))
	q.mu.Unlock()
}

// Dequeue pops the oldest event, or nil when empty.
func (q *queue) Dequeue() *gtr.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	ev := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	metrics.QueueDepth.Set(float64(len(q.items)))
	return ev
}

func (q *queue) Len() int {
	q.mu.Lock()
	n := len(q.items)
	q.mu.Unlock()
	return n
}

package relay

import (
	"sync"

	"gtrbot/internal/metrics"
)

// dedup tracks which event keys have already produced a delivery attempt.
// Process-lifetime only; grows monotonically and is never persisted.
type dedup struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newDedup() *dedup {
	return &dedup{seen: make(map[string]struct{})}
}

func (d *dedup) HasSeen(key string) bool {
	d.mu.Lock()
	_, ok := d.seen[key]
	d.mu.Unlock()
	return ok
}

// MarkIfNew atomically checks and inserts. Returns true when the key was not
// previously present. The check and the insert share one critical section so
// that two concurrent arrivals of the same key cannot both win.
func (d *dedup) MarkIfNew(key string) bool {
	d.mu.Lock()
	_, ok := d.seen[key]
	if !ok {
		d.seen[key] = struct{}{}
		metrics.DedupSize.Set(float64(len(d.seen)))
	}
	d.mu.Unlock()
	return !ok
}

func (d *dedup) Len() int {
	d.mu.Lock()
	n := len(d.seen)
	d.mu.Unlock()
	return n
}

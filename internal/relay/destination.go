package relay

import (
	"sync"

	kit "gtrbot/internal/transport"
)

// destination holds the single announcement target. Unset means the relay
// drops every event silently; /start arms it, /stop clears it.
type destination struct {
	mu     sync.Mutex
	target *kit.ChatTarget
}

func (d *destination) Set(t kit.ChatTarget) {
	d.mu.Lock()
	d.target = &t
	d.mu.Unlock()
}

func (d *destination) Clear() {
	d.mu.Lock()
	d.target = nil
	d.mu.Unlock()
}

// Get returns the current target and whether one is set.
func (d *destination) Get() (kit.ChatTarget, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.target == nil {
		return kit.ChatTarget{}, false
	}
	return *d.target, true
}

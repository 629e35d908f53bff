package engine

import (
	"strings"
	"sync"
	"time"
)

// dedup remembers recent (channel, text) pairs. Channels often repost the
// same signal, or a source redelivers after a restart.
type dedup struct {
	window time.Duration
	now    func() time.Time

	mu     sync.Mutex
	recent map[string]time.Time
}

func newDedup(window time.Duration, now func() time.Time) *dedup {
	return &dedup{window: window, now: now, recent: make(map[string]time.Time)}
}

// seen reports whether the pair was seen inside the window and records it.
func (d *dedup) seen(channel, text string) bool {
	if d.window <= 0 {
		return false
	}
	key := channel + "\x00" + strings.Join(strings.Fields(text), " ")
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()
	for k, at := range d.recent {
		if now.Sub(at) > d.window {
			delete(d.recent, k)
		}
	}
	if at, ok := d.recent[key]; ok && now.Sub(at) <= d.window {
		return true
	}
	d.recent[key] = now
	return false
}

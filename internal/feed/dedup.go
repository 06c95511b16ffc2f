package feed

import (
	"sync"
	"time"
)

// Dedup is a time-windowed set of recently emitted event keys.
// The lock is held only inside Seen.
type Dedup struct {
	mu      sync.Mutex
	window  time.Duration
	maxKeys int
	seen    map[string]time.Time
	order   []dedupEntry
	head    int
}

type dedupEntry struct {
	key string
	at  time.Time
}

// NewDedup creates a dedup set. maxKeys <= 0 means unbounded within the window.
func NewDedup(window time.Duration, maxKeys int) *Dedup {
	return &Dedup{
		window:  window,
		maxKeys: maxKeys,
		seen:    make(map[string]time.Time),
	}
}

// Seen reports whether key was already emitted within the window, and records it if not.
func (d *Dedup) Seen(key string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.expire(now)

	if at, ok := d.seen[key]; ok && now.Sub(at) < d.window {
		return true
	}

	if d.maxKeys > 0 && len(d.seen) >= d.maxKeys {
		d.dropOldest()
	}

	d.seen[key] = now
	d.order = append(d.order, dedupEntry{key: key, at: now})
	return false
}

// Len returns the number of keys currently tracked.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

func (d *Dedup) expire(now time.Time) {
	for d.head < len(d.order) && now.Sub(d.order[d.head].at) >= d.window {
		d.dropOldest()
	}
	// compact once the consumed prefix dominates
	if d.head > 1024 && d.head*2 > len(d.order) {
		n := copy(d.order, d.order[d.head:])
		d.order = d.order[:n]
		d.head = 0
	}
}

func (d *Dedup) dropOldest() {
	if d.head >= len(d.order) {
		return
	}
	e := d.order[d.head]
	d.order[d.head] = dedupEntry{}
	d.head++
	if at, ok := d.seen[e.key]; ok && at.Equal(e.at) {
		delete(d.seen, e.key)
	}
}

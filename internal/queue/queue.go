// Package queue is the bounded, priority-ordered execution queue.
package queue

import (
	"container/heap"
	"errors"
	"sync"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/observability"
)

var (
	// ErrQueueFull is returned when a full queue holds nothing of lower priority.
	ErrQueueFull = errors.New("execution queue full")
	// ErrClosed is returned by Push after Close.
	ErrClosed = errors.New("execution queue closed")
	// ErrDuplicate is returned when the candidate id is already queued.
	ErrDuplicate = errors.New("candidate already queued")
)

// Option configures a Queue.
type Option func(*Queue)

// WithExpireHook registers a callback for entries dropped as expired by PopReady.
// It runs outside the queue lock.
func WithExpireHook(fn func([]*domain.QueueEntry)) Option {
	return func(q *Queue) {
		q.onExpire = fn
	}
}

// Queue orders entries by descending priority, then creation time, then insertion order.
// A max-heap serves pops and a min-heap finds the eviction victim; both are O(log n).
type Queue struct {
	mu       sync.Mutex
	capacity int
	best     bestHeap
	worst    worstHeap
	byID     map[string]*item
	seq      uint64
	closed   bool

	ready    chan struct{}
	onExpire func([]*domain.QueueEntry)
}

type item struct {
	entry    *domain.QueueEntry
	seq      uint64
	bestIdx  int
	worstIdx int
}

// New creates a queue holding at most capacity entries.
func New(capacity int, opts ...Option) *Queue {
	q := &Queue{
		capacity: capacity,
		byID:     make(map[string]*item),
		ready:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Push adds an entry. When full, the lowest-priority entry is evicted and returned
// if the new entry has strictly higher priority; otherwise ErrQueueFull.
func (q *Queue) Push(e *domain.QueueEntry) (*domain.QueueEntry, error) {
	q.mu.Lock()

	if q.closed {
		q.mu.Unlock()
		return nil, ErrClosed
	}
	if _, ok := q.byID[e.Candidate.ID]; ok {
		q.mu.Unlock()
		return nil, ErrDuplicate
	}

	var evicted *domain.QueueEntry
	if len(q.best) >= q.capacity {
		victim := q.worst[0]
		if e.Priority <= victim.entry.Priority {
			q.mu.Unlock()
			return nil, ErrQueueFull
		}
		q.remove(victim)
		evicted = victim.entry
	}

	q.seq++
	it := &item{entry: e, seq: q.seq}
	heap.Push(&q.best, it)
	heap.Push(&q.worst, it)
	q.byID[e.Candidate.ID] = it
	size := len(q.best)
	q.mu.Unlock()

	if evicted != nil {
		observability.RecordQueueEviction("capacity")
	}
	observability.SetQueueSize(size)
	q.signal()
	return evicted, nil
}

// PopReady removes and returns the highest-priority entry that is still dispatchable,
// or nil. Expired entries found on the way are dropped and passed to the expire hook.
func (q *Queue) PopReady(now time.Time, currentSlot int64) *domain.QueueEntry {
	var expired []*domain.QueueEntry
	var out *domain.QueueEntry

	q.mu.Lock()
	for len(q.best) > 0 {
		top := q.best[0]
		q.remove(top)
		if top.entry.Expired(now, currentSlot) {
			expired = append(expired, top.entry)
			continue
		}
		out = top.entry
		break
	}
	size := len(q.best)
	q.mu.Unlock()

	observability.SetQueueSize(size)
	q.reportExpired(expired)
	if out != nil && size > 0 {
		q.signal()
	}
	return out
}

// EvictExpired removes every entry past its deadline or target slot and returns them.
func (q *Queue) EvictExpired(now time.Time, currentSlot int64) []*domain.QueueEntry {
	q.mu.Lock()
	var victims []*item
	for _, it := range q.best {
		if it.entry.Expired(now, currentSlot) {
			victims = append(victims, it)
		}
	}
	expired := make([]*domain.QueueEntry, 0, len(victims))
	for _, it := range victims {
		q.remove(it)
		expired = append(expired, it.entry)
	}
	size := len(q.best)
	q.mu.Unlock()

	for range expired {
		observability.RecordQueueEviction("expired")
	}
	if len(expired) > 0 {
		observability.SetQueueSize(size)
	}
	return expired
}

// Remove drops the entry for a candidate id, returning it if present.
func (q *Queue) Remove(candidateID string) *domain.QueueEntry {
	q.mu.Lock()
	it, ok := q.byID[candidateID]
	if ok {
		q.remove(it)
	}
	size := len(q.best)
	q.mu.Unlock()

	if !ok {
		return nil
	}
	observability.SetQueueSize(size)
	return it.entry
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.best)
}

// Ready is signalled after a push; a waiter should then call PopReady.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Close rejects further pushes and returns every remaining entry in priority order.
func (q *Queue) Close() []*domain.QueueEntry {
	q.mu.Lock()
	q.closed = true
	var out []*domain.QueueEntry
	for len(q.best) > 0 {
		top := q.best[0]
		q.remove(top)
		out = append(out, top.entry)
	}
	q.mu.Unlock()

	observability.SetQueueSize(0)
	return out
}

// remove deletes it from both heaps. Caller holds q.mu.
func (q *Queue) remove(it *item) {
	heap.Remove(&q.best, it.bestIdx)
	heap.Remove(&q.worst, it.worstIdx)
	delete(q.byID, it.entry.Candidate.ID)
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *Queue) reportExpired(expired []*domain.QueueEntry) {
	if len(expired) == 0 {
		return
	}
	for range expired {
		observability.RecordQueueEviction("expired")
	}
	if q.onExpire != nil {
		q.onExpire(expired)
	}
}

// higher reports whether a ranks before b.
func higher(a, b *item) bool {
	if a.entry.Priority != b.entry.Priority {
		return a.entry.Priority > b.entry.Priority
	}
	ac, bc := a.entry.Candidate.CreatedAt, b.entry.Candidate.CreatedAt
	if !ac.Equal(bc) {
		return ac.Before(bc)
	}
	return a.seq < b.seq
}

type bestHeap []*item

func (h bestHeap) Len() int           { return len(h) }
func (h bestHeap) Less(i, j int) bool { return higher(h[i], h[j]) }
func (h bestHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].bestIdx = i
	h[j].bestIdx = j
}
func (h *bestHeap) Push(x any) {
	it := x.(*item)
	it.bestIdx = len(*h)
	*h = append(*h, it)
}
func (h *bestHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

type worstHeap []*item

func (h worstHeap) Len() int           { return len(h) }
func (h worstHeap) Less(i, j int) bool { return higher(h[j], h[i]) }
func (h worstHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].worstIdx = i
	h[j].worstIdx = j
}
func (h *worstHeap) Push(x any) {
	it := x.(*item)
	it.worstIdx = len(*h)
	*h = append(*h, it)
}
func (h *worstHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

package memory

import (
	"context"
	"sort"
	"sync"

	"solana-sniper/internal/storage"
)

// OutcomeJournal is an in-memory implementation of storage.OutcomeJournal.
type OutcomeJournal struct {
	mu     sync.RWMutex
	data   map[string]storage.OutcomeRecord // keyed by record id
	closed bool
}

// NewOutcomeJournal creates a new in-memory outcome journal.
func NewOutcomeJournal() *OutcomeJournal {
	return &OutcomeJournal{
		data: make(map[string]storage.OutcomeRecord),
	}
}

// Compile-time interface check.
var _ storage.OutcomeJournal = (*OutcomeJournal)(nil)

// Record adds a record. Returns ErrDuplicateKey if the id exists.
func (j *OutcomeJournal) Record(_ context.Context, r storage.OutcomeRecord) error {
	if err := r.Validate(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return storage.ErrClosed
	}
	if _, exists := j.data[r.ID]; exists {
		return storage.ErrDuplicateKey
	}
	j.data[r.ID] = r
	return nil
}

// Records returns all records ordered by RecordedAt, then ID.
func (j *OutcomeJournal) Records() []storage.OutcomeRecord {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]storage.OutcomeRecord, 0, len(j.data))
	for _, r := range j.data {
		out = append(out, r)
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].RecordedAt.Equal(out[b].RecordedAt) {
			return out[a].RecordedAt.Before(out[b].RecordedAt)
		}
		return out[a].ID < out[b].ID
	})
	return out
}

// Close marks the journal closed.
func (j *OutcomeJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.closed = true
	return nil
}

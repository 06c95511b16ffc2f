// Package storage defines the outcome journal: a write-only audit sink for terminal
// execution outcomes. The core never reads it back.
package storage

import (
	"context"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/idhash"
)

// OutcomeRecord is one journaled terminal outcome.
type OutcomeRecord struct {
	ID          string
	RunID       string
	CandidateID string
	Asset       string
	Kind        string
	Signature   string
	Slot        int64
	OriginSlot  int64
	Route       string
	Attempts    int
	Reason      string
	LatencyMs   int64
	RecordedAt  time.Time
}

// NewOutcomeRecord converts an executor outcome into a journal row for runID.
func NewOutcomeRecord(runID string, o domain.Outcome) OutcomeRecord {
	at := o.At
	if at.IsZero() {
		at = time.Now()
	}
	return OutcomeRecord{
		ID:          idhash.ComputeOutcomeID(runID, o.CandidateID),
		RunID:       runID,
		CandidateID: o.CandidateID,
		Asset:       o.Asset,
		Kind:        o.Kind.String(),
		Signature:   o.Signature,
		Slot:        o.Slot,
		OriginSlot:  o.OriginSlot,
		Route:       o.Route.String(),
		Attempts:    o.Attempts,
		Reason:      o.Reason,
		LatencyMs:   o.Latency.Milliseconds(),
		RecordedAt:  at.UTC(),
	}
}

// Validate checks required fields.
func (r OutcomeRecord) Validate() error {
	if r.ID == "" || r.RunID == "" || r.CandidateID == "" || r.Kind == "" {
		return ErrInvalidInput
	}
	return nil
}

// OutcomeJournal stores outcome records. Record returns ErrDuplicateKey when the id exists.
type OutcomeJournal interface {
	Record(ctx context.Context, r OutcomeRecord) error
	Close() error
}

package postgres

import (
	"context"
	"fmt"

	"solana-sniper/internal/storage"
)

// OutcomeJournal implements storage.OutcomeJournal using PostgreSQL.
type OutcomeJournal struct {
	pool *Pool
}

// NewOutcomeJournal creates a new OutcomeJournal. The outcomes table must exist.
func NewOutcomeJournal(pool *Pool) *OutcomeJournal {
	return &OutcomeJournal{pool: pool}
}

// Compile-time interface check.
var _ storage.OutcomeJournal = (*OutcomeJournal)(nil)

// Record inserts one outcome. Returns ErrDuplicateKey if the id exists.
func (j *OutcomeJournal) Record(ctx context.Context, r storage.OutcomeRecord) error {
	if err := r.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO outcomes (
			id, run_id, candidate_id, asset, kind, signature,
			slot, origin_slot, route, attempts, reason, latency_ms, recorded_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12, $13
		)
	`

	_, err := j.pool.Exec(ctx, query,
		r.ID, r.RunID, r.CandidateID, r.Asset, r.Kind, r.Signature,
		r.Slot, r.OriginSlot, r.Route, r.Attempts, r.Reason, r.LatencyMs, r.RecordedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// Count returns the number of journaled outcomes for a run.
func (j *OutcomeJournal) Count(ctx context.Context, runID string) (int, error) {
	var n int
	if err := j.pool.QueryRow(ctx, `SELECT COUNT(*) FROM outcomes WHERE run_id = $1`, runID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count outcomes: %w", err)
	}
	return n, nil
}

// Close closes the underlying pool.
func (j *OutcomeJournal) Close() error {
	j.pool.Close()
	return nil
}

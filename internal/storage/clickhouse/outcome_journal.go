package clickhouse

import (
	"context"
	"fmt"
	"sync"

	"solana-sniper/internal/storage"
)

// OutcomeJournal implements storage.OutcomeJournal using ClickHouse.
// MergeTree does not enforce uniqueness, so ids are checked before insert.
type OutcomeJournal struct {
	conn *Conn
	mu   sync.Mutex
}

// NewOutcomeJournal creates a new OutcomeJournal. The outcomes table must exist.
func NewOutcomeJournal(conn *Conn) *OutcomeJournal {
	return &OutcomeJournal{conn: conn}
}

// Compile-time interface check.
var _ storage.OutcomeJournal = (*OutcomeJournal)(nil)

// Record inserts one outcome. Returns ErrDuplicateKey if the id exists.
func (j *OutcomeJournal) Record(ctx context.Context, r storage.OutcomeRecord) error {
	if err := r.Validate(); err != nil {
		return err
	}

	// Serialize check-then-insert within this process.
	j.mu.Lock()
	defer j.mu.Unlock()

	exists, err := j.exists(ctx, r.ID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := j.conn.PrepareBatch(ctx, `
		INSERT INTO outcomes (
			id, run_id, candidate_id, asset, kind, signature,
			slot, origin_slot, route, attempts, reason, latency_ms, recorded_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		r.ID, r.RunID, r.CandidateID, r.Asset, r.Kind, r.Signature,
		uint64(r.Slot), uint64(r.OriginSlot), r.Route, uint32(r.Attempts), r.Reason, r.LatencyMs, r.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// Count returns the number of journaled outcomes for a run.
func (j *OutcomeJournal) Count(ctx context.Context, runID string) (uint64, error) {
	var n uint64
	if err := j.conn.QueryRow(ctx, `SELECT count(*) FROM outcomes WHERE run_id = ?`, runID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count outcomes: %w", err)
	}
	return n, nil
}

// Close closes the connection.
func (j *OutcomeJournal) Close() error {
	return j.conn.Close()
}

func (j *OutcomeJournal) exists(ctx context.Context, id string) (bool, error) {
	var count uint64
	err := j.conn.QueryRow(ctx, `SELECT count(*) FROM outcomes WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

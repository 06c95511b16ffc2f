package domain

import (
	"time"

	solanago "github.com/gagliardetto/solana-go"
)

// TxSkeleton is an unsigned transaction body. The blockhash is attached at dispatch.
type TxSkeleton struct {
	Instructions []solanago.Instruction
	Payer        solanago.PublicKey
}

// ExecutionCandidate is an accepted buy decision.
type ExecutionCandidate struct {
	ID string
	// Asset is the target mint; at most one candidate per asset may be in flight.
	Asset    string
	Skeleton TxSkeleton
	Signers  []solanago.PrivateKey
	Urgency  Urgency
	// SlotOffset is the slot grace: 0 targets the current slot.
	SlotOffset int
	// OriginSlot is the slot the triggering event was observed in.
	OriginSlot int64
	// EventKey is the key of the RawEvent that produced the candidate.
	EventKey  string
	CreatedAt time.Time
}

// QueueEntry is a candidate waiting for dispatch.
type QueueEntry struct {
	Candidate *ExecutionCandidate
	Priority  int64
	// Attempt is 1-based; retries re-enqueue with Attempt+1 and the same Priority.
	Attempt    int
	TargetSlot int64
	Deadline   time.Time
	EnqueuedAt time.Time
}

// Expired reports whether the entry may no longer be dispatched.
func (e *QueueEntry) Expired(now time.Time, currentSlot int64) bool {
	if !now.Before(e.Deadline) {
		return true
	}
	return currentSlot > e.TargetSlot
}

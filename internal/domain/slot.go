package domain

import "time"

// SlotState is an immutable snapshot of the tracked chain position.
type SlotState struct {
	Slot                 int64
	Blockhash            string
	LastValidBlockHeight int64
	ObservedAt           time.Time
	// SlotDuration is the current estimate of time per slot.
	SlotDuration time.Duration
}

// Age returns how long ago the blockhash was observed.
func (s SlotState) Age(now time.Time) time.Duration {
	return now.Sub(s.ObservedAt)
}

package queue

import (
	"time"

	"solana-sniper/internal/domain"
)

// Score ranks an entry. Offset dominates: any offset-0 entry outranks every
// non-zero offset. Urgency breaks ties within an offset class.
func Score(u domain.Urgency, slotOffset int) int64 {
	return -int64(slotOffset)*domain.NumUrgencies + int64(u)
}

// Deadline is the last instant an entry may be dispatched: the end of its target slot.
func Deadline(created time.Time, slotOffset int, slotDuration time.Duration) time.Time {
	return created.Add(time.Duration(slotOffset+1) * slotDuration)
}

// NewEntry wraps a candidate for the given attempt. The target slot is derived from
// originSlot, the slot the candidate's window is anchored to.
func NewEntry(c *domain.ExecutionCandidate, attempt int, originSlot int64, now time.Time, slotDuration time.Duration) *domain.QueueEntry {
	return &domain.QueueEntry{
		Candidate:  c,
		Priority:   Score(c.Urgency, c.SlotOffset),
		Attempt:    attempt,
		TargetSlot: originSlot + int64(c.SlotOffset),
		Deadline:   Deadline(now, c.SlotOffset, slotDuration),
		EnqueuedAt: now,
	}
}

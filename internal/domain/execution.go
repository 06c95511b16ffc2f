package domain

import (
	"fmt"
	"time"
)

// Route is the submission path for one dispatch.
type Route int

const (
	RouteDirect Route = iota
	RouteBundle
)

// String returns the string representation of Route.
func (r Route) String() string {
	switch r {
	case RouteDirect:
		return "direct"
	case RouteBundle:
		return "bundle"
	default:
		return fmt.Sprintf("route(%d)", int(r))
	}
}

// CandidateState is the executor state of a candidate.
type CandidateState int

const (
	StateQueued CandidateState = iota
	StateDispatched
	StateConfirming
	StateConfirmed
	StateExpired
	StateFailed
)

// String returns the string representation of CandidateState.
func (s CandidateState) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateDispatched:
		return "dispatched"
	case StateConfirming:
		return "confirming"
	case StateConfirmed:
		return "confirmed"
	case StateExpired:
		return "expired"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// PendingExecution tracks a dispatched, unconfirmed transaction.
type PendingExecution struct {
	Candidate *ExecutionCandidate
	Signature string
	// PriorSignatures are earlier attempts' signatures; any of them may still land.
	PriorSignatures []string
	Route           Route
	BundleID        string
	TipLamports     uint64
	Attempt         int
	Priority        int64
	TargetSlot      int64
	Blockhash       string
	FirstSubmitAt   time.Time
	LastSubmitAt    time.Time
	LastStatus      string
}

// OutcomeKind classifies a terminal result.
type OutcomeKind int

const (
	OutcomeConfirmed OutcomeKind = iota
	// OutcomeFailed is a deterministic rejection by the network or chain.
	OutcomeFailed
	// OutcomeMissed is a hard miss: the slot window closed on every attempt.
	OutcomeMissed
	// OutcomeCancelled covers explicit cancel and shutdown drain.
	OutcomeCancelled
)

// String returns the string representation of OutcomeKind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeFailed:
		return "failed"
	case OutcomeMissed:
		return "missed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the terminal report for one candidate.
type Outcome struct {
	CandidateID string
	Asset       string
	Kind        OutcomeKind
	Signature   string
	// Slot is the landing slot for confirmed outcomes.
	Slot       int64
	OriginSlot int64
	Route      Route
	Attempts   int
	Reason     string
	Latency    time.Duration
	At         time.Time
}

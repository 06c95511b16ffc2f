package feed

import (
	"time"

	"solana-sniper/internal/domain"
)

// HealthPolicy is the endpoint health state machine:
//
//	healthy  -> degraded  after FailureThreshold consecutive failures or TimeoutThreshold consecutive timeouts
//	degraded -> dead      on a further failure with no successful probe for DeadAfter
//	any      -> healthy   after RecoverAfter consecutive successful probes
type HealthPolicy struct {
	FailureThreshold int
	TimeoutThreshold int
	DeadAfter        time.Duration
	RecoverAfter     int
}

// DefaultHealthPolicy returns the default thresholds.
func DefaultHealthPolicy() HealthPolicy {
	return HealthPolicy{
		FailureThreshold: 3,
		TimeoutThreshold: 3,
		DeadAfter:        30 * time.Second,
		RecoverAfter:     2,
	}
}

// OnProbeSuccess applies a successful ping or the first event of a connection. It returns true if Health changed.
func (p HealthPolicy) OnProbeSuccess(st *domain.EndpointState, now time.Time) bool {
	st.ConsecutiveFailures = 0
	st.ConsecutiveTimeouts = 0
	st.ConsecutiveSuccesses++
	st.LastSeen = now
	st.LastProbeOK = now

	if st.Health != domain.HealthHealthy && st.ConsecutiveSuccesses >= p.RecoverAfter {
		st.Health = domain.HealthHealthy
		st.UnhealthySince = time.Time{}
		return true
	}
	return false
}

// OnFailure applies a failed dial, read or ping. It returns true if Health changed.
func (p HealthPolicy) OnFailure(st *domain.EndpointState, now time.Time, timeout bool, cause error) bool {
	st.ConsecutiveSuccesses = 0
	if timeout {
		st.ConsecutiveTimeouts++
	} else {
		st.ConsecutiveFailures++
	}
	if cause != nil {
		st.LastError = cause.Error()
	}

	switch st.Health {
	case domain.HealthHealthy:
		if st.ConsecutiveFailures >= p.FailureThreshold || st.ConsecutiveTimeouts >= p.TimeoutThreshold {
			st.Health = domain.HealthDegraded
			st.UnhealthySince = now
			return true
		}
	case domain.HealthDegraded:
		since := st.UnhealthySince
		if st.LastProbeOK.After(since) {
			since = st.LastProbeOK
		}
		if now.Sub(since) >= p.DeadAfter {
			st.Health = domain.HealthDead
			return true
		}
	}
	return false
}

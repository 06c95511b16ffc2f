package domain

import (
	"fmt"
	"time"
)

// EndpointDescriptor identifies one event source. Immutable after config load.
type EndpointDescriptor struct {
	Name  string
	URL   string
	Token string
	// Priority is a static rank; lower is preferred for (re)connect order.
	Priority int
	// Weight biases probing frequency; higher weight probes more often.
	Weight  float64
	Enabled bool
}

// Health is the per-endpoint health flag.
type Health int

const (
	HealthHealthy Health = iota
	HealthDegraded
	HealthDead
)

// String returns the string representation of Health.
func (h Health) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthDegraded:
		return "degraded"
	case HealthDead:
		return "dead"
	default:
		return fmt.Sprintf("health(%d)", int(h))
	}
}

// MarshalText encodes Health as its name.
func (h Health) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// EndpointState is the runtime status of one endpoint. The pool hands out copies.
type EndpointState struct {
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Priority    int       `json:"priority"`
	Weight      float64   `json:"weight"`
	Health      Health    `json:"health"`
	Connected   bool      `json:"connected"`
	ConnectedAt time.Time `json:"connected_at"`

	ConsecutiveFailures  int `json:"consecutive_failures"`
	ConsecutiveTimeouts  int `json:"consecutive_timeouts"`
	ConsecutiveSuccesses int `json:"consecutive_successes"`

	// Latency is a rolling (EWMA) ping round-trip estimate.
	Latency   time.Duration `json:"latency"`
	LastSeen  time.Time     `json:"last_seen"`
	LastError string        `json:"last_error,omitempty"`
	// LastProbeOK is the last successful connect or ping.
	LastProbeOK time.Time `json:"last_probe_ok"`
	// UnhealthySince is when the endpoint last left healthy; zero while healthy.
	UnhealthySince time.Time `json:"unhealthy_since"`

	Reconnects int64  `json:"reconnects"`
	Events     uint64 `json:"events"`
}

package domain

import (
	"fmt"
	"strings"
)

// Urgency is a caller-assigned priority tag. It drives queue ordering, route selection and tip size.
type Urgency int

const (
	UrgencyLow Urgency = iota
	UrgencyNormal
	UrgencyHigh
	UrgencyCritical
)

// NumUrgencies is the number of urgency levels.
const NumUrgencies = 4

// String returns the string representation of Urgency.
func (u Urgency) String() string {
	switch u {
	case UrgencyLow:
		return "low"
	case UrgencyNormal:
		return "normal"
	case UrgencyHigh:
		return "high"
	case UrgencyCritical:
		return "critical"
	default:
		return fmt.Sprintf("urgency(%d)", int(u))
	}
}

// IsValid checks if the urgency is a known level.
func (u Urgency) IsValid() bool {
	return u >= UrgencyLow && u <= UrgencyCritical
}

// ParseUrgency parses a level name (case-insensitive). "medium" is accepted for normal.
func ParseUrgency(s string) (Urgency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return UrgencyLow, nil
	case "normal", "medium":
		return UrgencyNormal, nil
	case "high":
		return UrgencyHigh, nil
	case "critical":
		return UrgencyCritical, nil
	}
	return 0, fmt.Errorf("unknown urgency %q", s)
}

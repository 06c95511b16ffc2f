package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeOutcomeID computes a deterministic journal record id using SHA256.
// Formula: SHA256(run_id|candidate_id)
// A candidate has exactly one terminal outcome per run.
func ComputeOutcomeID(runID string, candidateID string) string {
	data := fmt.Sprintf("%s|%s", runID, candidateID)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

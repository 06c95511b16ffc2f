package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeCandidateID computes a deterministic candidate_id using SHA256.
// Formula: SHA256(mint|event_key|slot)
// Returns hex-encoded hash (64 characters).
func ComputeCandidateID(mint string, eventKey string, slot int64) string {
	data := fmt.Sprintf("%s|%s|%d", mint, eventKey, slot)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

package solana

import "context"

// RPCClient defines the Solana JSON-RPC surface used by the sniper.
type RPCClient interface {
	// GetSlot returns the current slot at the given commitment.
	GetSlot(ctx context.Context, commitment Commitment) (int64, error)

	// GetLatestBlockhash returns the most recent blockhash and the slot it was observed at.
	GetLatestBlockhash(ctx context.Context, commitment Commitment) (*LatestBlockhash, error)

	// SendTransaction broadcasts a base64-encoded signed transaction and returns its signature.
	SendTransaction(ctx context.Context, encoded string, opts SendOptions) (string, error)

	// GetSignatureStatuses returns one status per signature; nil entries are unknown to the node.
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)

	// GetRecentPrioritizationFees returns per-slot prioritization fees for the given writable accounts.
	GetRecentPrioritizationFees(ctx context.Context, accounts []string) ([]PrioritizationFee, error)
}

// Commitment is the bank state a query is evaluated against.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// LatestBlockhash is the result of getLatestBlockhash.
type LatestBlockhash struct {
	Slot                 int64
	Blockhash            string
	LastValidBlockHeight int64
}

// SendOptions controls sendTransaction behaviour.
type SendOptions struct {
	SkipPreflight       bool
	PreflightCommitment Commitment
	// MaxRetries is the node-side rebroadcast count; nil leaves the node default.
	MaxRetries *uint
}

// SignatureStatus is one entry of getSignatureStatuses.
type SignatureStatus struct {
	Slot               int64
	Confirmations      *int64
	Err                interface{}
	ConfirmationStatus Commitment
}

// Landed reports whether the transaction reached at least the given commitment.
func (s *SignatureStatus) Landed(min Commitment) bool {
	if s == nil {
		return false
	}
	rank := func(c Commitment) int {
		switch c {
		case CommitmentProcessed:
			return 1
		case CommitmentConfirmed:
			return 2
		case CommitmentFinalized:
			return 3
		}
		return 0
	}
	return rank(s.ConfirmationStatus) >= rank(min)
}

// PrioritizationFee is one entry of getRecentPrioritizationFees.
type PrioritizationFee struct {
	Slot              int64  `json:"slot"`
	PrioritizationFee uint64 `json:"prioritizationFee"`
}

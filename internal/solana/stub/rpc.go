package stub

import (
	"context"
	"errors"
	"sync"

	"solana-sniper/internal/solana"
)

// ErrNotFound is returned when no scripted response exists.
var ErrNotFound = errors.New("not found")

// RPCClient implements solana.RPCClient for testing. All fields are guarded;
// use the setters when a test mutates state while goroutines are running.
type RPCClient struct {
	mu sync.Mutex

	slot          int64
	blockhash     *solana.LatestBlockhash
	blockhashErr  error
	blockhashHits int

	sendFunc func(encoded string) (string, error)
	sent     []string

	statuses    map[string]*solana.SignatureStatus
	statusErr   error
	statusCalls int

	fees []solana.PrioritizationFee
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		statuses: make(map[string]*solana.SignatureStatus),
	}
}

// SetBlockhash scripts the next getLatestBlockhash responses.
func (c *RPCClient) SetBlockhash(bh *solana.LatestBlockhash, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blockhash = bh
	c.blockhashErr = err
	if bh != nil {
		c.slot = bh.Slot
	}
}

// SetSendFunc scripts sendTransaction.
func (c *RPCClient) SetSendFunc(fn func(encoded string) (string, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendFunc = fn
}

// SetStatus scripts the status returned for a signature; nil removes it.
func (c *RPCClient) SetStatus(signature string, status *solana.SignatureStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status == nil {
		delete(c.statuses, signature)
		return
	}
	c.statuses[signature] = status
}

// SetStatusErr makes getSignatureStatuses fail.
func (c *RPCClient) SetStatusErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusErr = err
}

// SetFees scripts getRecentPrioritizationFees.
func (c *RPCClient) SetFees(fees []solana.PrioritizationFee) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fees = fees
}

// Sent returns every encoded transaction passed to SendTransaction.
func (c *RPCClient) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

// BlockhashCalls returns how often GetLatestBlockhash was called.
func (c *RPCClient) BlockhashCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blockhashHits
}

// StatusCalls returns how often GetSignatureStatuses was called.
func (c *RPCClient) StatusCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusCalls
}

// GetSlot returns the slot of the scripted blockhash.
func (c *RPCClient) GetSlot(_ context.Context, _ solana.Commitment) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot, nil
}

// GetLatestBlockhash returns the scripted blockhash.
func (c *RPCClient) GetLatestBlockhash(_ context.Context, _ solana.Commitment) (*solana.LatestBlockhash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blockhashHits++
	if c.blockhashErr != nil {
		return nil, c.blockhashErr
	}
	if c.blockhash == nil {
		return nil, ErrNotFound
	}
	bh := *c.blockhash
	return &bh, nil
}

// SendTransaction records the transaction and returns the scripted result.
func (c *RPCClient) SendTransaction(_ context.Context, encoded string, _ solana.SendOptions) (string, error) {
	c.mu.Lock()
	c.sent = append(c.sent, encoded)
	fn := c.sendFunc
	c.mu.Unlock()

	if fn == nil {
		return "", ErrNotFound
	}
	return fn(encoded)
}

// GetSignatureStatuses returns scripted statuses, nil for unknown signatures.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusCalls++
	if c.statusErr != nil {
		return nil, c.statusErr
	}
	out := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		if st, ok := c.statuses[sig]; ok {
			cp := *st
			out[i] = &cp
		}
	}
	return out, nil
}

// GetRecentPrioritizationFees returns the scripted fees.
func (c *RPCClient) GetRecentPrioritizationFees(_ context.Context, _ []string) ([]solana.PrioritizationFee, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]solana.PrioritizationFee(nil), c.fees...), nil
}

var _ solana.RPCClient = (*RPCClient)(nil)

package submit

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/solana"
	"solana-sniper/internal/solana/stub"
)

var testBlockhash = solanago.Hash{1, 2, 3, 4, 5, 6, 7, 8}.String()

func TestSelectRoute(t *testing.T) {
	policy := Policy{BundleEnabled: true, BundleMinUrgency: domain.UrgencyHigh}

	tests := []struct {
		name    string
		policy  Policy
		urgency domain.Urgency
		want    domain.Route
	}{
		{"low goes direct", policy, domain.UrgencyLow, domain.RouteDirect},
		{"normal goes direct", policy, domain.UrgencyNormal, domain.RouteDirect},
		{"high goes bundle", policy, domain.UrgencyHigh, domain.RouteBundle},
		{"critical goes bundle", policy, domain.UrgencyCritical, domain.RouteBundle},
		{"bundles disabled", Policy{BundleMinUrgency: domain.UrgencyLow}, domain.UrgencyCritical, domain.RouteDirect},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectRoute(tt.policy, tt.urgency))
		})
	}
}

func TestTipCalculator_Monotone(t *testing.T) {
	calc := NewTipCalculator(5000, 100000, map[domain.Urgency]float64{
		domain.UrgencyLow:      1.0,
		domain.UrgencyNormal:   1.5,
		domain.UrgencyHigh:     2.0,
		domain.UrgencyCritical: 3.0,
	})

	congestion := []float64{0.05, 0.1, 0.5, 1, 1.3, 2, 5, 10, 50}
	for u := domain.UrgencyLow; u <= domain.UrgencyCritical; u++ {
		var prev uint64
		for _, c := range congestion {
			tip := calc.Tip(u, c)
			assert.GreaterOrEqual(t, tip, prev, "urgency %s congestion %v", u, c)
			assert.GreaterOrEqual(t, tip, uint64(5000))
			assert.LessOrEqual(t, tip, uint64(100000))
			prev = tip
		}
	}
	for _, c := range congestion {
		var prev uint64
		for u := domain.UrgencyLow; u <= domain.UrgencyCritical; u++ {
			tip := calc.Tip(u, c)
			assert.GreaterOrEqual(t, tip, prev)
			prev = tip
		}
	}

	assert.Equal(t, uint64(15000), calc.Tip(domain.UrgencyCritical, 1))
	assert.Equal(t, uint64(100000), calc.Tip(domain.UrgencyCritical, 10))
}

func TestTipCalculator_NonMonotoneMultipliersRaised(t *testing.T) {
	calc := NewTipCalculator(1000, 1000000, map[domain.Urgency]float64{
		domain.UrgencyNormal: 4,
		domain.UrgencyHigh:   2,
	})
	assert.Equal(t, uint64(4000), calc.Tip(domain.UrgencyNormal, 1))
	assert.Equal(t, uint64(4000), calc.Tip(domain.UrgencyHigh, 1))
	assert.Equal(t, uint64(4000), calc.Tip(domain.UrgencyCritical, 1))
}

func TestCongestionEstimator(t *testing.T) {
	rpc := stub.NewRPCClient()
	est := NewCongestionEstimator(rpc, 1000, nil, zap.NewNop())
	assert.Equal(t, 1.0, est.Factor())

	rpc.SetFees([]solana.PrioritizationFee{
		{Slot: 1, PrioritizationFee: 0},
		{Slot: 2, PrioritizationFee: 2000},
		{Slot: 3, PrioritizationFee: 3000},
		{Slot: 4, PrioritizationFee: 5000},
		{Slot: 5, PrioritizationFee: 100},
	})
	require.NoError(t, est.Refresh(context.Background()))
	assert.Equal(t, 2.0, est.Factor())

	rpc.SetFees([]solana.PrioritizationFee{{PrioritizationFee: 1e9}})
	require.NoError(t, est.Refresh(context.Background()))
	assert.Equal(t, MaxCongestion, est.Factor())

	rpc.SetFees([]solana.PrioritizationFee{{PrioritizationFee: 0}, {PrioritizationFee: 0}})
	require.NoError(t, est.Refresh(context.Background()))
	assert.Equal(t, MinCongestion, est.Factor())

	// empty sample keeps the previous factor
	rpc.SetFees(nil)
	require.NoError(t, est.Refresh(context.Background()))
	assert.Equal(t, MinCongestion, est.Factor())
}

type fakeRelay struct {
	mu      sync.Mutex
	bundles [][]string
	err     error
}

func (r *fakeRelay) SendBundle(_ context.Context, encoded []string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bundles = append(r.bundles, encoded)
	if r.err != nil {
		return "", r.err
	}
	return "bundle-1", nil
}

type fixedCongestion float64

func (f fixedCongestion) Factor() float64 { return float64(f) }

func testCandidate(t *testing.T, u domain.Urgency) *domain.ExecutionCandidate {
	t.Helper()
	key, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)
	payer := key.PublicKey()
	ix := system.NewTransferInstruction(1, payer, solanago.SystemProgramID).Build()

	return &domain.ExecutionCandidate{
		ID:       "cand-1",
		Asset:    "mint-1",
		Skeleton: domain.TxSkeleton{Instructions: []solanago.Instruction{ix}, Payer: payer},
		Signers:  []solanago.PrivateKey{key},
		Urgency:  u,
	}
}

func decodeTx(t *testing.T, encoded string) *solanago.Transaction {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	tx, err := solanago.TransactionFromDecoder(bin.NewBinDecoder(raw))
	require.NoError(t, err)
	return tx
}

func newDispatcher(t *testing.T, rpc Sender, relay BundleSender) *Dispatcher {
	t.Helper()
	tips := NewTipCalculator(5000, 100000, map[domain.Urgency]float64{domain.UrgencyHigh: 2})
	d, err := NewDispatcher(rpc, relay, tips, fixedCongestion(1), Config{
		Policy: Policy{BundleEnabled: true, BundleMinUrgency: domain.UrgencyHigh},
	}, zap.NewNop())
	require.NoError(t, err)
	return d
}

func TestDispatch_Direct(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetSendFunc(func(string) (string, error) { return "node-sig", nil })
	d := newDispatcher(t, rpc, &fakeRelay{})

	c := testCandidate(t, domain.UrgencyNormal)
	sub, err := d.Dispatch(context.Background(), c, testBlockhash)
	require.NoError(t, err)

	assert.Equal(t, domain.RouteDirect, sub.Route)
	assert.Equal(t, testBlockhash, sub.Blockhash)
	assert.Zero(t, sub.TipLamports)

	sent := rpc.Sent()
	require.Len(t, sent, 1)
	tx := decodeTx(t, sent[0])
	assert.Equal(t, testBlockhash, tx.Message.RecentBlockhash.String())
	assert.Len(t, tx.Message.Instructions, 1)
	assert.Equal(t, tx.Signatures[0].String(), sub.Signature)
	require.NoError(t, tx.VerifySignatures())
}

func TestDispatch_BundleAddsTip(t *testing.T) {
	rpc := stub.NewRPCClient()
	relay := &fakeRelay{}
	d := newDispatcher(t, rpc, relay)

	c := testCandidate(t, domain.UrgencyHigh)
	sub, err := d.Dispatch(context.Background(), c, testBlockhash)
	require.NoError(t, err)

	assert.Equal(t, domain.RouteBundle, sub.Route)
	assert.Equal(t, "bundle-1", sub.BundleID)
	assert.Equal(t, uint64(10000), sub.TipLamports)
	assert.False(t, sub.FellBack)
	assert.Empty(t, rpc.Sent())

	require.Len(t, relay.bundles, 1)
	tx := decodeTx(t, relay.bundles[0][0])
	assert.Len(t, tx.Message.Instructions, 2)
	tipAccount := solanago.MustPublicKeyFromBase58(solana.DefaultJitoTipAccount)
	assert.True(t, containsKey(tx.Message.AccountKeys, tipAccount))
}

func containsKey(keys []solanago.PublicKey, k solanago.PublicKey) bool {
	for _, key := range keys {
		if key.Equals(k) {
			return true
		}
	}
	return false
}

func TestDispatch_RelayUnavailableFallsBack(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetSendFunc(func(string) (string, error) { return "sig", nil })
	relay := &fakeRelay{err: errors.New("dial tcp: connection refused")}
	d := newDispatcher(t, rpc, relay)

	sub, err := d.Dispatch(context.Background(), testCandidate(t, domain.UrgencyCritical), testBlockhash)
	require.NoError(t, err)

	assert.True(t, sub.FellBack)
	assert.Equal(t, domain.RouteDirect, sub.Route)
	assert.Len(t, relay.bundles, 1)
	require.Len(t, rpc.Sent(), 1)
	// the fallback transaction carries no tip
	assert.Len(t, decodeTx(t, rpc.Sent()[0]).Message.Instructions, 1)
}

func TestDispatch_RelayRejectionFallsBack(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetSendFunc(func(string) (string, error) { return "sig", nil })
	relay := &fakeRelay{err: &solana.RPCError{Code: -32602, Message: "bundle rejected by block engine"}}
	d := newDispatcher(t, rpc, relay)

	sub, err := d.Dispatch(context.Background(), testCandidate(t, domain.UrgencyHigh), testBlockhash)
	require.NoError(t, err)

	assert.True(t, sub.FellBack)
	assert.Equal(t, domain.RouteDirect, sub.Route)
	assert.Len(t, relay.bundles, 1)
	assert.Len(t, rpc.Sent(), 1)
}

func TestDispatch_FallbackResultClassified(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetSendFunc(func(string) (string, error) {
		return "", &solana.RPCError{Code: -32003, Message: "Transaction signature verification failure"}
	})
	relay := &fakeRelay{err: &solana.RPCError{Code: -32602, Message: "bundle rejected by block engine"}}
	d := newDispatcher(t, rpc, relay)

	_, err := d.Dispatch(context.Background(), testCandidate(t, domain.UrgencyHigh), testBlockhash)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Len(t, rpc.Sent(), 1)
}

func TestDispatch_NoRelayAlwaysDirect(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetSendFunc(func(string) (string, error) { return "sig", nil })
	d := newDispatcher(t, rpc, nil)

	sub, err := d.Dispatch(context.Background(), testCandidate(t, domain.UrgencyCritical), testBlockhash)
	require.NoError(t, err)
	assert.Equal(t, domain.RouteDirect, sub.Route)
}

func TestDispatch_SendErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		rejected  bool
		transient bool
	}{
		{"blockhash not found", &solana.RPCError{Code: -32002, Message: "Transaction simulation failed: Blockhash not found"}, false, true},
		{"node unhealthy", &solana.RPCError{Code: -32005, Message: "Node is unhealthy"}, false, true},
		{"signature failure", &solana.RPCError{Code: -32003, Message: "Transaction signature verification failure"}, true, false},
		{"transport", errors.New("max retries exceeded: http request: EOF"), false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rpc := stub.NewRPCClient()
			rpc.SetSendFunc(func(string) (string, error) { return "", tt.err })
			d := newDispatcher(t, rpc, nil)

			_, err := d.Dispatch(context.Background(), testCandidate(t, domain.UrgencyNormal), testBlockhash)
			require.Error(t, err)
			assert.Equal(t, tt.rejected, errors.Is(err, ErrRejected))
			assert.Equal(t, tt.transient, IsTransient(err))
		})
	}
}

func TestDispatch_BadBlockhash(t *testing.T) {
	d := newDispatcher(t, stub.NewRPCClient(), nil)
	_, err := d.Dispatch(context.Background(), testCandidate(t, domain.UrgencyNormal), "not-a-hash!")
	require.Error(t, err)
}

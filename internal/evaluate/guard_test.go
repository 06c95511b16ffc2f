package evaluate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"solana-sniper/internal/discovery"
	"solana-sniper/internal/domain"
)

type scriptedRisk struct {
	verdict Verdict
	err     error
	calls   int
}

func (r *scriptedRisk) EvaluateRisk(context.Context, *discovery.CreateEvent) (Verdict, error) {
	r.calls++
	return r.verdict, r.err
}

func TestMintGuard_Blacklist(t *testing.T) {
	ev := launch(t, false)
	other := launch(t, false)
	inner := &scriptedRisk{verdict: Verdict{Accept: true}}
	g := NewMintGuard(inner, GuardConfig{Blacklist: []string{ev.CreatorKey().String()}}, zap.NewNop())

	v, err := g.EvaluateRisk(context.Background(), ev)
	require.NoError(t, err)
	assert.False(t, v.Accept)
	assert.Contains(t, v.Reason, "creator blacklisted")
	assert.Zero(t, inner.calls)

	v, err = g.EvaluateRisk(context.Background(), other)
	require.NoError(t, err)
	assert.True(t, v.Accept)
	assert.Equal(t, 1, inner.calls)
}

func TestMintGuard_BansHighRisk(t *testing.T) {
	ev := launch(t, false)
	inner := &scriptedRisk{verdict: Verdict{Accept: true, Score: 0.95}}
	g := NewMintGuard(inner, GuardConfig{BanScore: 0.9}, zap.NewNop())

	v, err := g.EvaluateRisk(context.Background(), ev)
	require.NoError(t, err)
	assert.False(t, v.Accept)

	// a later launch from the same creator is rejected without asking the inner evaluator
	next := launch(t, false)
	next.User = ev.User
	inner.verdict = Verdict{Accept: true}
	v, err = g.EvaluateRisk(context.Background(), next)
	require.NoError(t, err)
	assert.False(t, v.Accept)
	assert.Contains(t, v.Reason, "creator banned")
	assert.Equal(t, 1, inner.calls)
}

func TestMintGuard_CooldownAfterBroadcast(t *testing.T) {
	ev := launch(t, false)
	inner := &scriptedRisk{verdict: Verdict{Accept: true}}
	g := NewMintGuard(inner, GuardConfig{Cooldown: 30 * time.Second}, zap.NewNop())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	// nothing was sent, so no cooldown
	g.Observe(domain.Outcome{Asset: ev.Mint.String(), Kind: domain.OutcomeMissed})
	v, err := g.EvaluateRisk(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, v.Accept)

	g.Observe(domain.Outcome{Asset: ev.Mint.String(), Kind: domain.OutcomeConfirmed, Signature: "sig"})
	v, err = g.EvaluateRisk(context.Background(), ev)
	require.NoError(t, err)
	assert.False(t, v.Accept)
	assert.Contains(t, v.Reason, "cooldown")

	now = now.Add(31 * time.Second)
	v, err = g.EvaluateRisk(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, v.Accept)
}

func TestMintGuard_InnerError(t *testing.T) {
	inner := &scriptedRisk{err: errors.New("model unavailable")}
	g := NewMintGuard(inner, GuardConfig{}, zap.NewNop())
	_, err := g.EvaluateRisk(context.Background(), launch(t, false))
	assert.Error(t, err)
}

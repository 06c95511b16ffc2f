package evaluate

import (
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"solana-sniper/internal/discovery"
)

func launch(t *testing.T, withTrade bool) *discovery.CreateEvent {
	t.Helper()
	mint, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)
	curve, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)
	user, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)

	ev := &discovery.CreateEvent{
		Name:         "Good Coin",
		Symbol:       "GOOD",
		URI:          "https://example.com/good.json",
		Mint:         mint.PublicKey(),
		BondingCurve: curve.PublicKey(),
		User:         user.PublicKey(),
	}
	if withTrade {
		ev.Trade = &discovery.TradeEvent{
			Mint:                 ev.Mint,
			IsBuy:                true,
			VirtualSolReserves:   32_000_000_000,
			VirtualTokenReserves: 1_005_000_000_000_000,
		}
	}
	return ev
}

func TestMarketCapUSD(t *testing.T) {
	sol, tokens := Reserves(&discovery.CreateEvent{})
	mcap := MarketCapUSD(sol, tokens, decimal.NewFromInt(150))
	assert.Equal(t, "4193.85", mcap.StringFixed(2))

	sol, tokens = Reserves(&discovery.CreateEvent{Trade: &discovery.TradeEvent{
		VirtualSolReserves:   32_000_000_000,
		VirtualTokenReserves: 1_005_000_000_000_000,
	}})
	assert.True(t, sol.Equal(decimal.NewFromInt(32)))
	assert.True(t, tokens.Equal(decimal.NewFromInt(1_005_000_000)))
	assert.Equal(t, "4776.12", MarketCapUSD(sol, tokens, decimal.NewFromInt(150)).StringFixed(2))

	assert.True(t, MarketCapUSD(sol, decimal.Zero, decimal.NewFromInt(150)).IsZero())
}

func TestTokensOut(t *testing.T) {
	out := TokensOut(decimal.NewFromInt(30), decimal.NewFromInt(1_073_000_000), decimal.NewFromInt(1))
	assert.Equal(t, "34612903", out.Floor().String())
}

func newEvaluator(t *testing.T, threshold float64) (*MarketCapEvaluator, solanago.PrivateKey) {
	t.Helper()
	wallet, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)
	e := NewMarketCapEvaluator(MarketCapConfig{
		ThresholdUSD:     threshold,
		BuyAmountSOL:     0.001,
		Slippage:         1.2,
		ComputeUnitLimit: 400_000,
		ComputeUnitPrice: 500_000,
	}, NewStaticPriceSource(150), wallet)
	return e, wallet
}

func TestMarketCapEvaluator_Threshold(t *testing.T) {
	e, _ := newEvaluator(t, 4500)

	d, err := e.EvaluateValue(context.Background(), launch(t, false))
	require.NoError(t, err)
	assert.False(t, d.Accept)
	assert.Contains(t, d.Reason, "below")
	assert.Empty(t, d.Skeleton.Instructions)

	d, err = e.EvaluateValue(context.Background(), launch(t, true))
	require.NoError(t, err)
	assert.True(t, d.Accept)
	assert.Len(t, d.Skeleton.Instructions, 4)
	require.Len(t, d.Signers, 1)
}

func TestMarketCapEvaluator_BuyInstruction(t *testing.T) {
	e, wallet := newEvaluator(t, 0)
	ev := launch(t, false)

	d, err := e.EvaluateValue(context.Background(), ev)
	require.NoError(t, err)
	require.True(t, d.Accept)
	assert.Equal(t, wallet.PublicKey(), d.Skeleton.Payer)

	buy := d.Skeleton.Instructions[3]
	assert.Equal(t, solanago.MustPublicKeyFromBase58(discovery.PumpFun), buy.ProgramID())

	data, err := buy.Data()
	require.NoError(t, err)
	require.Len(t, data, 24)
	assert.Equal(t, buyDiscriminator[:], data[:8])

	sol, tokens := Reserves(ev)
	wantAmount := TokensOut(sol, tokens, decimal.NewFromFloat(0.001)).Mul(decimal.NewFromInt(1_000_000)).Floor().IntPart()
	assert.Equal(t, uint64(wantAmount), binary.LittleEndian.Uint64(data[8:16]))
	assert.Equal(t, uint64(1_200_000), binary.LittleEndian.Uint64(data[16:24]))

	accounts := buy.Accounts()
	require.Len(t, accounts, 12)
	assert.Equal(t, ev.Mint, accounts[2].PublicKey)
	assert.Equal(t, ev.BondingCurve, accounts[3].PublicKey)
	assert.True(t, accounts[6].IsSigner)
	assert.Equal(t, wallet.PublicKey(), accounts[6].PublicKey)

	buyerATA, err := discovery.AssociatedTokenAddress(wallet.PublicKey(), ev.Mint)
	require.NoError(t, err)
	assert.Equal(t, buyerATA, accounts[5].PublicKey)
}

func TestHeuristicRiskEvaluator(t *testing.T) {
	e := NewHeuristicRiskEvaluator(0.7, nil)

	tests := []struct {
		name   string
		ev     discovery.CreateEvent
		accept bool
		score  float64
	}{
		{"clean", discovery.CreateEvent{Name: "Good Coin", Symbol: "GOOD", URI: "u"}, true, 0},
		{"mild keyword", discovery.CreateEvent{Name: "Moon Pump", Symbol: "MP", URI: "u"}, true, 0.3},
		{"scam keyword", discovery.CreateEvent{Name: "Totally Not A Scam", Symbol: "SAFE", URI: "u"}, false, 0.95},
		{"keyword in symbol", discovery.CreateEvent{Name: "Nice", Symbol: "RUGME", URI: "u"}, false, 0.9},
		{"case insensitive", discovery.CreateEvent{Name: "HONEYPOT", Symbol: "HP", URI: "u"}, false, 0.95},
		{"empty uri", discovery.CreateEvent{Name: "Good Coin", Symbol: "GOOD"}, true, 0.6},
		{"long symbol", discovery.CreateEvent{Name: "Good Coin", Symbol: "VERYLONGSYMBOL", URI: "u"}, true, 0.5},
		{"short name", discovery.CreateEvent{Name: "ab", Symbol: "AB", URI: "u"}, true, 0.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := e.EvaluateRisk(context.Background(), &tt.ev)
			require.NoError(t, err)
			assert.Equal(t, tt.accept, v.Accept, v.Reason)
			assert.InDelta(t, tt.score, v.Score, 1e-9)
		})
	}
}

func TestHeuristicRiskEvaluator_CustomKeywords(t *testing.T) {
	e := NewHeuristicRiskEvaluator(0.5, map[string]float64{"cat": 0.6})
	v, err := e.EvaluateRisk(context.Background(), &discovery.CreateEvent{Name: "Catcoin", Symbol: "CAT", URI: "u"})
	require.NoError(t, err)
	assert.False(t, v.Accept)
	assert.Contains(t, v.Reason, `keyword "cat"`)
}

func TestStaticPriceSource(t *testing.T) {
	p, err := NewStaticPriceSource(142.5).SOLPriceUSD(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "142.5", p.String())

	_, err = NewStaticPriceSource(0).SOLPriceUSD(context.Background())
	assert.ErrorIs(t, err, ErrNoPrice)
}

func TestHTTPPriceSource(t *testing.T) {
	var mu sync.Mutex
	status := http.StatusOK
	body := `{"solana":{"usd":171.25}}`
	set := func(code int, b string) {
		mu.Lock()
		defer mu.Unlock()
		status, body = code, b
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	src := NewHTTPPriceSource(server.URL, 0, zap.NewNop())
	_, err := src.SOLPriceUSD(context.Background())
	assert.ErrorIs(t, err, ErrNoPrice)

	require.NoError(t, src.Refresh(context.Background()))
	p, err := src.SOLPriceUSD(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "171.25", p.String())

	// failures keep the last good price
	set(http.StatusInternalServerError, body)
	require.Error(t, src.Refresh(context.Background()))
	set(http.StatusOK, `{"solana":{"usd":0}}`)
	require.Error(t, src.Refresh(context.Background()))

	p, err = src.SOLPriceUSD(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "171.25", p.String())
}

func TestHTTPPriceSource_Fallback(t *testing.T) {
	src := NewHTTPPriceSource("http://127.0.0.1:0", 99, zap.NewNop())
	p, err := src.SOLPriceUSD(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "99", p.String())
}

func TestCurveProgress(t *testing.T) {
	assert.True(t, CurveProgress(decimal.NewFromInt(1_073_000_000)).IsZero())
	assert.Equal(t, "0.5", CurveProgress(decimal.NewFromInt(676_450_000)).String())
	assert.Equal(t, "1", CurveProgress(decimal.NewFromInt(279_900_000)).String())
	assert.Equal(t, "1", CurveProgress(decimal.NewFromInt(1)).String())
	assert.True(t, CurveProgress(decimal.NewFromInt(2_000_000_000)).IsZero())
}

func TestMarketCapEvaluator_CurveGates(t *testing.T) {
	tests := []struct {
		name         string
		solReserves  uint64
		tokenReserve uint64
		minLiquidity float64
		accept       bool
		reason       string
	}{
		{"early curve", 32_000_000_000, 1_005_000_000_000_000, 0, true, "market cap"},
		{"migration imminent", 85_000_000_000, 311_624_000_000_000, 0, false, "migration imminent"},
		{"curve complete", 115_000_000_000, 279_900_000_000_000, 0, false, "bonding curve complete"},
		{"thin liquidity", 32_000_000_000, 1_005_000_000_000_000, 5, false, "liquidity"},
		{"enough liquidity", 32_000_000_000, 1_005_000_000_000_000, 1.5, true, "market cap"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wallet, err := solanago.NewRandomPrivateKey()
			require.NoError(t, err)
			e := NewMarketCapEvaluator(MarketCapConfig{
				BuyAmountSOL:     0.001,
				Slippage:         1.2,
				ComputeUnitLimit: 400_000,
				MinLiquiditySOL:  tt.minLiquidity,
			}, NewStaticPriceSource(150), wallet)

			ev := launch(t, true)
			ev.Trade.VirtualSolReserves = tt.solReserves
			ev.Trade.VirtualTokenReserves = tt.tokenReserve

			d, err := e.EvaluateValue(context.Background(), ev)
			require.NoError(t, err)
			assert.Equal(t, tt.accept, d.Accept, d.Reason)
			assert.Contains(t, d.Reason, tt.reason)
		})
	}
}

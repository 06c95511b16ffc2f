package evaluate

import (
	"bytes"
	"context"
	"fmt"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/shopspring/decimal"

	"solana-sniper/internal/discovery"
	"solana-sniper/internal/domain"
)

// pump.fun accounts referenced by the buy instruction.
var (
	pumpGlobal         = solanago.MustPublicKeyFromBase58("4wTV1YmiEkRvAtNtsSGPtUrqRYQMe5SKy2uB4Jjaxnjf")
	pumpEventAuthority = solanago.MustPublicKeyFromBase58("Ce6TQqeHC9p8KetsN6JsjHK7UTZk7nasjjnr7XxXp9F1")
	pumpFeeRecipient   = solanago.MustPublicKeyFromBase58("G5UZAVbAf46s7cKWoyKu8kYTip9DGTpbLZ2qa9Aq69dP")
)

var buyDiscriminator = [8]byte{0x66, 0x06, 0x3d, 0x12, 0x01, 0xda, 0xeb, 0xea}

// Bonding curve constants.
var (
	lamportsPerSOL       = decimal.NewFromInt(1_000_000_000)
	tokenBaseUnits       = decimal.NewFromInt(1_000_000)
	totalSupply          = decimal.NewFromInt(1_000_000_000)
	initialVirtualSOL    = decimal.NewFromInt(30)
	initialVirtualTokens = decimal.NewFromInt(1_073_000_000)
	// initialRealTokens is the part of the supply the curve sells before it completes.
	initialRealTokens = decimal.NewFromInt(793_100_000)
)

// DefaultMigrationThreshold is the curve progress at which a launch is treated as
// migrating to the AMM.
const DefaultMigrationThreshold = 0.95

// MarketCapConfig configures MarketCapEvaluator.
type MarketCapConfig struct {
	ThresholdUSD     float64
	BuyAmountSOL     float64
	Slippage         float64
	ComputeUnitLimit uint32
	ComputeUnitPrice uint64
	// MigrationThreshold rejects curves at or past this progress; zero means DefaultMigrationThreshold.
	MigrationThreshold float64
	// MinLiquiditySOL is the real SOL the curve must hold; zero disables the check.
	MinLiquiditySOL float64
	// Program is the bonding curve program; zero means pump.fun.
	Program solanago.PublicKey
}

// MarketCapEvaluator accepts launches whose bonding-curve market cap reaches a threshold.
type MarketCapEvaluator struct {
	cfg       MarketCapConfig
	prices    PriceSource
	wallet    solanago.PrivateKey
	threshold decimal.Decimal
	buy       decimal.Decimal
	slippage  decimal.Decimal
	migration decimal.Decimal
	liquidity decimal.Decimal
}

// NewMarketCapEvaluator creates the evaluator. wallet pays for and signs every buy.
func NewMarketCapEvaluator(cfg MarketCapConfig, prices PriceSource, wallet solanago.PrivateKey) *MarketCapEvaluator {
	if cfg.Program.IsZero() {
		cfg.Program = solanago.MustPublicKeyFromBase58(discovery.PumpFun)
	}
	if cfg.MigrationThreshold <= 0 {
		cfg.MigrationThreshold = DefaultMigrationThreshold
	}
	return &MarketCapEvaluator{
		cfg:       cfg,
		prices:    prices,
		wallet:    wallet,
		threshold: decimal.NewFromFloat(cfg.ThresholdUSD),
		buy:       decimal.NewFromFloat(cfg.BuyAmountSOL),
		slippage:  decimal.NewFromFloat(cfg.Slippage),
		migration: decimal.NewFromFloat(cfg.MigrationThreshold),
		liquidity: decimal.NewFromFloat(cfg.MinLiquiditySOL),
	}
}

// Reserves returns the virtual SOL and token reserves (whole units) the launch left
// the curve at: the first trade's reserves when present, else the initial curve.
func Reserves(ev *discovery.CreateEvent) (sol, tokens decimal.Decimal) {
	if tr := ev.Trade; tr != nil && tr.VirtualSolReserves > 0 && tr.VirtualTokenReserves > 0 {
		sol = decimal.NewFromInt(int64(tr.VirtualSolReserves)).Div(lamportsPerSOL)
		tokens = decimal.NewFromInt(int64(tr.VirtualTokenReserves)).Div(tokenBaseUnits)
		return sol, tokens
	}
	return initialVirtualSOL, initialVirtualTokens
}

// MarketCapUSD prices the full supply at the curve's spot price.
func MarketCapUSD(sol, tokens, solPriceUSD decimal.Decimal) decimal.Decimal {
	if !tokens.IsPositive() {
		return decimal.Zero
	}
	return sol.Div(tokens).Mul(totalSupply).Mul(solPriceUSD)
}

// CurveProgress returns the share of the curve's sellable supply already bought,
// in [0, 1]. A curve at 1 is complete and migrates out of the bonding curve program.
func CurveProgress(tokens decimal.Decimal) decimal.Decimal {
	p := initialVirtualTokens.Sub(tokens).Div(initialRealTokens)
	if p.IsNegative() {
		return decimal.Zero
	}
	if p.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return p
}

// Liquidity returns the real SOL deposited in the curve.
func Liquidity(sol decimal.Decimal) decimal.Decimal {
	l := sol.Sub(initialVirtualSOL)
	if l.IsNegative() {
		return decimal.Zero
	}
	return l
}

// TokensOut returns the whole tokens a constant-product curve pays for buySOL.
func TokensOut(sol, tokens, buySOL decimal.Decimal) decimal.Decimal {
	k := sol.Mul(tokens)
	return tokens.Sub(k.Div(sol.Add(buySOL)))
}

// EvaluateValue implements ValueEvaluator.
func (e *MarketCapEvaluator) EvaluateValue(ctx context.Context, ev *discovery.CreateEvent) (*ValueDecision, error) {
	price, err := e.prices.SOLPriceUSD(ctx)
	if err != nil {
		return nil, err
	}

	sol, tokens := Reserves(ev)
	mcap := MarketCapUSD(sol, tokens, price)
	d := &ValueDecision{MarketCapUSD: mcap}
	d.Score, _ = mcap.Float64()

	if progress := CurveProgress(tokens); progress.GreaterThanOrEqual(e.migration) {
		if progress.Equal(decimal.NewFromInt(1)) {
			d.Reason = "bonding curve complete"
		} else {
			d.Reason = fmt.Sprintf("bonding curve %s%% complete, migration imminent", progress.Mul(decimal.NewFromInt(100)).StringFixed(1))
		}
		return d, nil
	}
	if liq := Liquidity(sol); e.liquidity.IsPositive() && liq.LessThan(e.liquidity) {
		d.Reason = fmt.Sprintf("curve liquidity %s SOL below %s SOL", liq.StringFixed(3), e.liquidity.StringFixed(3))
		return d, nil
	}
	if mcap.LessThan(e.threshold) {
		d.Reason = fmt.Sprintf("market cap $%s below $%s", mcap.StringFixed(2), e.threshold.StringFixed(2))
		return d, nil
	}

	skeleton, err := e.BuildBuy(ev, sol, tokens)
	if err != nil {
		return nil, fmt.Errorf("build buy: %w", err)
	}
	d.Accept = true
	d.Reason = fmt.Sprintf("market cap $%s", mcap.StringFixed(2))
	d.Skeleton = skeleton
	d.Signers = []solanago.PrivateKey{e.wallet}
	return d, nil
}

// BuildBuy assembles compute budget, ATA creation and the curve buy instruction.
func (e *MarketCapEvaluator) BuildBuy(ev *discovery.CreateEvent, sol, tokens decimal.Decimal) (domain.TxSkeleton, error) {
	buyer := e.wallet.PublicKey()

	buyerATA, err := discovery.AssociatedTokenAddress(buyer, ev.Mint)
	if err != nil {
		return domain.TxSkeleton{}, err
	}
	curveATA, err := discovery.AssociatedTokenAddress(ev.BondingCurve, ev.Mint)
	if err != nil {
		return domain.TxSkeleton{}, err
	}
	vault, err := discovery.CreatorVault(ev.CreatorKey(), e.cfg.Program)
	if err != nil {
		return domain.TxSkeleton{}, err
	}

	amount := TokensOut(sol, tokens, e.buy).Mul(tokenBaseUnits).Floor()
	if !amount.IsPositive() {
		return domain.TxSkeleton{}, fmt.Errorf("buy of %s SOL yields no tokens", e.buy)
	}
	maxCost := e.buy.Mul(lamportsPerSOL).Mul(e.slippage).Floor()

	var data bytes.Buffer
	enc := bin.NewBorshEncoder(&data)
	if err := enc.Encode(buyDiscriminator); err != nil {
		return domain.TxSkeleton{}, err
	}
	if err := enc.Encode(uint64(amount.IntPart())); err != nil {
		return domain.TxSkeleton{}, err
	}
	if err := enc.Encode(uint64(maxCost.IntPart())); err != nil {
		return domain.TxSkeleton{}, err
	}

	buyIx := solanago.NewInstruction(e.cfg.Program, solanago.AccountMetaSlice{
		solanago.NewAccountMeta(pumpGlobal, false, false),
		solanago.NewAccountMeta(pumpFeeRecipient, true, false),
		solanago.NewAccountMeta(ev.Mint, true, false),
		solanago.NewAccountMeta(ev.BondingCurve, true, false),
		solanago.NewAccountMeta(curveATA, true, false),
		solanago.NewAccountMeta(buyerATA, true, false),
		solanago.NewAccountMeta(buyer, true, true),
		solanago.NewAccountMeta(solanago.SystemProgramID, false, false),
		solanago.NewAccountMeta(solanago.TokenProgramID, false, false),
		solanago.NewAccountMeta(vault, true, false),
		solanago.NewAccountMeta(pumpEventAuthority, false, false),
		solanago.NewAccountMeta(e.cfg.Program, false, false),
	}, data.Bytes())

	instructions := []solanago.Instruction{
		computebudget.NewSetComputeUnitLimitInstruction(e.cfg.ComputeUnitLimit).Build(),
		computebudget.NewSetComputeUnitPriceInstruction(e.cfg.ComputeUnitPrice).Build(),
		associatedtokenaccount.NewCreateInstruction(buyer, buyer, ev.Mint).Build(),
		buyIx,
	}
	return domain.TxSkeleton{Instructions: instructions, Payer: buyer}, nil
}

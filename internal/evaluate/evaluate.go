// Package evaluate decides whether a decoded launch is worth buying and builds the
// buy transaction skeleton for accepted launches.
package evaluate

import (
	"context"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"solana-sniper/internal/discovery"
	"solana-sniper/internal/domain"
)

// Verdict is one evaluator's decision.
type Verdict struct {
	Accept bool
	Reason string
	Score  float64
}

// ValueDecision is the value evaluator's verdict plus, when accepted, what to submit.
type ValueDecision struct {
	Verdict
	MarketCapUSD decimal.Decimal
	Skeleton     domain.TxSkeleton
	Signers      []solanago.PrivateKey
}

// ValueEvaluator judges a launch on price and builds the buy.
type ValueEvaluator interface {
	EvaluateValue(ctx context.Context, ev *discovery.CreateEvent) (*ValueDecision, error)
}

// RiskEvaluator judges a launch on scam signals.
type RiskEvaluator interface {
	EvaluateRisk(ctx context.Context, ev *discovery.CreateEvent) (Verdict, error)
}

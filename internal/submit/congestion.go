package submit

import (
	"context"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"solana-sniper/internal/observability"
	"solana-sniper/internal/solana"
)

// FeeSource is the RPC surface the estimator samples.
type FeeSource interface {
	GetRecentPrioritizationFees(ctx context.Context, accounts []string) ([]solana.PrioritizationFee, error)
}

// CongestionEstimator tracks a congestion factor from recent prioritization fees:
// the median fee divided by a baseline, clamped to [MinCongestion, MaxCongestion].
type CongestionEstimator struct {
	source   FeeSource
	accounts []string
	baseline float64
	logger   *zap.Logger

	factor atomic.Uint64 // float64 bits
}

// NewCongestionEstimator creates an estimator starting at factor 1.
// accounts narrows the sample to fees paid for writes to those accounts.
func NewCongestionEstimator(source FeeSource, baseline uint64, accounts []string, logger *zap.Logger) *CongestionEstimator {
	if baseline == 0 {
		baseline = 1
	}
	e := &CongestionEstimator{
		source:   source,
		accounts: accounts,
		baseline: float64(baseline),
		logger:   logger,
	}
	e.factor.Store(math.Float64bits(1))
	return e
}

// Factor returns the latest congestion factor.
func (e *CongestionEstimator) Factor() float64 {
	return math.Float64frombits(e.factor.Load())
}

// Refresh samples fees once. On error or an empty sample the previous factor is kept.
func (e *CongestionEstimator) Refresh(ctx context.Context) error {
	fees, err := e.source.GetRecentPrioritizationFees(ctx, e.accounts)
	if err != nil {
		return err
	}
	if len(fees) == 0 {
		return nil
	}

	values := make([]uint64, len(fees))
	for i, f := range fees {
		values[i] = f.PrioritizationFee
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	var median float64
	n := len(values)
	if n%2 == 1 {
		median = float64(values[n/2])
	} else {
		median = (float64(values[n/2-1]) + float64(values[n/2])) / 2
	}

	factor := clampCongestion(median / e.baseline)
	e.factor.Store(math.Float64bits(factor))
	observability.SetCongestion(factor)
	return nil
}

// Run refreshes on every interval until ctx is done.
func (e *CongestionEstimator) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := e.Refresh(ctx); err != nil && ctx.Err() == nil {
			e.logger.Debug("congestion refresh failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

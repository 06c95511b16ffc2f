package submit

import (
	"github.com/shopspring/decimal"

	"solana-sniper/internal/domain"
)

const (
	// MinCongestion and MaxCongestion bound the congestion factor.
	MinCongestion = 0.1
	MaxCongestion = 10.0
)

// TipCalculator sizes bundle tips: base × congestion × urgency multiplier,
// never below Base and never above Max.
type TipCalculator struct {
	base        decimal.Decimal
	max         decimal.Decimal
	multipliers [domain.NumUrgencies]decimal.Decimal
}

// NewTipCalculator builds a calculator. Missing multipliers default to 1, and each
// level's multiplier is raised to at least the one below it so tips never shrink
// as urgency grows.
func NewTipCalculator(base, max uint64, multipliers map[domain.Urgency]float64) *TipCalculator {
	if max < base {
		max = base
	}
	c := &TipCalculator{
		base: decimal.NewFromInt(int64(base)),
		max:  decimal.NewFromInt(int64(max)),
	}
	floor := decimal.NewFromInt(1)
	for u := domain.UrgencyLow; u <= domain.UrgencyCritical; u++ {
		m := floor
		if v, ok := multipliers[u]; ok && v > 0 {
			m = decimal.NewFromFloat(v)
		}
		if m.LessThan(floor) {
			m = floor
		}
		c.multipliers[u] = m
		floor = m
	}
	return c
}

// Tip returns the tip in lamports.
func (c *TipCalculator) Tip(u domain.Urgency, congestion float64) uint64 {
	if !u.IsValid() {
		u = domain.UrgencyLow
	}
	tip := c.base.
		Mul(decimal.NewFromFloat(clampCongestion(congestion))).
		Mul(c.multipliers[u]).
		Ceil()
	if tip.LessThan(c.base) {
		tip = c.base
	}
	if tip.GreaterThan(c.max) {
		tip = c.max
	}
	return uint64(tip.IntPart())
}

func clampCongestion(f float64) float64 {
	if f != f || f < MinCongestion {
		return MinCongestion
	}
	if f > MaxCongestion {
		return MaxCongestion
	}
	return f
}

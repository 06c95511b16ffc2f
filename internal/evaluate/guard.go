package evaluate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"solana-sniper/internal/discovery"
	"solana-sniper/internal/domain"
)

// GuardConfig configures MintGuard.
type GuardConfig struct {
	// Cooldown blocks a mint after an outcome that broadcast a transaction for it.
	Cooldown time.Duration
	// Blacklist lists mints and creators that are never bought.
	Blacklist []string
	// BanScore bans the mint and its creator when the inner risk score reaches it;
	// zero disables automatic bans.
	BanScore float64
}

// MintGuard is a RiskEvaluator that rejects blacklisted mints or creators and mints
// in cooldown before asking the wrapped evaluator.
type MintGuard struct {
	inner  RiskEvaluator
	cfg    GuardConfig
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	banned map[string]string    // mint or creator -> reason
	until  map[string]time.Time // mint -> cooldown end
}

// NewMintGuard wraps inner.
func NewMintGuard(inner RiskEvaluator, cfg GuardConfig, logger *zap.Logger) *MintGuard {
	g := &MintGuard{
		inner:  inner,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		banned: make(map[string]string),
		until:  make(map[string]time.Time),
	}
	for _, k := range cfg.Blacklist {
		g.banned[k] = "blacklisted"
	}
	return g
}

// Ban blacklists a mint or creator for the rest of the run.
func (g *MintGuard) Ban(key, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.banned[key]; !ok {
		g.banned[key] = reason
	}
}

// Blocked reports why a launch may not be bought, or "" when it may.
func (g *MintGuard) Blocked(ev *discovery.CreateEvent) string {
	mint, creator := ev.Mint.String(), ev.CreatorKey().String()

	g.mu.Lock()
	defer g.mu.Unlock()
	if why, ok := g.banned[mint]; ok {
		return "mint " + why
	}
	if why, ok := g.banned[creator]; ok {
		return "creator " + why
	}
	if end, ok := g.until[mint]; ok {
		if g.now().Before(end) {
			return fmt.Sprintf("mint in cooldown until %s", end.UTC().Format(time.RFC3339))
		}
		delete(g.until, mint)
	}
	return ""
}

// EvaluateRisk implements RiskEvaluator.
func (g *MintGuard) EvaluateRisk(ctx context.Context, ev *discovery.CreateEvent) (Verdict, error) {
	if why := g.Blocked(ev); why != "" {
		return Verdict{Score: 1, Reason: why}, nil
	}

	v, err := g.inner.EvaluateRisk(ctx, ev)
	if err != nil {
		return v, err
	}
	if g.cfg.BanScore > 0 && v.Score >= g.cfg.BanScore {
		reason := fmt.Sprintf("banned at risk %.2f", v.Score)
		g.Ban(ev.Mint.String(), reason)
		g.Ban(ev.CreatorKey().String(), reason)
		g.logger.Info("launch banned",
			zap.String("mint", ev.Mint.String()),
			zap.String("creator", ev.CreatorKey().String()),
			zap.Float64("score", v.Score),
		)
		v.Accept = false
	}
	return v, nil
}

// Observe starts the cooldown for an outcome's asset when the outcome carries a
// broadcast signature, whatever its kind.
func (g *MintGuard) Observe(o domain.Outcome) {
	if g.cfg.Cooldown <= 0 || o.Signature == "" {
		return
	}
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()
	for mint, end := range g.until {
		if !now.Before(end) {
			delete(g.until, mint)
		}
	}
	g.until[o.Asset] = now.Add(g.cfg.Cooldown)
}

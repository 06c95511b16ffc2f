// Package pipeline turns the deduplicated event stream into executor admissions.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solana-sniper/internal/discovery"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/evaluate"
	"solana-sniper/internal/idhash"
	"solana-sniper/internal/observability"
)

// Source yields deduplicated raw events.
type Source interface {
	Subscribe(ctx context.Context) (<-chan domain.RawEvent, error)
}

// Decoder extracts a launch from a raw event.
type Decoder interface {
	Decode(ev domain.RawEvent) (*discovery.CreateEvent, bool)
}

// Admitter accepts execution candidates.
type Admitter interface {
	Admit(c *domain.ExecutionCandidate) error
}

// Options contains configuration for creating a Pipeline.
type Options struct {
	Source   Source
	Decoder  Decoder
	Value    evaluate.ValueEvaluator
	Risk     evaluate.RiskEvaluator
	Admitter Admitter

	// Budget bounds both evaluators together. Default: 50ms.
	Budget     time.Duration
	Urgency    domain.Urgency
	SlotOffset int
	// Concurrency bounds events evaluated at once. Default: 16.
	Concurrency int
	Logger      *zap.Logger
}

// Stats counts pipeline progress.
type Stats struct {
	Events      uint64 `json:"events"`
	Decoded     uint64 `json:"decoded"`
	Rejected    uint64 `json:"rejected"`
	Admitted    uint64 `json:"admitted"`
	AdmitFailed uint64 `json:"admit_failed"`
}

// Pipeline evaluates every decoded launch and admits the ones both evaluators accept.
type Pipeline struct {
	opts   Options
	logger *zap.Logger

	events, decoded, rejected, admitted, admitFailed atomic.Uint64
}

// New creates a pipeline.
func New(opts Options) *Pipeline {
	if opts.Budget <= 0 {
		opts.Budget = 50 * time.Millisecond
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 16
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Pipeline{opts: opts, logger: opts.Logger}
}

// Run consumes the source until it closes or ctx is done.
func (p *Pipeline) Run(ctx context.Context) error {
	events, err := p.opts.Source.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	p.logger.Info("pipeline started", zap.Duration("budget", p.opts.Budget))

	g := new(errgroup.Group)
	g.SetLimit(p.opts.Concurrency)
	defer g.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.events.Add(1)
			g.Go(func() error {
				p.Process(ctx, ev)
				return nil
			})
		}
	}
}

// Process handles one event: decode, evaluate under the budget, admit.
// It returns the admitted candidate, or nil.
func (p *Pipeline) Process(ctx context.Context, ev domain.RawEvent) *domain.ExecutionCandidate {
	launch, ok := p.opts.Decoder.Decode(ev)
	if !ok {
		return nil
	}
	p.decoded.Add(1)
	log := p.logger.With(
		zap.String("mint", launch.Mint.String()),
		zap.String("symbol", launch.Symbol),
		zap.String("signature", ev.Key),
		zap.Int64("slot", ev.Slot),
	)

	value, risk, err := p.evaluate(ctx, launch)
	if err != nil {
		p.rejected.Add(1)
		observability.RecordReject("error")
		log.Warn("evaluation failed", zap.Error(err))
		return nil
	}
	if !value.Accept {
		p.rejected.Add(1)
		observability.RecordReject("value")
		log.Debug("rejected by value", zap.String("reason", value.Reason))
		return nil
	}
	if !risk.Accept {
		p.rejected.Add(1)
		observability.RecordReject("risk")
		log.Info("rejected by risk", zap.String("reason", risk.Reason))
		return nil
	}

	mint := launch.Mint.String()
	c := &domain.ExecutionCandidate{
		ID:         idhash.ComputeCandidateID(mint, ev.Key, ev.Slot),
		Asset:      mint,
		Skeleton:   value.Skeleton,
		Signers:    value.Signers,
		Urgency:    p.opts.Urgency,
		SlotOffset: p.opts.SlotOffset,
		OriginSlot: ev.Slot,
		EventKey:   ev.Key,
		CreatedAt:  time.Now(),
	}
	if err := p.opts.Admitter.Admit(c); err != nil {
		p.admitFailed.Add(1)
		log.Warn("admission rejected", zap.String("candidate", c.ID), zap.Error(err))
		return nil
	}
	p.admitted.Add(1)
	log.Info("candidate admitted",
		zap.String("candidate", c.ID),
		zap.String("market_cap_usd", value.MarketCapUSD.StringFixed(2)),
		zap.Float64("risk", risk.Score),
	)
	return c
}

var errBudgetExceeded = errors.New("evaluation budget exceeded")

// evaluate runs both evaluators concurrently and gives up when the budget runs out,
// even if an evaluator ignores its context.
func (p *Pipeline) evaluate(ctx context.Context, launch *discovery.CreateEvent) (*evaluate.ValueDecision, evaluate.Verdict, error) {
	start := time.Now()
	defer func() { observability.RecordEvaluation(time.Since(start).Seconds()) }()

	ctx, cancel := context.WithTimeout(ctx, p.opts.Budget)
	defer cancel()

	var value *evaluate.ValueDecision
	var risk evaluate.Verdict

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := p.opts.Value.EvaluateValue(gctx, launch)
		if err != nil {
			return fmt.Errorf("value: %w", err)
		}
		value = v
		return nil
	})
	g.Go(func() error {
		v, err := p.opts.Risk.EvaluateRisk(gctx, launch)
		if err != nil {
			return fmt.Errorf("risk: %w", err)
		}
		risk = v
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return nil, evaluate.Verdict{}, err
		}
		return value, risk, nil
	case <-ctx.Done():
		return nil, evaluate.Verdict{}, errBudgetExceeded
	}
}

// Stats returns current counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Events:      p.events.Load(),
		Decoded:     p.decoded.Load(),
		Rejected:    p.rejected.Load(),
		Admitted:    p.admitted.Load(),
		AdmitFailed: p.admitFailed.Load(),
	}
}

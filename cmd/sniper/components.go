package main

import (
	"context"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"solana-sniper/internal/config"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/evaluate"
	"solana-sniper/internal/executor"
	"solana-sniper/internal/feed"
	"solana-sniper/internal/solana"
	"solana-sniper/internal/storage"
	chstore "solana-sniper/internal/storage/clickhouse"
	"solana-sniper/internal/storage/memory"
	"solana-sniper/internal/storage/migrations"
	pgstore "solana-sniper/internal/storage/postgres"
	"solana-sniper/internal/submit"
	"solana-sniper/internal/tracker"
)

func newRPCClient(cfg config.RPCConfig) *solana.HTTPClient {
	opts := []solana.ClientOption{
		solana.WithTimeout(cfg.Timeout),
		solana.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.Token != "" {
		opts = append(opts, solana.WithHeader("x-token", cfg.Token))
	}
	return solana.NewHTTPClient(cfg.URL, opts...)
}

func newDialer(cfg config.FeedConfig) *feed.WSDialer {
	ws := solana.DefaultWSConfig()
	return &feed.WSDialer{
		Programs:   cfg.Programs,
		Commitment: solana.Commitment(cfg.Commitment),
		Config:     &ws,
	}
}

func feedConfig(cfg config.FeedConfig) feed.Config {
	fc := feed.DefaultConfig()
	fc.DedupWindow = cfg.DedupWindow
	fc.DedupMaxKeys = cfg.DedupMaxKeys
	fc.BackoffInitial = cfg.BackoffInitial
	fc.BackoffMax = cfg.BackoffMax
	fc.ReconnectStagger = cfg.ReconnectStagger
	fc.ReadTimeout = cfg.ReadTimeout
	fc.ProbeInterval = cfg.ProbeInterval
	fc.ProbeTimeout = cfg.ProbeTimeout
	fc.DeadProbeInterval = cfg.DeadProbeInterval
	fc.Health = feed.HealthPolicy{
		FailureThreshold: cfg.FailureThreshold,
		TimeoutThreshold: cfg.TimeoutThreshold,
		DeadAfter:        cfg.DeadAfter,
		RecoverAfter:     cfg.RecoverAfter,
	}
	return fc
}

func trackerConfig(cfg config.TrackerConfig) tracker.Config {
	return tracker.Config{
		RefreshInterval:     cfg.RefreshInterval,
		ValidityWindow:      cfg.ValidityWindow,
		DefaultSlotDuration: cfg.DefaultSlotDuration,
		Commitment:          solana.Commitment(cfg.Commitment),
	}
}

func executorConfig(cfg config.ExecutorConfig) executor.Config {
	ec := executor.DefaultConfig()
	ec.Workers = cfg.Workers
	ec.MaxRetries = cfg.MaxRetries
	ec.FreshWait = cfg.FreshWait
	ec.ConfirmBase = cfg.ConfirmBase
	ec.ConfirmPerSlot = cfg.ConfirmPerSlot
	ec.ConfirmPoll = cfg.ConfirmPoll
	ec.ConfirmCommitment = solana.Commitment(cfg.ConfirmCommitment)
	ec.EvictInterval = cfg.EvictInterval
	return ec
}

// newDispatcher builds the submission backends. The relay is omitted when bundles are disabled.
func newDispatcher(cfg config.SubmitConfig, rpc *solana.HTTPClient, congestion submit.CongestionSource, logger *zap.Logger) (*submit.Dispatcher, error) {
	minUrgency, err := domain.ParseUrgency(cfg.BundleMinUrgency)
	if err != nil {
		return nil, err
	}

	multipliers := make(map[domain.Urgency]float64, len(cfg.Tip.UrgencyMultipliers))
	for level, m := range cfg.Tip.UrgencyMultipliers {
		u, err := domain.ParseUrgency(level)
		if err != nil {
			return nil, err
		}
		multipliers[u] = m
	}

	var relay submit.BundleSender
	if cfg.BundleEnabled {
		relay = solana.NewJitoClient(cfg.JitoURL, solana.WithTimeout(cfg.RelayTimeout), solana.WithMaxRetries(0))
	}

	return submit.NewDispatcher(rpc, relay, submit.NewTipCalculator(cfg.Tip.Base, cfg.Tip.Max, multipliers), congestion, submit.Config{
		Policy: submit.Policy{
			BundleEnabled:    cfg.BundleEnabled,
			BundleMinUrgency: minUrgency,
		},
		TipAccount:   cfg.JitoTipAccount,
		RelayTimeout: cfg.RelayTimeout,
		SendTimeout:  cfg.SendTimeout,
	}, logger)
}

// newEvaluators builds the value evaluator, the guarded risk evaluator and the live
// price source, if configured.
func newEvaluators(cfg config.EvaluateConfig, program string, logger *zap.Logger) (*evaluate.MarketCapEvaluator, *evaluate.MintGuard, *evaluate.HTTPPriceSource, error) {
	wallet, err := evaluate.ParseWalletKey(cfg.WalletKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("evaluate.wallet_key: %w", err)
	}

	var prices evaluate.PriceSource = evaluate.NewStaticPriceSource(cfg.SOLPriceUSD)
	var live *evaluate.HTTPPriceSource
	if cfg.PriceURL != "" {
		live = evaluate.NewHTTPPriceSource(cfg.PriceURL, cfg.SOLPriceUSD, logger.Named("price"))
		prices = live
	}

	programKey, err := solanago.PublicKeyFromBase58(program)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("feed.programs: %w", err)
	}

	value := evaluate.NewMarketCapEvaluator(evaluate.MarketCapConfig{
		ThresholdUSD:       cfg.ThresholdUSD,
		BuyAmountSOL:       cfg.BuyAmountSOL,
		Slippage:           cfg.Slippage,
		ComputeUnitLimit:   cfg.ComputeUnitLimit,
		ComputeUnitPrice:   cfg.ComputeUnitPrice,
		MigrationThreshold: cfg.MigrationThreshold,
		MinLiquiditySOL:    cfg.MinLiquiditySOL,
		Program:            programKey,
	}, prices, wallet)
	risk := evaluate.NewMintGuard(
		evaluate.NewHeuristicRiskEvaluator(cfg.MaxRiskScore, evaluate.DefaultKeywords()),
		evaluate.GuardConfig{Cooldown: cfg.Cooldown, Blacklist: cfg.Blacklist, BanScore: cfg.BanScore},
		logger.Named("guard"),
	)
	return value, risk, live, nil
}

// openJournal connects the configured outcome journal and applies its migrations.
func openJournal(ctx context.Context, cfg config.JournalConfig) (storage.OutcomeJournal, error) {
	switch cfg.Driver {
	case "postgres":
		pool, err := pgstore.NewPool(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return pgstore.NewOutcomeJournal(pool), nil
	case "clickhouse":
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return chstore.NewOutcomeJournal(conn), nil
	case "memory", "none", "":
		return memory.NewOutcomeJournal(), nil
	default:
		return nil, fmt.Errorf("unknown journal driver %q", cfg.Driver)
	}
}

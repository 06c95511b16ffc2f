package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solana-sniper/internal/config"
	"solana-sniper/internal/discovery"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/executor"
	"solana-sniper/internal/feed"
	"solana-sniper/internal/pipeline"
	"solana-sniper/internal/status"
	"solana-sniper/internal/storage"
	"solana-sniper/internal/submit"
	"solana-sniper/internal/tracker"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the feed, evaluators and executor until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 2)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case sig := <-sigCh:
					logger.Info("received signal, shutting down", zap.Stringer("signal", sig))
					cancel()
				case <-ctx.Done():
					return
				}
				sig := <-sigCh
				logger.Warn("received second signal, forcing exit", zap.Stringer("signal", sig))
				os.Exit(1)
			}()

			return run(ctx, cfg, logger)
		},
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))

	journal, err := openJournal(ctx, cfg.Journal)
	if err != nil {
		return err
	}
	defer journal.Close()

	urgency, err := domain.ParseUrgency(cfg.Evaluate.Urgency)
	if err != nil {
		return err
	}

	rpc := newRPCClient(cfg.RPC)
	trk := tracker.New(rpc, trackerConfig(cfg.Tracker), logger.Named("tracker"))

	pool, err := feed.NewPool(cfg.Descriptors(), newDialer(cfg.Feed), feedConfig(cfg.Feed), logger.Named("feed"))
	if err != nil {
		return err
	}

	congestion := submit.NewCongestionEstimator(rpc, cfg.Submit.CongestionBaseline, cfg.Feed.Programs, logger.Named("congestion"))
	dispatcher, err := newDispatcher(cfg.Submit, rpc, congestion, logger.Named("submit"))
	if err != nil {
		return err
	}
	exec := executor.New(cfg.Queue.Capacity, trk, dispatcher, rpc, executorConfig(cfg.Executor), logger.Named("executor"))

	program := discovery.PumpFun
	if len(cfg.Feed.Programs) > 0 {
		program = cfg.Feed.Programs[0]
	}
	value, risk, livePrice, err := newEvaluators(cfg.Evaluate, program, logger.Named("evaluate"))
	if err != nil {
		return err
	}
	pipe := pipeline.New(pipeline.Options{
		Source:     pool,
		Decoder:    discovery.NewDecoder(program),
		Value:      value,
		Risk:       risk,
		Admitter:   exec,
		Budget:     cfg.Evaluate.Budget,
		Urgency:    urgency,
		SlotOffset: cfg.Executor.DefaultSlotOffset,
		Logger:     logger.Named("pipeline"),
	})

	recorder := storage.NewRecorder(journal, cfg.Journal.Driver, runID, 5*time.Second, logger.Named("journal"))
	recorded := make(chan struct{})
	go func() {
		defer close(recorded)
		if err := recorder.Run(ctx, observeOutcomes(exec.Outcomes(), risk.Observe)); err != nil {
			logger.Error("outcome recorder stopped", zap.Error(err))
		}
	}()

	logger.Info("starting sniper",
		zap.Int("endpoints", len(cfg.Feed.Endpoints)),
		zap.Strings("programs", cfg.Feed.Programs),
		zap.Bool("bundles", cfg.Submit.BundleEnabled),
		zap.String("journal", cfg.Journal.Driver),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return trk.Run(gctx) })
	g.Go(func() error { return congestion.Run(gctx, cfg.Submit.CongestionRefresh) })
	if livePrice != nil {
		g.Go(func() error { return livePrice.Run(gctx, cfg.Evaluate.PriceRefresh) })
	}
	g.Go(func() error { return exec.Run(gctx) })
	g.Go(func() error { return pipe.Run(gctx) })
	if cfg.Status.Addr != "" {
		srv := status.NewServer(pool, trk, exec, pipe, logger.Named("status"))
		g.Go(func() error { return srv.ListenAndServe(gctx, cfg.Status.Addr) })
	}

	runErr := g.Wait()
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Executor.DrainTimeout)
	defer cancel()
	if err := exec.Shutdown(drainCtx); err != nil {
		logger.Warn("executor drain incomplete", zap.Error(err))
	}
	<-recorded

	st := exec.Stats()
	logger.Info("shutdown complete",
		zap.Uint64("admitted", st.Admitted),
		zap.Uint64("confirmed", st.Confirmed),
		zap.Uint64("failed", st.Failed),
		zap.Uint64("missed", st.Missed),
		zap.Uint64("cancelled", st.Cancelled),
	)
	return runErr
}

// observeOutcomes hands every outcome to observe before forwarding it. The returned
// channel closes when src does.
func observeOutcomes(src <-chan domain.Outcome, observe func(domain.Outcome)) <-chan domain.Outcome {
	out := make(chan domain.Outcome, cap(src))
	go func() {
		defer close(out)
		for o := range src {
			observe(o)
			out <- o
		}
	}()
	return out
}

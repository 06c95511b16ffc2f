package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/feed"
)

// probeResult is one endpoint's one-shot health check.
type probeResult struct {
	Endpoint domain.EndpointDescriptor
	Connect  time.Duration
	RTT      time.Duration
	Err      error
}

func newEndpointsCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "endpoints",
		Short: "Connect to every configured endpoint once and report latency",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			results := probeEndpoints(cmd.Context(), newDialer(cfg.Feed), cfg.Descriptors(), timeout, logger)
			if healthy := printProbeResults(cmd.OutOrStdout(), results); healthy == 0 {
				return errors.New("no healthy endpoints")
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "per-endpoint connect and ping timeout")
	return cmd
}

// probeEndpoints dials, subscribes and pings every enabled endpoint concurrently.
func probeEndpoints(ctx context.Context, dialer feed.Dialer, descs []domain.EndpointDescriptor, timeout time.Duration, logger *zap.Logger) []probeResult {
	var enabled []domain.EndpointDescriptor
	for _, d := range descs {
		if d.Enabled {
			enabled = append(enabled, d)
		}
	}

	results := make([]probeResult, len(enabled))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, d := range enabled {
		g.Go(func() error {
			results[i] = probeOne(gctx, dialer, d, timeout)
			if err := results[i].Err; err != nil {
				logger.Debug("endpoint probe failed", zap.String("endpoint", d.Name), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Endpoint.Priority < results[b].Endpoint.Priority
	})
	return results
}

func probeOne(ctx context.Context, dialer feed.Dialer, d domain.EndpointDescriptor, timeout time.Duration) probeResult {
	res := probeResult{Endpoint: d}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	stream, err := dialer.Dial(ctx, d)
	if err != nil {
		res.Err = fmt.Errorf("dial: %w", err)
		return res
	}
	defer stream.Close()
	res.Connect = time.Since(start)

	rtt, err := stream.Ping(ctx)
	if err != nil {
		res.Err = fmt.Errorf("ping: %w", err)
		return res
	}
	res.RTT = rtt
	return res
}

// printProbeResults writes a table and returns the number of healthy endpoints.
func printProbeResults(w io.Writer, results []probeResult) int {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPRIORITY\tWEIGHT\tHEALTH\tCONNECT\tRTT\tERROR")

	healthy := 0
	for _, r := range results {
		health := domain.HealthHealthy
		errText := "-"
		if r.Err != nil {
			health = domain.HealthDead
			errText = r.Err.Error()
		} else {
			healthy++
		}
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%s\t%s\t%s\t%s\n",
			r.Endpoint.Name, r.Endpoint.Priority, r.Endpoint.Weight, health,
			r.Connect.Round(time.Millisecond), r.RTT.Round(time.Microsecond), errText)
	}
	_ = tw.Flush()
	return healthy
}

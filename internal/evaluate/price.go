package evaluate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sugawarayuuta/sonnet"
	"go.uber.org/zap"
)

// ErrNoPrice is returned before any SOL price is known.
var ErrNoPrice = errors.New("sol price unavailable")

// PriceSource supplies the SOL/USD price.
type PriceSource interface {
	SOLPriceUSD(ctx context.Context) (decimal.Decimal, error)
}

// StaticPriceSource returns a configured price.
type StaticPriceSource struct {
	price decimal.Decimal
}

// NewStaticPriceSource creates a fixed-price source.
func NewStaticPriceSource(usd float64) *StaticPriceSource {
	return &StaticPriceSource{price: decimal.NewFromFloat(usd)}
}

// SOLPriceUSD returns the configured price.
func (s *StaticPriceSource) SOLPriceUSD(_ context.Context) (decimal.Decimal, error) {
	if !s.price.IsPositive() {
		return decimal.Zero, ErrNoPrice
	}
	return s.price, nil
}

// HTTPPriceSource caches a price polled from a CoinGecko-style simple price endpoint
// ({"solana":{"usd":123.4}}). Reads never block on the network.
type HTTPPriceSource struct {
	url      string
	client   *http.Client
	fallback decimal.Decimal
	logger   *zap.Logger

	price atomic.Pointer[decimal.Decimal]
}

// NewHTTPPriceSource creates a polling source. fallback is served until the first
// successful fetch; zero means ErrNoPrice until then.
func NewHTTPPriceSource(url string, fallback float64, logger *zap.Logger) *HTTPPriceSource {
	return &HTTPPriceSource{
		url:      url,
		client:   &http.Client{Timeout: 5 * time.Second},
		fallback: decimal.NewFromFloat(fallback),
		logger:   logger,
	}
}

// SOLPriceUSD returns the last fetched price.
func (s *HTTPPriceSource) SOLPriceUSD(_ context.Context) (decimal.Decimal, error) {
	if p := s.price.Load(); p != nil {
		return *p, nil
	}
	if s.fallback.IsPositive() {
		return s.fallback, nil
	}
	return decimal.Zero, ErrNoPrice
}

type simplePriceResponse struct {
	Solana struct {
		USD decimal.Decimal `json:"usd"`
	} `json:"solana"`
}

// Refresh fetches the price once. Zero or negative prices are rejected.
func (s *HTTPPriceSource) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var out simplePriceResponse
	if err := sonnet.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("decode price: %w", err)
	}
	if !out.Solana.USD.IsPositive() {
		return fmt.Errorf("non-positive price %s", out.Solana.USD)
	}
	price := out.Solana.USD
	s.price.Store(&price)
	return nil
}

// Run refreshes on every interval until ctx is done.
func (s *HTTPPriceSource) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("sol price refresh failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

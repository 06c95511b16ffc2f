// Package tracker keeps the latest slot and a fresh recent blockhash, independent of the event feed.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/observability"
	"solana-sniper/internal/solana"
)

var (
	// ErrNotReady is returned before the first successful refresh.
	ErrNotReady = errors.New("slot tracker not ready")
	// ErrStaleBlockhash is returned when the cached blockhash is older than the validity window.
	ErrStaleBlockhash = errors.New("blockhash stale")
)

// BlockhashSource fetches the latest blockhash.
type BlockhashSource interface {
	GetLatestBlockhash(ctx context.Context, commitment solana.Commitment) (*solana.LatestBlockhash, error)
}

// Config configures the tracker.
type Config struct {
	RefreshInterval time.Duration
	// ValidityWindow bounds how long an observed blockhash may be attached to new transactions.
	ValidityWindow      time.Duration
	DefaultSlotDuration time.Duration
	Commitment          solana.Commitment
	// RequestTimeout bounds one refresh call; defaults to RefreshInterval*5.
	RequestTimeout time.Duration
}

// DefaultConfig returns default tracker configuration.
func DefaultConfig() Config {
	return Config{
		RefreshInterval:     100 * time.Millisecond,
		ValidityWindow:      60 * time.Second,
		DefaultSlotDuration: 400 * time.Millisecond,
		Commitment:          solana.CommitmentProcessed,
	}
}

// Tracker polls the chain position. Single writer (Run), lock-free readers.
type Tracker struct {
	cfg    Config
	source BlockhashSource
	logger *zap.Logger
	now    func() time.Time

	state atomic.Pointer[domain.SlotState]

	// slot rate estimate, touched only by the refresh loop
	rateSlot int64
	rateAt   time.Time
	slotDur  atomic.Int64

	mu      sync.Mutex
	updated chan struct{}

	lastErr atomic.Pointer[error]
}

// New creates a tracker.
func New(source BlockhashSource, cfg Config, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * cfg.RefreshInterval
	}
	if cfg.DefaultSlotDuration <= 0 {
		cfg.DefaultSlotDuration = 400 * time.Millisecond
	}
	t := &Tracker{
		cfg:     cfg,
		source:  source,
		logger:  logger.Named("tracker"),
		now:     time.Now,
		updated: make(chan struct{}),
	}
	t.slotDur.Store(int64(cfg.DefaultSlotDuration))
	return t
}

// Run refreshes until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	t.Refresh(ctx)

	ticker := time.NewTicker(t.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.Refresh(ctx)
		}
	}
}

// Refresh performs one poll. On failure the last value is kept and the error is recorded.
func (t *Tracker) Refresh(ctx context.Context) error {
	rctx, cancel := context.WithTimeout(ctx, t.cfg.RequestTimeout)
	start := time.Now()
	bh, err := t.source.GetLatestBlockhash(rctx, t.cfg.Commitment)
	cancel()
	observability.RecordRPCLatency("getLatestBlockhash", time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() == nil {
			observability.RecordTrackerError()
			t.logger.Debug("refresh failed", zap.Error(err))
		}
		t.lastErr.Store(&err)
		return err
	}
	t.lastErr.Store(nil)

	now := t.now()
	prev := t.state.Load()
	slot := bh.Slot
	if prev != nil && slot < prev.Slot {
		// a lagging node must not move the tracked slot backwards
		slot = prev.Slot
	}

	t.observeRate(slot, now)

	next := &domain.SlotState{
		Slot:                 slot,
		Blockhash:            bh.Blockhash,
		LastValidBlockHeight: bh.LastValidBlockHeight,
		ObservedAt:           now,
		SlotDuration:         t.SlotDuration(),
	}
	t.state.Store(next)
	observability.UpdateSlot(next.Slot, next.SlotDuration.Seconds())

	t.mu.Lock()
	close(t.updated)
	t.updated = make(chan struct{})
	t.mu.Unlock()

	return nil
}

// observeRate folds the slot advance since the last sample into an EWMA of slot duration.
func (t *Tracker) observeRate(slot int64, now time.Time) {
	if t.rateAt.IsZero() {
		t.rateSlot, t.rateAt = slot, now
		return
	}
	advanced := slot - t.rateSlot
	elapsed := now.Sub(t.rateAt)
	// sample over at least a few slots to smooth poll jitter
	if advanced < 4 || elapsed <= 0 {
		if elapsed > 20*t.cfg.DefaultSlotDuration {
			t.rateSlot, t.rateAt = slot, now
		}
		return
	}
	sample := elapsed / time.Duration(advanced)
	cur := time.Duration(t.slotDur.Load())
	t.slotDur.Store(int64((cur*4 + sample) / 5))
	t.rateSlot, t.rateAt = slot, now
}

// Current returns the latest snapshot. It never blocks; it fails with ErrStaleBlockhash
// when the cached value is outside the validity window and ErrNotReady before the first refresh.
func (t *Tracker) Current() (domain.SlotState, error) {
	st := t.state.Load()
	if st == nil {
		return domain.SlotState{}, ErrNotReady
	}
	if age := st.Age(t.now()); age > t.cfg.ValidityWindow {
		return *st, fmt.Errorf("%w: observed %s ago", ErrStaleBlockhash, age.Round(time.Millisecond))
	}
	return *st, nil
}

// Slot returns the latest tracked slot regardless of blockhash freshness, or 0 before the first refresh.
func (t *Tracker) Slot() int64 {
	if st := t.state.Load(); st != nil {
		return st.Slot
	}
	return 0
}

// SlotDuration returns the current slot duration estimate.
func (t *Tracker) SlotDuration() time.Duration {
	return time.Duration(t.slotDur.Load())
}

// LastError returns the error of the latest refresh, nil if it succeeded.
func (t *Tracker) LastError() error {
	if p := t.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// Updated returns a channel closed at the next successful refresh.
func (t *Tracker) Updated() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.updated
}

// WaitFresh returns a fresh snapshot, waiting up to maxWait for a refresh to land.
func (t *Tracker) WaitFresh(ctx context.Context, maxWait time.Duration) (domain.SlotState, error) {
	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	for {
		updated := t.Updated()
		st, err := t.Current()
		if err == nil {
			return st, nil
		}

		select {
		case <-updated:
		case <-timer.C:
			return st, err
		case <-ctx.Done():
			return st, ctx.Err()
		}
	}
}

// Package feed implements the redundant multi-endpoint event feed.
package feed

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/observability"
)

var (
	// ErrNoEndpoints is returned when no enabled endpoint is configured.
	ErrNoEndpoints = errors.New("no enabled endpoints")
	// ErrAlreadySubscribed is returned by a second Subscribe call.
	ErrAlreadySubscribed = errors.New("pool already subscribed")
	// ErrReadTimeout ends a stream that delivered nothing for ReadTimeout.
	ErrReadTimeout = errors.New("read timeout")
)

// Config configures the connection pool.
type Config struct {
	DedupWindow  time.Duration
	DedupMaxKeys int

	BackoffInitial time.Duration
	BackoffMax     time.Duration
	// ReconnectStagger delays each endpoint by its priority rank, so preferred endpoints reconnect first.
	ReconnectStagger time.Duration

	DialTimeout time.Duration
	ReadTimeout time.Duration

	// ProbeInterval is divided by the endpoint weight.
	ProbeInterval     time.Duration
	ProbeTimeout      time.Duration
	DeadProbeInterval time.Duration

	Health     HealthPolicy
	BufferSize int
}

// DefaultConfig returns default pool configuration.
func DefaultConfig() Config {
	return Config{
		DedupWindow:       2 * time.Second,
		DedupMaxKeys:      100000,
		BackoffInitial:    250 * time.Millisecond,
		BackoffMax:        10 * time.Second,
		ReconnectStagger:  100 * time.Millisecond,
		DialTimeout:       10 * time.Second,
		ReadTimeout:       30 * time.Second,
		ProbeInterval:     5 * time.Second,
		ProbeTimeout:      2 * time.Second,
		DeadProbeInterval: 30 * time.Second,
		Health:            DefaultHealthPolicy(),
		BufferSize:        4096,
	}
}

// Pool fans in events from every live endpoint and emits each event key at most once per dedup window.
type Pool struct {
	cfg       Config
	dialer    Dialer
	logger    *zap.Logger
	dedup     *Dedup
	endpoints []*endpoint

	out     chan domain.RawEvent
	started atomic.Bool
	wg      sync.WaitGroup

	downMu sync.Mutex
	down   atomic.Bool
	downCh chan bool
}

type endpoint struct {
	desc domain.EndpointDescriptor
	rank int

	// health mirrors state.Health for lock-free reads on the event path.
	health atomic.Int32

	mu    sync.Mutex
	state domain.EndpointState
}

// NewPool creates a pool over the enabled descriptors, ordered by priority rank.
func NewPool(descs []domain.EndpointDescriptor, dialer Dialer, cfg Config, logger *zap.Logger) (*Pool, error) {
	enabled := make([]domain.EndpointDescriptor, 0, len(descs))
	for _, d := range descs {
		if d.Enabled {
			enabled = append(enabled, d)
		}
	}
	if len(enabled) == 0 {
		return nil, ErrNoEndpoints
	}
	sort.SliceStable(enabled, func(i, j int) bool { return enabled[i].Priority < enabled[j].Priority })

	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{
		cfg:    cfg,
		dialer: dialer,
		logger: logger.Named("feed"),
		dedup:  NewDedup(cfg.DedupWindow, cfg.DedupMaxKeys),
		out:    make(chan domain.RawEvent, cfg.BufferSize),
		downCh: make(chan bool, 1),
	}

	for i, d := range enabled {
		if d.Weight <= 0 {
			d.Weight = 1
		}
		ep := &endpoint{
			desc: d,
			rank: i,
			state: domain.EndpointState{
				Name:     d.Name,
				URL:      d.URL,
				Priority: d.Priority,
				Weight:   d.Weight,
				Health:   domain.HealthHealthy,
			},
		}
		p.endpoints = append(p.endpoints, ep)
		observability.SetEndpointHealth(d.Name, int(domain.HealthHealthy))
	}

	return p, nil
}

// Subscribe starts one task per endpoint and returns the merged, deduplicated stream.
// The channel is closed after ctx is cancelled and every endpoint task has exited.
func (p *Pool) Subscribe(ctx context.Context) (<-chan domain.RawEvent, error) {
	if !p.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadySubscribed
	}

	for _, ep := range p.endpoints {
		p.wg.Add(1)
		go p.runEndpoint(ctx, ep)
	}

	go func() {
		p.wg.Wait()
		close(p.out)
	}()

	return p.out, nil
}

// Snapshot returns a copy of every endpoint's state in priority order.
func (p *Pool) Snapshot() []domain.EndpointState {
	out := make([]domain.EndpointState, len(p.endpoints))
	for i, ep := range p.endpoints {
		ep.mu.Lock()
		out[i] = ep.state
		ep.mu.Unlock()
	}
	return out
}

// Healthy returns the number of healthy endpoints.
func (p *Pool) Healthy() int {
	n := 0
	for _, ep := range p.endpoints {
		if domain.Health(ep.health.Load()) == domain.HealthHealthy {
			n++
		}
	}
	return n
}

// IsDown reports whether zero endpoints are healthy.
func (p *Pool) IsDown() bool {
	return p.down.Load()
}

// Down delivers the latest degraded-mode transition: true when the healthy count drops to zero,
// false when an endpoint recovers.
func (p *Pool) Down() <-chan bool {
	return p.downCh
}

func (p *Pool) runEndpoint(ctx context.Context, ep *endpoint) {
	defer p.wg.Done()

	log := p.logger.With(zap.String("endpoint", ep.desc.Name))
	delay := time.Duration(ep.rank) * p.cfg.ReconnectStagger
	backoff := p.cfg.BackoffInitial
	first := true

	for {
		if !sleep(ctx, delay) {
			return
		}
		if !first {
			observability.RecordReconnect(ep.desc.Name)
		}
		first = false

		dialCtx, cancel := context.WithTimeout(ctx, p.cfg.DialTimeout)
		stream, err := p.dialer.Dial(dialCtx, ep.desc)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.recordFailure(ep, err)
			delay = p.nextDelay(ep, &backoff)
			log.Debug("dial failed", zap.Error(err), zap.Duration("retry_in", delay))
			continue
		}

		p.recordConnect(ep)
		backoff = p.cfg.BackoffInitial
		log.Info("endpoint connected")

		err = p.serve(ctx, ep, stream)
		stream.Close()
		p.recordDisconnect(ep)
		if ctx.Err() != nil {
			return
		}

		p.recordFailure(ep, err)
		delay = p.nextDelay(ep, &backoff)
		log.Warn("stream ended", zap.Error(err), zap.Duration("retry_in", delay))
	}
}

// serve reads until the stream fails. A concurrent prober pings at the endpoint's probe interval.
func (p *Pool) serve(ctx context.Context, ep *endpoint, stream Stream) error {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	probeErr := make(chan error, 1)
	go p.probe(sctx, cancel, ep, stream, probeErr)

	alive := false
	for {
		rctx, rcancel := context.WithTimeout(sctx, p.cfg.ReadTimeout)
		ev, err := stream.Recv(rctx)
		rcancel()
		if err != nil {
			select {
			case perr := <-probeErr:
				return perr
			default:
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) && sctx.Err() == nil {
				return fmt.Errorf("%w: nothing received for %s", ErrReadTimeout, p.cfg.ReadTimeout)
			}
			return err
		}
		if !alive {
			alive = true
			p.recordAlive(ep)
		}
		p.forward(sctx, ep, ev)
	}
}

func (p *Pool) probe(ctx context.Context, stop context.CancelFunc, ep *endpoint, stream Stream, errCh chan<- error) {
	ticker := time.NewTicker(p.probeInterval(ep))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pctx, cancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout)
		rtt, err := stream.Ping(pctx)
		cancel()
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			p.recordFailure(ep, err)
			ep.mu.Lock()
			timeouts := ep.state.ConsecutiveTimeouts
			ep.mu.Unlock()
			if !isTimeout(err) || timeouts >= p.cfg.Health.TimeoutThreshold {
				errCh <- fmt.Errorf("probe: %w", err)
				stop()
				return
			}
			continue
		}
		p.recordProbe(ep, rtt)
	}
}

func (p *Pool) forward(ctx context.Context, ep *endpoint, ev domain.RawEvent) {
	now := time.Now()
	observability.RecordEventReceived(ep.desc.Name)

	ep.apply(func(st *domain.EndpointState) bool {
		st.LastSeen = now
		st.Events++
		return false
	})

	if domain.Health(ep.health.Load()) == domain.HealthDead {
		observability.RecordMuted(ep.desc.Name)
		return
	}
	if ev.Key == "" {
		return
	}
	if p.dedup.Seen(ev.Key, now) {
		observability.RecordDuplicate()
		return
	}

	if ev.Endpoint == "" {
		ev.Endpoint = ep.desc.Name
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = now
	}

	select {
	case p.out <- ev:
		observability.RecordForwarded()
	case <-ctx.Done():
	}
}

func (p *Pool) probeInterval(ep *endpoint) time.Duration {
	d := time.Duration(float64(p.cfg.ProbeInterval) / ep.desc.Weight)
	if d < 10*time.Millisecond {
		d = 10 * time.Millisecond
	}
	return d
}

// nextDelay returns the wait before the next dial and advances the backoff.
func (p *Pool) nextDelay(ep *endpoint, backoff *time.Duration) time.Duration {
	d := *backoff
	// +/-20% jitter
	if j := int64(d) / 5; j > 0 {
		d += time.Duration(rand.Int64N(2*j) - j)
	}
	d += time.Duration(ep.rank) * p.cfg.ReconnectStagger

	*backoff *= 2
	if *backoff > p.cfg.BackoffMax {
		*backoff = p.cfg.BackoffMax
	}

	if domain.Health(ep.health.Load()) == domain.HealthDead && d < p.cfg.DeadProbeInterval {
		d = p.cfg.DeadProbeInterval
	}
	return d
}

// apply mutates the endpoint state under its lock and republishes health.
func (ep *endpoint) apply(fn func(st *domain.EndpointState) bool) (old, cur domain.Health, changed bool) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	old = ep.state.Health
	changed = fn(&ep.state)
	cur = ep.state.Health
	ep.health.Store(int32(cur))
	return old, cur, changed
}

func (p *Pool) recordConnect(ep *endpoint) {
	now := time.Now()
	old, cur, changed := ep.apply(func(st *domain.EndpointState) bool {
		if !st.ConnectedAt.IsZero() {
			st.Reconnects++
		}
		st.Connected = true
		st.ConnectedAt = now
		return false
	})
	if changed {
		p.healthChanged(ep, old, cur)
	}
}

// recordAlive counts the first event of a connection as a successful probe. A bare
// dial proves nothing about the stream.
func (p *Pool) recordAlive(ep *endpoint) {
	now := time.Now()
	old, cur, changed := ep.apply(func(st *domain.EndpointState) bool {
		return p.cfg.Health.OnProbeSuccess(st, now)
	})
	if changed {
		p.healthChanged(ep, old, cur)
	}
}

func (p *Pool) recordDisconnect(ep *endpoint) {
	ep.apply(func(st *domain.EndpointState) bool {
		st.Connected = false
		return false
	})
}

func (p *Pool) recordProbe(ep *endpoint, rtt time.Duration) {
	now := time.Now()
	var latency time.Duration
	old, cur, changed := ep.apply(func(st *domain.EndpointState) bool {
		if st.Latency == 0 {
			st.Latency = rtt
		} else {
			st.Latency = (st.Latency*4 + rtt) / 5
		}
		latency = st.Latency
		return p.cfg.Health.OnProbeSuccess(st, now)
	})

	observability.SetEndpointLatency(ep.desc.Name, latency.Seconds())
	if changed {
		p.healthChanged(ep, old, cur)
	}
}

func (p *Pool) recordFailure(ep *endpoint, err error) {
	now := time.Now()
	old, cur, changed := ep.apply(func(st *domain.EndpointState) bool {
		return p.cfg.Health.OnFailure(st, now, isTimeout(err), err)
	})
	if changed {
		p.healthChanged(ep, old, cur)
	}
}

func (p *Pool) healthChanged(ep *endpoint, old, cur domain.Health) {
	observability.SetEndpointHealth(ep.desc.Name, int(cur))
	p.logger.Info("endpoint health changed",
		zap.String("endpoint", ep.desc.Name),
		zap.Stringer("from", old),
		zap.Stringer("to", cur))

	p.updateDown()
}

func (p *Pool) updateDown() {
	p.downMu.Lock()
	defer p.downMu.Unlock()

	healthy := p.Healthy()
	down := healthy == 0
	if p.down.Load() == down {
		return
	}
	p.down.Store(down)
	observability.SetPipelineDown(down)

	if down {
		p.logger.Error("pipeline down: zero healthy endpoints, still reconnecting")
	} else {
		p.logger.Info("pipeline recovered", zap.Int("healthy", healthy))
	}

	select {
	case <-p.downCh:
	default:
	}
	p.downCh <- down
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrReadTimeout) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

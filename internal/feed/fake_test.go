package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"solana-sniper/internal/domain"
)

var errStreamClosed = errors.New("stream closed")

type fakeStream struct {
	events chan domain.RawEvent
	closed chan struct{}
	once   sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		events: make(chan domain.RawEvent, 16),
		closed: make(chan struct{}),
	}
}

func (s *fakeStream) Recv(ctx context.Context) (domain.RawEvent, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case <-s.closed:
		return domain.RawEvent{}, errStreamClosed
	case <-ctx.Done():
		return domain.RawEvent{}, ctx.Err()
	}
}

func (s *fakeStream) Ping(ctx context.Context) (time.Duration, error) {
	select {
	case <-s.closed:
		return 0, errStreamClosed
	default:
		return time.Millisecond, nil
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeStream) send(key string) {
	s.events <- domain.RawEvent{Key: key, ReceivedAt: time.Now()}
}

// fakeDialer hands out fakeStreams and can be told to refuse an endpoint or to
// hand it streams that are already closed.
type fakeDialer struct {
	mu      sync.Mutex
	streams map[string]*fakeStream
	refuse  map[string]bool
	drop    map[string]bool
	dials   map[string]int
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		streams: make(map[string]*fakeStream),
		refuse:  make(map[string]bool),
		drop:    make(map[string]bool),
		dials:   make(map[string]int),
	}
}

func (d *fakeDialer) Dial(_ context.Context, ep domain.EndpointDescriptor) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials[ep.Name]++
	if d.refuse[ep.Name] {
		return nil, errors.New("connection refused")
	}
	s := newFakeStream()
	if d.drop[ep.Name] {
		s.Close()
	}
	d.streams[ep.Name] = s
	return s, nil
}

func (d *fakeDialer) setRefuse(name string, refuse bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refuse[name] = refuse
}

func (d *fakeDialer) setDrop(name string, drop bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drop[name] = drop
}

func (d *fakeDialer) stream(name string) *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streams[name]
}

func (d *fakeDialer) dialCount(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[name]
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DedupWindow = 50 * time.Millisecond
	cfg.BackoffInitial = 5 * time.Millisecond
	cfg.BackoffMax = 20 * time.Millisecond
	cfg.ReconnectStagger = time.Millisecond
	cfg.DialTimeout = time.Second
	cfg.ReadTimeout = 5 * time.Second
	cfg.ProbeInterval = 10 * time.Millisecond
	cfg.ProbeTimeout = 50 * time.Millisecond
	cfg.DeadProbeInterval = 20 * time.Millisecond
	cfg.Health = HealthPolicy{
		FailureThreshold: 1,
		TimeoutThreshold: 1,
		DeadAfter:        0,
		RecoverAfter:     2,
	}
	return cfg
}

func endpoints(names ...string) []domain.EndpointDescriptor {
	out := make([]domain.EndpointDescriptor, len(names))
	for i, n := range names {
		out[i] = domain.EndpointDescriptor{Name: n, URL: "wss://" + n, Priority: i, Weight: 1, Enabled: true}
	}
	return out
}

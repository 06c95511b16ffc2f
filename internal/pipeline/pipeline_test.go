package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"solana-sniper/internal/discovery"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/evaluate"
	"solana-sniper/internal/executor"
	"solana-sniper/internal/feed"
	"solana-sniper/internal/idhash"
)

// chanStream is a feed.Stream fed from a channel.
type chanStream struct {
	events chan domain.RawEvent
	closed chan struct{}
	once   sync.Once
}

func (s *chanStream) Recv(ctx context.Context) (domain.RawEvent, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case <-s.closed:
		return domain.RawEvent{}, errors.New("closed")
	case <-ctx.Done():
		return domain.RawEvent{}, ctx.Err()
	}
}

func (s *chanStream) Ping(context.Context) (time.Duration, error) { return time.Millisecond, nil }

func (s *chanStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type chanDialer struct {
	mu      sync.Mutex
	streams map[string]*chanStream
}

func (d *chanDialer) Dial(_ context.Context, ep domain.EndpointDescriptor) (feed.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &chanStream{events: make(chan domain.RawEvent, 8), closed: make(chan struct{})}
	d.streams[ep.Name] = s
	return s, nil
}

func (d *chanDialer) stream(name string) *chanStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streams[name]
}

type sliceSource struct{ events []domain.RawEvent }

func (s sliceSource) Subscribe(context.Context) (<-chan domain.RawEvent, error) {
	ch := make(chan domain.RawEvent, len(s.events))
	for _, ev := range s.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

// keyDecoder decodes every event into a launch whose mint is derived from the key.
type keyDecoder struct{}

func (keyDecoder) Decode(ev domain.RawEvent) (*discovery.CreateEvent, bool) {
	if ev.Key == "" {
		return nil, false
	}
	var mint solanago.PublicKey
	copy(mint[:], ev.Key)
	return &discovery.CreateEvent{Name: "Token " + ev.Key, Symbol: ev.Key, Mint: mint, Signature: ev.Key, Slot: ev.Slot}, true
}

type fakeValue struct {
	accept bool
	err    error
	delay  time.Duration
}

func (f fakeValue) EvaluateValue(ctx context.Context, ev *discovery.CreateEvent) (*evaluate.ValueDecision, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &evaluate.ValueDecision{
		Verdict:      evaluate.Verdict{Accept: f.accept, Reason: "market cap"},
		MarketCapUSD: decimal.NewFromInt(9000),
		Skeleton:     domain.TxSkeleton{Payer: ev.Mint},
	}, nil
}

type fakeRisk struct{ accept bool }

func (f fakeRisk) EvaluateRisk(context.Context, *discovery.CreateEvent) (evaluate.Verdict, error) {
	return evaluate.Verdict{Accept: f.accept, Reason: "keyword", Score: 0.1}, nil
}

type recordingAdmitter struct {
	mu    sync.Mutex
	calls []*domain.ExecutionCandidate
	err   error
}

func (a *recordingAdmitter) Admit(c *domain.ExecutionCandidate) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, c)
	return a.err
}

func (a *recordingAdmitter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

func newPipeline(src Source, value evaluate.ValueEvaluator, risk evaluate.RiskEvaluator, adm Admitter) *Pipeline {
	return New(Options{
		Source:     src,
		Decoder:    keyDecoder{},
		Value:      value,
		Risk:       risk,
		Admitter:   adm,
		Budget:     50 * time.Millisecond,
		Urgency:    domain.UrgencyHigh,
		SlotOffset: 1,
		Logger:     zap.NewNop(),
	})
}

func TestPipeline_DuplicateAcrossEndpointsAdmittedOnce(t *testing.T) {
	dialer := &chanDialer{streams: make(map[string]*chanStream)}
	cfg := feed.DefaultConfig()
	cfg.DedupWindow = 50 * time.Millisecond
	descs := []domain.EndpointDescriptor{
		{Name: "one", URL: "ws://one", Priority: 0, Weight: 1, Enabled: true},
		{Name: "two", URL: "ws://two", Priority: 1, Weight: 1, Enabled: true},
	}
	pool, err := feed.NewPool(descs, dialer, cfg, zap.NewNop())
	require.NoError(t, err)

	adm := &recordingAdmitter{}
	p := newPipeline(pool, fakeValue{accept: true}, fakeRisk{accept: true}, adm)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	var one, two *chanStream
	require.Eventually(t, func() bool {
		one, two = dialer.stream("one"), dialer.stream("two")
		return one != nil && two != nil
	}, 2*time.Second, time.Millisecond)

	one.events <- domain.RawEvent{Key: "X", Slot: 100, Endpoint: "one", ReceivedAt: time.Now()}
	time.Sleep(3 * time.Millisecond)
	two.events <- domain.RawEvent{Key: "X", Slot: 100, Endpoint: "two", ReceivedAt: time.Now()}

	require.Eventually(t, func() bool { return adm.count() == 1 }, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, adm.count())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop")
	}
}

func TestPipeline_Process_BuildsCandidate(t *testing.T) {
	adm := &recordingAdmitter{}
	p := newPipeline(nil, fakeValue{accept: true}, fakeRisk{accept: true}, adm)

	c := p.Process(context.Background(), domain.RawEvent{Key: "sig1", Slot: 42})
	require.NotNil(t, c)

	launch, _ := keyDecoder{}.Decode(domain.RawEvent{Key: "sig1"})
	assert.Equal(t, idhash.ComputeCandidateID(launch.Mint.String(), "sig1", 42), c.ID)
	assert.Equal(t, launch.Mint.String(), c.Asset)
	assert.Equal(t, domain.UrgencyHigh, c.Urgency)
	assert.Equal(t, 1, c.SlotOffset)
	assert.Equal(t, int64(42), c.OriginSlot)
	assert.Equal(t, "sig1", c.EventKey)
	assert.Equal(t, uint64(1), p.Stats().Admitted)
}

func TestPipeline_Process_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		value fakeValue
		risk  fakeRisk
	}{
		{"value rejects", fakeValue{accept: false}, fakeRisk{accept: true}},
		{"risk rejects", fakeValue{accept: true}, fakeRisk{accept: false}},
		{"value errors", fakeValue{err: errors.New("no price")}, fakeRisk{accept: true}},
		{"budget exceeded", fakeValue{accept: true, delay: 200 * time.Millisecond}, fakeRisk{accept: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adm := &recordingAdmitter{}
			p := newPipeline(nil, tt.value, tt.risk, adm)

			c := p.Process(context.Background(), domain.RawEvent{Key: "sig", Slot: 1})
			assert.Nil(t, c)
			assert.Zero(t, adm.count())
			assert.Equal(t, uint64(1), p.Stats().Rejected)
		})
	}
}

func TestPipeline_Process_UndecodableIgnored(t *testing.T) {
	adm := &recordingAdmitter{}
	p := newPipeline(nil, fakeValue{accept: true}, fakeRisk{accept: true}, adm)

	assert.Nil(t, p.Process(context.Background(), domain.RawEvent{}))
	assert.Zero(t, p.Stats().Decoded)
	assert.Zero(t, adm.count())
}

func TestPipeline_AdmissionErrorCounted(t *testing.T) {
	adm := &recordingAdmitter{err: executor.ErrAssetInFlight}
	events := []domain.RawEvent{{Key: "a", Slot: 1}, {Key: "b", Slot: 1}}
	p := newPipeline(sliceSource{events: events}, fakeValue{accept: true}, fakeRisk{accept: true}, adm)

	require.NoError(t, p.Run(context.Background()))

	st := p.Stats()
	assert.Equal(t, uint64(2), st.Events)
	assert.Equal(t, uint64(2), st.AdmitFailed)
	assert.Zero(t, st.Admitted)
}

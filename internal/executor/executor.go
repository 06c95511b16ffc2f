// Package executor drives execution candidates from admission through dispatch
// and confirmation to a terminal outcome.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/observability"
	"solana-sniper/internal/queue"
	"solana-sniper/internal/solana"
	"solana-sniper/internal/submit"
)

var (
	// ErrAssetInFlight is returned by Admit when the asset already has a live candidate.
	ErrAssetInFlight = errors.New("asset already in flight")
	// ErrShuttingDown is returned by Admit once Shutdown has started.
	ErrShuttingDown = errors.New("executor shutting down")
	// ErrInvalidCandidate is returned by Admit for a candidate without id or asset,
	// with a negative slot offset or with an unknown urgency.
	ErrInvalidCandidate = errors.New("invalid candidate")
)

// SlotSource is the tracker surface the executor reads.
type SlotSource interface {
	Current() (domain.SlotState, error)
	WaitFresh(ctx context.Context, maxWait time.Duration) (domain.SlotState, error)
	Slot() int64
	SlotDuration() time.Duration
}

// Submitter signs and submits a candidate against a blockhash.
type Submitter interface {
	Dispatch(ctx context.Context, c *domain.ExecutionCandidate, blockhash string) (*submit.Submission, error)
}

// Config configures an Executor.
type Config struct {
	Workers int
	// MaxRetries R allows R+1 attempts; the last expiry is a hard miss.
	MaxRetries     int
	FreshWait      time.Duration
	ConfirmBase    time.Duration
	ConfirmPerSlot time.Duration
	ConfirmPoll    time.Duration
	// ConfirmCommitment is the status level counted as landed.
	ConfirmCommitment solana.Commitment
	EvictInterval     time.Duration
	OutcomeBuffer     int
}

// DefaultConfig returns the default executor configuration.
func DefaultConfig() Config {
	return Config{
		Workers:           4,
		MaxRetries:        2,
		FreshWait:         200 * time.Millisecond,
		ConfirmBase:       800 * time.Millisecond,
		ConfirmPerSlot:    400 * time.Millisecond,
		ConfirmPoll:       100 * time.Millisecond,
		ConfirmCommitment: solana.CommitmentProcessed,
		EvictInterval:     50 * time.Millisecond,
		OutcomeBuffer:     1024,
	}
}

// Stats is a point-in-time executor summary.
type Stats struct {
	Queued     int    `json:"queued"`
	InFlight   int    `json:"in_flight"`
	Pending    int    `json:"pending"`
	Admitted   uint64 `json:"admitted"`
	Dispatched uint64 `json:"dispatched"`
	Confirmed  uint64 `json:"confirmed"`
	Failed     uint64 `json:"failed"`
	Missed     uint64 `json:"missed"`
	Cancelled  uint64 `json:"cancelled"`
}

// flight is the executor's record of one live candidate. Guarded by Executor.mu.
type flight struct {
	candidate  *domain.ExecutionCandidate
	state      domain.CandidateState
	attempt    int
	admittedAt time.Time
	pending    *domain.PendingExecution
	signatures []string
	stopWatch  context.CancelFunc
	done       bool
	// cancelRequested defers a Cancel that arrived after broadcast began.
	cancelRequested bool
}

// Executor owns every admitted candidate until it reaches a terminal outcome.
// At most one candidate per asset is live at any time.
type Executor struct {
	queue     *queue.Queue
	slots     SlotSource
	submitter Submitter
	statuses  submit.StatusChecker
	cfg       Config
	logger    *zap.Logger

	mu       sync.Mutex
	flights  map[string]*flight // by asset
	closing  bool
	closed   bool
	outcomes chan domain.Outcome

	running     atomic.Bool
	stopRun     context.CancelFunc
	runDone     chan struct{}
	watchCtx    context.Context
	stopWatches context.CancelFunc
	watchers    sync.WaitGroup

	admitted, dispatched                 atomic.Uint64
	confirmed, failed, missed, cancelled atomic.Uint64
}

// New creates an executor over a fresh queue of the given capacity.
func New(capacity int, slots SlotSource, submitter Submitter, statuses submit.StatusChecker, cfg Config, logger *zap.Logger) *Executor {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.OutcomeBuffer < 1 {
		cfg.OutcomeBuffer = 1
	}
	x := &Executor{
		slots:     slots,
		submitter: submitter,
		statuses:  statuses,
		cfg:       cfg,
		logger:    logger,
		flights:   make(map[string]*flight),
		outcomes:  make(chan domain.Outcome, cfg.OutcomeBuffer),
		runDone:   make(chan struct{}),
	}
	x.watchCtx, x.stopWatches = context.WithCancel(context.Background())
	x.queue = queue.New(capacity, queue.WithExpireHook(x.onQueueExpired))
	return x
}

// Admit accepts a candidate for execution. It fails with ErrAssetInFlight when the
// asset already has a live candidate and with queue.ErrQueueFull when the queue
// holds nothing of lower priority.
func (x *Executor) Admit(c *domain.ExecutionCandidate) error {
	if c == nil || c.ID == "" || c.Asset == "" || c.SlotOffset < 0 || !c.Urgency.IsValid() {
		observability.RecordAdmission("invalid")
		return ErrInvalidCandidate
	}
	now := time.Now()

	x.mu.Lock()
	if x.closing {
		x.mu.Unlock()
		observability.RecordAdmission("shutdown")
		return ErrShuttingDown
	}
	if _, ok := x.flights[c.Asset]; ok {
		x.mu.Unlock()
		observability.RecordAdmission("in_flight")
		return fmt.Errorf("%w: %s", ErrAssetInFlight, c.Asset)
	}
	f := &flight{candidate: c, state: domain.StateQueued, attempt: 1, admittedAt: now}
	x.flights[c.Asset] = f
	x.mu.Unlock()

	evicted, err := x.queue.Push(queue.NewEntry(c, 1, x.anchorSlot(c), now, x.slots.SlotDuration()))
	if err != nil {
		x.mu.Lock()
		if x.flights[c.Asset] == f {
			delete(x.flights, c.Asset)
		}
		x.mu.Unlock()
		if errors.Is(err, queue.ErrQueueFull) {
			observability.RecordAdmission("queue_full")
		} else {
			observability.RecordAdmission("error")
		}
		return err
	}

	x.admitted.Add(1)
	observability.RecordAdmission("accepted")
	x.publishInFlight()
	if evicted != nil {
		x.finishEntry(evicted, domain.OutcomeMissed, "evicted by higher-priority entry")
	}
	return nil
}

// anchorSlot is the slot a new entry's offset counts from.
func (x *Executor) anchorSlot(c *domain.ExecutionCandidate) int64 {
	if s := x.slots.Slot(); s > 0 {
		return s
	}
	return c.OriginSlot
}

// Run starts the workers and the expiry sweeper and blocks until ctx is done.
func (x *Executor) Run(ctx context.Context) error {
	if !x.running.CompareAndSwap(false, true) {
		return errors.New("executor already running")
	}
	defer close(x.runDone)

	ctx, cancel := context.WithCancel(ctx)
	x.mu.Lock()
	x.stopRun = cancel
	x.mu.Unlock()
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < x.cfg.Workers; i++ {
		g.Go(func() error {
			x.work(gctx)
			return nil
		})
	}
	g.Go(func() error {
		x.sweep(gctx)
		return nil
	})
	return g.Wait()
}

func (x *Executor) work(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		e := x.queue.PopReady(time.Now(), x.slots.Slot())
		if e == nil {
			select {
			case <-ctx.Done():
				return
			case <-x.queue.Ready():
			}
			continue
		}
		x.dispatch(ctx, e)
	}
}

func (x *Executor) sweep(ctx context.Context) {
	interval := x.cfg.EvictInterval
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if expired := x.queue.EvictExpired(time.Now(), x.slots.Slot()); len(expired) > 0 {
				x.onQueueExpired(expired)
			}
		}
	}
}

// live returns the flight an entry belongs to, or nil when it has already terminated.
func (x *Executor) live(c *domain.ExecutionCandidate) *flight {
	x.mu.Lock()
	defer x.mu.Unlock()
	f := x.flights[c.Asset]
	if f == nil || f.done || f.candidate.ID != c.ID {
		return nil
	}
	return f
}

func (x *Executor) dispatch(ctx context.Context, e *domain.QueueEntry) {
	c := e.Candidate
	f := x.live(c)
	if f == nil {
		return
	}

	st, err := x.slots.WaitFresh(ctx, x.cfg.FreshWait)
	if err != nil {
		observability.RecordStaleWait()
		if e.Expired(time.Now(), x.slots.Slot()) {
			x.retry(f, e.Attempt, "window closed waiting for a fresh blockhash")
			return
		}
		x.logger.Debug("no fresh blockhash, requeueing", zap.String("candidate", c.ID), zap.Error(err))
		evicted, perr := x.queue.Push(e)
		if perr != nil {
			x.finish(f, domain.OutcomeMissed, "requeue after stale wait: "+perr.Error(), nil)
			return
		}
		if evicted != nil {
			x.finishEntry(evicted, domain.OutcomeMissed, "evicted by higher-priority entry")
		}
		return
	}
	if e.Expired(time.Now(), st.Slot) {
		x.retry(f, e.Attempt, "window closed before dispatch")
		return
	}

	x.mu.Lock()
	if f.done {
		x.mu.Unlock()
		return
	}
	f.state = domain.StateDispatched
	x.mu.Unlock()

	sub, err := x.submitter.Dispatch(ctx, c, st.Blockhash)
	if err != nil {
		if errors.Is(err, submit.ErrRejected) {
			x.logger.Warn("candidate rejected", zap.String("candidate", c.ID), zap.String("asset", c.Asset), zap.Error(err))
			x.finish(f, domain.OutcomeFailed, err.Error(), nil)
			return
		}
		x.logger.Debug("dispatch failed", zap.String("candidate", c.ID), zap.Int("attempt", e.Attempt), zap.Error(err))
		x.retry(f, e.Attempt, "dispatch: "+err.Error())
		return
	}
	x.dispatched.Add(1)

	timeout := x.cfg.ConfirmBase + time.Duration(c.SlotOffset)*x.cfg.ConfirmPerSlot
	watchCtx, stop := context.WithTimeout(x.watchCtx, timeout)

	x.mu.Lock()
	if f.done {
		x.mu.Unlock()
		stop()
		return
	}
	now := time.Now()
	p := &domain.PendingExecution{
		Candidate:       c,
		Signature:       sub.Signature,
		PriorSignatures: append([]string(nil), f.signatures...),
		Route:           sub.Route,
		BundleID:        sub.BundleID,
		TipLamports:     sub.TipLamports,
		Attempt:         e.Attempt,
		Priority:        e.Priority,
		TargetSlot:      e.TargetSlot,
		Blockhash:       sub.Blockhash,
		FirstSubmitAt:   now,
		LastSubmitAt:    now,
	}
	if f.pending != nil {
		p.FirstSubmitAt = f.pending.FirstSubmitAt
	}
	f.pending = p
	f.signatures = append(f.signatures, sub.Signature)
	f.state = domain.StateConfirming
	f.stopWatch = stop
	x.watchers.Add(1)
	x.mu.Unlock()

	go x.watch(watchCtx, f, p)
}

// watch polls statuses for every signature of the flight until one lands, one fails,
// or the confirmation window closes.
func (x *Executor) watch(ctx context.Context, f *flight, p *domain.PendingExecution) {
	defer x.watchers.Done()

	sigs := append(append([]string(nil), p.PriorSignatures...), p.Signature)
	ticker := time.NewTicker(x.cfg.ConfirmPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			x.watchEnded(ctx, f, p, sigs)
			return
		case <-ticker.C:
			if x.checkStatuses(ctx, f, p, sigs) {
				return
			}
		}
	}
}

// checkStatuses reports whether the flight reached a terminal outcome.
func (x *Executor) checkStatuses(ctx context.Context, f *flight, p *domain.PendingExecution, sigs []string) bool {
	start := time.Now()
	statuses, err := x.statuses.GetSignatureStatuses(ctx, sigs)
	observability.RecordRPCLatency("getSignatureStatuses", time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() == nil {
			x.logger.Debug("status check failed", zap.String("candidate", p.Candidate.ID), zap.Error(err))
		}
		return false
	}

	for i, st := range statuses {
		if st == nil || i >= len(sigs) {
			continue
		}
		x.mu.Lock()
		if sigs[i] == p.Signature {
			p.LastStatus = string(st.ConfirmationStatus)
		}
		x.mu.Unlock()

		if st.Err != nil {
			x.finish(f, domain.OutcomeFailed, fmt.Sprintf("transaction error: %v", st.Err), &landing{signature: sigs[i], slot: st.Slot})
			return true
		}
		if st.Landed(x.cfg.ConfirmCommitment) {
			x.finish(f, domain.OutcomeConfirmed, "", &landing{signature: sigs[i], slot: st.Slot})
			return true
		}
	}
	return false
}

func (x *Executor) watchEnded(ctx context.Context, f *flight, p *domain.PendingExecution, sigs []string) {
	x.mu.Lock()
	done, draining := f.done, x.closing
	x.mu.Unlock()
	if done {
		return
	}

	// Best-effort last look before giving up on this attempt.
	checkCtx, cancel := context.WithTimeout(context.Background(), x.cfg.ConfirmBase)
	landed := x.checkStatuses(checkCtx, f, p, sigs)
	cancel()
	if landed {
		return
	}

	if draining && errors.Is(ctx.Err(), context.Canceled) {
		x.finish(f, domain.OutcomeCancelled, "shutdown before confirmation", nil)
		return
	}
	x.retry(f, p.Attempt, "confirmation timeout")
}

// retry re-enqueues the candidate at the same priority after a failed attempt,
// or terminates it as a hard miss once the attempt ceiling is reached. A deferred
// Cancel takes effect here, once nothing sent for the candidate is still pending.
func (x *Executor) retry(f *flight, attempt int, reason string) {
	x.mu.Lock()
	if f.done {
		x.mu.Unlock()
		return
	}
	var kind domain.OutcomeKind
	terminal := true
	switch {
	case f.cancelRequested:
		kind, reason = domain.OutcomeCancelled, "cancelled after "+reason
	case attempt >= x.cfg.MaxRetries+1:
		kind, reason = domain.OutcomeMissed, fmt.Sprintf("%s (attempt %d of %d)", reason, attempt, x.cfg.MaxRetries+1)
	case x.closing:
		kind, reason = domain.OutcomeCancelled, "shutdown before retry"
	default:
		terminal = false
		f.state = domain.StateQueued
		f.attempt = attempt + 1
		if f.stopWatch != nil {
			f.stopWatch()
			f.stopWatch = nil
		}
	}
	x.mu.Unlock()
	if terminal {
		x.finish(f, kind, reason, nil)
		return
	}

	x.logger.Debug("retrying candidate",
		zap.String("candidate", f.candidate.ID),
		zap.Int("attempt", attempt+1),
		zap.String("reason", reason),
	)
	e := queue.NewEntry(f.candidate, attempt+1, x.slots.Slot(), time.Now(), x.slots.SlotDuration())
	evicted, err := x.queue.Push(e)
	if err != nil {
		x.finish(f, domain.OutcomeMissed, "requeue: "+err.Error(), nil)
		return
	}
	if evicted != nil {
		x.finishEntry(evicted, domain.OutcomeMissed, "evicted by higher-priority entry")
	}
}

func (x *Executor) onQueueExpired(entries []*domain.QueueEntry) {
	for _, e := range entries {
		if f := x.live(e.Candidate); f != nil {
			x.retry(f, e.Attempt, "queue expiry")
		}
	}
}

func (x *Executor) finishEntry(e *domain.QueueEntry, kind domain.OutcomeKind, reason string) {
	if f := x.live(e.Candidate); f != nil {
		x.finish(f, kind, reason, nil)
	}
}

type landing struct {
	signature string
	slot      int64
}

// finish moves the flight to a terminal outcome exactly once: its queue entry
// and confirmation watch are cancelled together and the asset is released.
func (x *Executor) finish(f *flight, kind domain.OutcomeKind, reason string, land *landing) bool {
	x.mu.Lock()
	if f.done {
		x.mu.Unlock()
		return false
	}
	f.done = true
	switch kind {
	case domain.OutcomeConfirmed:
		f.state = domain.StateConfirmed
	case domain.OutcomeFailed:
		f.state = domain.StateFailed
	default:
		f.state = domain.StateExpired
	}
	if x.flights[f.candidate.Asset] == f {
		delete(x.flights, f.candidate.Asset)
	}
	if f.stopWatch != nil {
		f.stopWatch()
		f.stopWatch = nil
	}
	c := f.candidate
	out := domain.Outcome{
		CandidateID: c.ID,
		Asset:       c.Asset,
		Kind:        kind,
		OriginSlot:  c.OriginSlot,
		Attempts:    f.attempt,
		Reason:      reason,
		At:          time.Now(),
	}
	out.Latency = out.At.Sub(f.admittedAt)
	if f.pending != nil {
		out.Route = f.pending.Route
		out.Signature = f.pending.Signature
	}
	if land != nil {
		out.Signature = land.signature
		out.Slot = land.slot
	}
	if !x.closed {
		select {
		case x.outcomes <- out:
		default:
			x.logger.Warn("outcome buffer full, dropping outcome", zap.String("candidate", c.ID))
		}
	}
	x.mu.Unlock()

	x.queue.Remove(c.ID)

	switch kind {
	case domain.OutcomeConfirmed:
		x.confirmed.Add(1)
		observability.RecordTimeToLand(out.Latency.Seconds())
	case domain.OutcomeFailed:
		x.failed.Add(1)
	case domain.OutcomeMissed:
		x.missed.Add(1)
	case domain.OutcomeCancelled:
		x.cancelled.Add(1)
	}
	observability.RecordOutcome(kind.String())
	x.publishInFlight()

	x.logger.Info("candidate finished",
		zap.String("candidate", c.ID),
		zap.String("asset", c.Asset),
		zap.String("outcome", kind.String()),
		zap.Int("attempts", out.Attempts),
		zap.String("signature", out.Signature),
		zap.Int64("slot", out.Slot),
		zap.String("reason", reason),
		zap.Duration("latency", out.Latency),
	)
	return true
}

// Cancel terminates the live candidate for an asset. It reports whether one existed.
// A candidate whose transaction is being broadcast or confirmed keeps its asset until
// that signature resolves: it ends Confirmed if it lands and Cancelled otherwise,
// and is never retried.
func (x *Executor) Cancel(asset string) bool {
	x.mu.Lock()
	f := x.flights[asset]
	if f == nil || f.done {
		x.mu.Unlock()
		return false
	}
	if f.state == domain.StateDispatched || f.state == domain.StateConfirming {
		f.cancelRequested = true
		x.mu.Unlock()
		x.logger.Debug("cancel deferred until broadcast resolves", zap.String("candidate", f.candidate.ID))
		return true
	}
	x.mu.Unlock()
	return x.finish(f, domain.OutcomeCancelled, "cancelled", nil)
}

// Outcomes returns the terminal outcome stream. It is closed by Shutdown.
func (x *Executor) Outcomes() <-chan domain.Outcome {
	return x.outcomes
}

// Pending returns copies of every dispatched, unconfirmed execution.
func (x *Executor) Pending() []domain.PendingExecution {
	x.mu.Lock()
	defer x.mu.Unlock()
	var out []domain.PendingExecution
	for _, f := range x.flights {
		if f.state == domain.StateConfirming && f.pending != nil {
			out = append(out, *f.pending)
		}
	}
	return out
}

// Stats returns current counters.
func (x *Executor) Stats() Stats {
	s := Stats{
		Queued:     x.queue.Len(),
		Admitted:   x.admitted.Load(),
		Dispatched: x.dispatched.Load(),
		Confirmed:  x.confirmed.Load(),
		Failed:     x.failed.Load(),
		Missed:     x.missed.Load(),
		Cancelled:  x.cancelled.Load(),
	}
	x.mu.Lock()
	s.InFlight = len(x.flights)
	for _, f := range x.flights {
		if f.state == domain.StateConfirming {
			s.Pending++
		}
	}
	x.mu.Unlock()
	return s
}

func (x *Executor) publishInFlight() {
	x.mu.Lock()
	n := len(x.flights)
	x.mu.Unlock()
	observability.SetInFlight(n)
}

// Shutdown stops admission and the workers, cancels queued candidates, and drains
// pending executions through a final status check. Every live candidate ends with a
// reported outcome unless ctx expires first. The outcome stream is closed on return.
func (x *Executor) Shutdown(ctx context.Context) error {
	x.mu.Lock()
	if x.closed {
		x.mu.Unlock()
		return nil
	}
	x.closing = true
	stop := x.stopRun
	x.mu.Unlock()

	if stop != nil {
		stop()
	}
	var err error
	if x.running.Load() {
		select {
		case <-x.runDone:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}

	for _, e := range x.queue.Close() {
		x.finishEntry(e, domain.OutcomeCancelled, "shutdown before dispatch")
	}

	x.stopWatches()
	drained := make(chan struct{})
	go func() {
		x.watchers.Wait()
		close(drained)
	}()

	if err == nil {
		select {
		case <-drained:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}

	// Anything still live lost its watcher; report it rather than dropping it.
	x.mu.Lock()
	var rest []*flight
	for _, f := range x.flights {
		rest = append(rest, f)
	}
	x.mu.Unlock()
	for _, f := range rest {
		x.finish(f, domain.OutcomeCancelled, "shutdown", nil)
	}

	x.mu.Lock()
	x.closed = true
	close(x.outcomes)
	x.mu.Unlock()
	return err
}

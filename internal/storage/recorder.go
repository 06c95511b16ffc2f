package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/observability"
)

// Recorder drains an outcome stream into a journal. Journal failures are logged and
// counted, never propagated back to the producer.
type Recorder struct {
	journal OutcomeJournal
	driver  string
	runID   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewRecorder creates a recorder. driver labels metrics.
func NewRecorder(journal OutcomeJournal, driver, runID string, timeout time.Duration, logger *zap.Logger) *Recorder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{journal: journal, driver: driver, runID: runID, timeout: timeout, logger: logger}
}

// Run consumes outcomes until the channel closes. It keeps draining after ctx is done so
// outcomes produced during shutdown are still journaled.
func (r *Recorder) Run(ctx context.Context, outcomes <-chan domain.Outcome) error {
	for o := range outcomes {
		r.write(context.WithoutCancel(ctx), o)
	}
	return nil
}

func (r *Recorder) write(ctx context.Context, o domain.Outcome) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rec := NewOutcomeRecord(r.runID, o)
	err := r.journal.Record(ctx, rec)
	observability.RecordJournalWrite(r.driver, err)
	if err != nil {
		r.logger.Warn("journal write failed",
			zap.String("candidate", rec.CandidateID),
			zap.String("kind", rec.Kind),
			zap.Error(err),
		)
	}
}

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

func record(candidateID string, at time.Time) storage.OutcomeRecord {
	return storage.NewOutcomeRecord("run", domain.Outcome{
		CandidateID: candidateID,
		Kind:        domain.OutcomeConfirmed,
		At:          at,
	})
}

func TestOutcomeJournal_Record(t *testing.T) {
	ctx := context.Background()
	j := NewOutcomeJournal()
	base := time.Unix(1700000000, 0)

	require.NoError(t, j.Record(ctx, record("b", base.Add(time.Second))))
	require.NoError(t, j.Record(ctx, record("a", base)))

	got := j.Records()
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].CandidateID)
	assert.Equal(t, "b", got[1].CandidateID)
}

func TestOutcomeJournal_Duplicate(t *testing.T) {
	ctx := context.Background()
	j := NewOutcomeJournal()

	require.NoError(t, j.Record(ctx, record("a", time.Now())))
	err := j.Record(ctx, record("a", time.Now()))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestOutcomeJournal_InvalidInput(t *testing.T) {
	j := NewOutcomeJournal()
	err := j.Record(context.Background(), storage.OutcomeRecord{ID: "x"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestOutcomeJournal_Closed(t *testing.T) {
	j := NewOutcomeJournal()
	require.NoError(t, j.Close())
	err := j.Record(context.Background(), record("a", time.Now()))
	assert.ErrorIs(t, err, storage.ErrClosed)
}

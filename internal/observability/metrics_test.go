package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewMetrics_IsolatedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.EventsForwarded.Inc()
	m.Outcomes.WithLabelValues("confirmed").Inc()
	m.Outcomes.WithLabelValues("confirmed").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsForwarded))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("confirmed")))

	count, err := testutil.GatherAndCount(reg, "test_executor_outcomes_total")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRecordHelpers(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.JournalWrites.WithLabelValues("memory", "error"))
	RecordJournalWrite("memory", errors.New("boom"))
	assert.Equal(t, before+1, testutil.ToFloat64(DefaultMetrics.JournalWrites.WithLabelValues("memory", "error")))

	SetPipelineDown(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(DefaultMetrics.PipelineDown))
	SetPipelineDown(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(DefaultMetrics.PipelineDown))

	UpdateSlot(123, 0.4)
	assert.Equal(t, 123.0, testutil.ToFloat64(DefaultMetrics.TrackedSlot))
}

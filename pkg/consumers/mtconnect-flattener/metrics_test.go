package mtconnectflattener

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/mtconnect-flattener/pkg/models"
)

func TestMetricsRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()

	first, err := NewMetrics(reg)
	require.NoError(t, err)

	second, err := NewMetrics(reg)
	require.NoError(t, err, "registering twice reuses the existing collectors")

	first.documentProcessed(OutcomeCompleted, 10*time.Millisecond)
	second.documentProcessed(OutcomeCompleted, 20*time.Millisecond)
	second.documentFailed(time.Millisecond)
	first.recordEmitted(models.RecordKindSample)
	first.emitFailed(models.RecordKindEvent)

	assert.InDelta(t, 2, testutil.ToFloat64(first.documents.WithLabelValues("completed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(first.documents.WithLabelValues("error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(first.recordsEmitted.WithLabelValues("sample")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(first.emitFailures.WithLabelValues("event")), 0)

	count, err := testutil.GatherAndCount(reg, "mtconnect_process_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNilMetricsAreNoOps(t *testing.T) {
	t.Parallel()

	var m *Metrics

	assert.NotPanics(t, func() {
		m.documentProcessed(OutcomeNoData, time.Millisecond)
		m.documentFailed(time.Millisecond)
		m.recordEmitted(models.RecordKindEvent)
		m.emitFailed(models.RecordKindSample)
	})
}

func TestOutcomeKindString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "no_data", OutcomeNoData.String())
	assert.Equal(t, "parse_failed", OutcomeParseFailed.String())
	assert.Equal(t, "completed", OutcomeCompleted.String())
	assert.Equal(t, "unknown", OutcomeKind(0).String())
}

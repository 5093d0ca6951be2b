package metrics

import (
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func durationSampleCount(t *testing.T) uint64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, analysisDuration.Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func TestRecordAnalysis_ObservesDurationForCompleted(t *testing.T) {
	before := durationSampleCount(t)

	RecordAnalysis(AnalysisCompleted, 250*time.Millisecond)

	assert.Equal(t, before+1, durationSampleCount(t))
}

func TestRecordAnalysis_SkipsDurationForFailures(t *testing.T) {
	before := durationSampleCount(t)

	RecordAnalysis(AnalysisError, time.Second)
	RecordAnalysis(AnalysisNoData, time.Second)

	assert.Equal(t, before, durationSampleCount(t),
		"only completed analyses feed the duration histogram")
}

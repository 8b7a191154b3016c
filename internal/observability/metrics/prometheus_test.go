package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrainingMetricsRecord(t *testing.T) {
	tm, err := NewTrainingMetrics("")
	require.NoError(t, err)

	tm.RecordEpoch(0.5, 0.4, 20*time.Millisecond)
	tm.RecordEpoch(0.3, 0.2, 20*time.Millisecond)
	tm.RecordBest(0.2)
	tm.RecordCheckpointWrite()
	tm.RecordEarlyStop()
	tm.RecordWindows("train", 76)
	tm.RecordWindows("train", 76)

	assert.Equal(t, 2.0, testutil.ToFloat64(tm.epochsTotal))
	assert.Equal(t, 0.3, testutil.ToFloat64(tm.trainLoss))
	assert.Equal(t, 0.2, testutil.ToFloat64(tm.valLoss))
	assert.Equal(t, 0.2, testutil.ToFloat64(tm.bestValLoss))
	assert.Equal(t, 1.0, testutil.ToFloat64(tm.checkpointWritesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(tm.earlyStopsTotal))
	assert.Equal(t, 152.0, testutil.ToFloat64(tm.windowsTotal.WithLabelValues("train")))
}

func TestTrainingMetricsHandler(t *testing.T) {
	tm, err := NewTrainingMetrics("forecast_test")
	require.NoError(t, err)
	tm.RecordEpoch(1, 1, time.Second)

	rec := httptest.NewRecorder()
	tm.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "forecast_test_epochs_total 1")
}

func TestNilTrainingMetricsIsNoop(t *testing.T) {
	var tm *TrainingMetrics
	assert.NotPanics(t, func() {
		tm.RecordEpoch(1, 1, time.Second)
		tm.RecordBest(1)
		tm.RecordCheckpointWrite()
		tm.RecordEarlyStop()
		tm.RecordWindows("val", 1)
	})
	assert.Nil(t, tm.Registry())
}

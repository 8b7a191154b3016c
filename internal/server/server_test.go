package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/tsforecast/internal/config"
	"github.com/inferloop/tsforecast/internal/observability/health"
	"github.com/inferloop/tsforecast/internal/observability/metrics"
	"github.com/inferloop/tsforecast/internal/window"
	"github.com/inferloop/tsforecast/pkg/models"
)

func newTestServer(t *testing.T, cfg config.ServerConfig, options Options) *Server {
	t.Helper()

	rows := make([][]float64, 60)
	for i := range rows {
		rows[i] = []float64{float64(i), float64(2 * i)}
	}
	table, err := models.NewTable([]string{"a", "b"}, rows)
	require.NoError(t, err)

	spec, err := window.NewSpec(6, 2)
	require.NoError(t, err)
	w, err := window.New(spec, table, table, table, window.Options{BatchSize: 8, Seed: 7}, logrus.New())
	require.NoError(t, err)

	return NewServer(cfg, w, options, logrus.New())
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestServer(t, config.ServerConfig{}, Options{}), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestHealthChecks(t *testing.T) {
	checker := health.NewChecker(logrus.New())
	checker.RegisterCheck("example", true, 0, func(context.Context) error { return nil })
	checker.RegisterCheck("checkpoint_dir", false, 0, func(context.Context) error {
		return fmt.Errorf("missing")
	})

	rec := get(t, newTestServer(t, config.ServerConfig{}, Options{Health: checker}), "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, health.StatusDegraded, resp.Status)
	assert.Equal(t, "missing", resp.Checks["checkpoint_dir"].Message)

	checker.RegisterCheck("example", true, 0, func(context.Context) error { return fmt.Errorf("no rows") })
	rec = get(t, newTestServer(t, config.ServerConfig{}, Options{Health: checker}), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDescribeWindow(t *testing.T) {
	rec := get(t, newTestServer(t, config.ServerConfig{}, Options{}), "/window")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp WindowResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 8, resp.TotalWindowSize)
	assert.Equal(t, []int{6, 7}, resp.LabelIndices)
	assert.Equal(t, []string{"a", "b"}, resp.Columns)
	assert.Equal(t, map[string]int{"train": 53, "val": 53, "test": 27}, resp.Windows)
	assert.Contains(t, resp.Description, "Total window size: 8")
}

func TestExample(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{}, Options{})

	var resp ExampleResponse
	rec := get(t, s, "/example")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, [3]int{8, 6, 2}, resp.InputShape)
	assert.Equal(t, [3]int{8, 2, 2}, resp.LabelShape)
	assert.Nil(t, resp.Inputs)

	rec = get(t, s, "/example?values=true")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Labels, 8)
	first := resp.Inputs[0][0][0]
	assert.Equal(t, first+6, resp.Labels[0][0][0], "labels follow the inputs")
}

func TestPlot(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{}, Options{TargetColumn: "b"})

	rec := get(t, s, "/plot.png?max_subplots=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	rec = get(t, s, "/plot.png?column=temp")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNDEFINED_COLUMN")

	rec = get(t, s, "/plot.png?max_subplots=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlotRateLimited(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{PlotRPS: 0.001, PlotBurst: 1}, Options{})

	assert.Equal(t, http.StatusOK, get(t, s, "/plot.png").Code)

	rec := get(t, s, "/plot.png")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, get(t, s, "/window").Code, "only plots are limited")
}

func TestMetricsRoute(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, get(t, newTestServer(t, config.ServerConfig{}, Options{}), "/metrics").Code)

	tm, err := metrics.NewTrainingMetrics("tsforecast")
	require.NoError(t, err)
	tm.RecordWindows("train", 53)
	rec := get(t, newTestServer(t, config.ServerConfig{}, Options{Metrics: tm}), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `tsforecast_windows_total{split="train"} 53`)
}

func TestNotFound(t *testing.T) {
	rec := get(t, newTestServer(t, config.ServerConfig{}, Options{}), "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")
}

package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/tsforecast/internal/training"
	"github.com/inferloop/tsforecast/internal/window"
	"github.com/inferloop/tsforecast/pkg/models"
)

func sampleHistory() *training.History {
	return &training.History{
		RunID:       "run-1",
		StartedAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		FinishedAt:  time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC),
		BestEpoch:   1,
		BestValLoss: 0.25,
		Epochs: []training.EpochMetrics{
			{Epoch: 0, Train: training.Metrics{Loss: 1, MAE: 0.8}, Val: training.Metrics{Loss: 0.5, MAE: 0.6}, Improved: true, Duration: 1500 * time.Millisecond},
			{Epoch: 1, Train: training.Metrics{Loss: 0.5, MAE: 0.4}, Val: training.Metrics{Loss: 0.25, MAE: 0.3}, Improved: true, Duration: time.Second},
			{Epoch: 2, Train: training.Metrics{Loss: 0.4, MAE: 0.35}, Val: training.Metrics{Loss: math.NaN(), MAE: math.NaN()}, Duration: time.Second},
		},
		CheckpointPath: "/tmp/best.ckpt",
	}
}

func TestNew(t *testing.T) {
	e, err := New("csv")
	require.NoError(t, err)
	assert.Equal(t, "csv", e.Name())

	e, err = New("json")
	require.NoError(t, err)
	assert.Equal(t, "json", e.Name())

	_, err = New("parquet")
	assert.Error(t, err)
}

func TestCSVExportHistory(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&CSVExporter{}).ExportHistory(context.Background(), &buf, sampleHistory(), DefaultOptions()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "epoch", rows[0][1])
	assert.Equal(t, []string{"run-1", "0", "1", "0.8", "0.5", "0.6", "true", "false", "1.500", "2024-01-01T00:05:00Z"}, rows[1])
	assert.Equal(t, "true", rows[2][7], "epoch 1 is the best epoch")
	assert.Equal(t, "NaN", rows[3][4])
}

func TestCSVExportOptions(t *testing.T) {
	options := Options{Precision: 2, Delimiter: ";"}

	var buf bytes.Buffer
	records := []ForecastRecord{{Window: 0, Step: 24, Column: "T (degC)", Observed: 1.234, Predicted: 1.5}}
	require.NoError(t, (&CSVExporter{}).ExportForecasts(context.Background(), &buf, records, options))
	assert.Equal(t, "0;24;T (degC);1.23;1.50;0.27\n", buf.String())

	options.Delimiter = ";;"
	assert.Error(t, (&CSVExporter{}).ExportForecasts(context.Background(), &buf, records, options))
}

func TestJSONExportHistory(t *testing.T) {
	var buf bytes.Buffer
	options := DefaultOptions()
	options.Precision = 1
	require.NoError(t, (&JSONExporter{}).ExportHistory(context.Background(), &buf, sampleHistory(), options))

	var doc JSONHistory
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "run-1", doc.RunID)
	assert.Equal(t, 3, doc.ExportInfo.Records)
	require.Len(t, doc.Epochs, 3)
	assert.Equal(t, 0.3, *doc.BestValLoss)
	assert.Equal(t, 0.8, *doc.Epochs[0].TrainMAE)
	assert.Nil(t, doc.Epochs[2].ValLoss, "NaN exports as null")
	assert.Equal(t, 1.5, doc.Epochs[0].DurationSeconds)
}

func TestExportCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	assert.ErrorIs(t, (&CSVExporter{}).ExportHistory(ctx, &buf, sampleHistory(), DefaultOptions()), context.Canceled)
	assert.ErrorIs(t, (&JSONExporter{}).ExportForecasts(ctx, &buf, nil, DefaultOptions()), context.Canceled)
}

type lastInput struct{ labelWidth int }

func (p lastInput) Predict(inputs models.Tensor) (models.Tensor, error) {
	shape := inputs.Shape()
	out := models.NewTensor(shape[0], p.labelWidth, shape[2])
	for b := range inputs {
		for t := range out[b] {
			copy(out[b][t], inputs[b][shape[1]-1])
		}
	}
	return out, nil
}

func TestCollectForecasts(t *testing.T) {
	rows := make([][]float64, 10)
	for i := range rows {
		rows[i] = []float64{float64(i)}
	}
	table, err := models.NewTable([]string{"a"}, rows)
	require.NoError(t, err)

	spec, err := window.NewSpec(3, 2)
	require.NoError(t, err)
	w, err := window.New(spec, table, table, table, window.Options{Seed: 1}, logrus.New())
	require.NoError(t, err)
	test, err := w.Test()
	require.NoError(t, err)

	records, err := CollectForecasts(context.Background(), lastInput{labelWidth: 2}, test, spec, w.Columns())
	require.NoError(t, err)
	require.Len(t, records, 6)
	assert.Equal(t, ForecastRecord{Window: 1, Step: 3, Column: "a", Observed: 5, Predicted: 4}, records[2])
	assert.Equal(t, ForecastRecord{Window: 1, Step: 4, Column: "a", Observed: 6, Predicted: 4}, records[3])

	_, err = CollectForecasts(context.Background(), lastInput{labelWidth: 1}, test, spec, w.Columns())
	assert.Error(t, err)
	_, err = CollectForecasts(context.Background(), lastInput{labelWidth: 2}, test, spec, []string{"a", "b"})
	assert.Error(t, err)
}

func TestWriteFiles(t *testing.T) {
	dir := t.TempDir()

	historyPath := filepath.Join(dir, "history.json")
	require.NoError(t, WriteHistoryFile(context.Background(), historyPath, "json", sampleHistory(), DefaultOptions()))
	data, err := os.ReadFile(historyPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), `{"export_info":`))

	forecastPath := filepath.Join(dir, "forecasts.csv")
	require.NoError(t, WriteForecastFile(context.Background(), forecastPath, "csv", []ForecastRecord{{Column: "a"}}, DefaultOptions()))
	data, err = os.ReadFile(forecastPath)
	require.NoError(t, err)
	assert.Equal(t, "window,step,column,observed,predicted,error\n0,0,a,0,0,0\n", string(data))

	assert.Error(t, WriteHistoryFile(context.Background(), filepath.Join(dir, "missing", "h.csv"), "csv", sampleHistory(), DefaultOptions()))
}

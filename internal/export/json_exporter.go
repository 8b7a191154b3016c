package export

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"time"

	"github.com/inferloop/tsforecast/internal/training"
	"github.com/inferloop/tsforecast/pkg/constants"
)

// JSONExporter writes a single document wrapping the records with export metadata
type JSONExporter struct{}

// Name returns the exporter name
func (je *JSONExporter) Name() string {
	return "json"
}

// JSONExportInfo contains metadata about the export
type JSONExportInfo struct {
	Timestamp  time.Time `json:"timestamp"`
	Format     string    `json:"format"`
	Records    int       `json:"records"`
	ExportedBy string    `json:"exported_by"`
	Version    string    `json:"version"`
}

// JSONHistory is the exported form of a training run. Non-finite losses become null.
type JSONHistory struct {
	ExportInfo     JSONExportInfo `json:"export_info"`
	RunID          string         `json:"run_id"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
	BestEpoch      int            `json:"best_epoch"`
	BestValLoss    *float64       `json:"best_val_loss"`
	StoppedEarly   bool           `json:"stopped_early"`
	CheckpointPath string         `json:"checkpoint_path"`
	MirrorKey      string         `json:"mirror_key,omitempty"`
	Epochs         []JSONEpoch    `json:"epochs"`
}

type JSONEpoch struct {
	Epoch           int      `json:"epoch"`
	TrainLoss       *float64 `json:"train_loss"`
	TrainMAE        *float64 `json:"train_mae"`
	ValLoss         *float64 `json:"val_loss"`
	ValMAE          *float64 `json:"val_mae"`
	Improved        bool     `json:"improved"`
	DurationSeconds float64  `json:"duration_seconds"`
}

type JSONForecasts struct {
	ExportInfo JSONExportInfo     `json:"export_info"`
	Forecasts  []JSONForecastStep `json:"forecasts"`
}

type JSONForecastStep struct {
	Window    int      `json:"window"`
	Step      int      `json:"step"`
	Column    string   `json:"column"`
	Observed  *float64 `json:"observed"`
	Predicted *float64 `json:"predicted"`
}

// ExportHistory writes history as one JSON document
func (je *JSONExporter) ExportHistory(ctx context.Context, writer io.Writer, history *training.History, options Options) error {
	doc := JSONHistory{
		ExportInfo:     je.info(len(history.Epochs)),
		RunID:          history.RunID,
		StartedAt:      history.StartedAt,
		FinishedAt:     history.FinishedAt,
		BestEpoch:      history.BestEpoch,
		BestValLoss:    je.formatValue(history.BestValLoss, options.Precision),
		StoppedEarly:   history.StoppedEarly,
		CheckpointPath: history.CheckpointPath,
		MirrorKey:      history.MirrorKey,
		Epochs:         make([]JSONEpoch, len(history.Epochs)),
	}

	for i, e := range history.Epochs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		doc.Epochs[i] = JSONEpoch{
			Epoch:           e.Epoch,
			TrainLoss:       je.formatValue(e.Train.Loss, options.Precision),
			TrainMAE:        je.formatValue(e.Train.MAE, options.Precision),
			ValLoss:         je.formatValue(e.Val.Loss, options.Precision),
			ValMAE:          je.formatValue(e.Val.MAE, options.Precision),
			Improved:        e.Improved,
			DurationSeconds: e.Duration.Seconds(),
		}
	}

	return je.encode(writer, doc, options)
}

// ExportForecasts writes forecast records as one JSON document
func (je *JSONExporter) ExportForecasts(ctx context.Context, writer io.Writer, records []ForecastRecord, options Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := JSONForecasts{
		ExportInfo: je.info(len(records)),
		Forecasts:  make([]JSONForecastStep, len(records)),
	}
	for i, r := range records {
		doc.Forecasts[i] = JSONForecastStep{
			Window:    r.Window,
			Step:      r.Step,
			Column:    r.Column,
			Observed:  je.formatValue(r.Observed, options.Precision),
			Predicted: je.formatValue(r.Predicted, options.Precision),
		}
	}

	return je.encode(writer, doc, options)
}

func (je *JSONExporter) info(records int) JSONExportInfo {
	return JSONExportInfo{
		Timestamp:  time.Now().UTC(),
		Format:     constants.OutputFormatJSON,
		Records:    records,
		ExportedBy: constants.AppName,
		Version:    constants.AppVersion,
	}
}

func (je *JSONExporter) encode(writer io.Writer, doc interface{}, options Options) error {
	encoder := json.NewEncoder(writer)
	if options.Pretty {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(doc)
}

// formatValue rounds to precision and maps NaN and Inf to nil, which JSON cannot carry.
func (je *JSONExporter) formatValue(value float64, precision int) *float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil
	}
	if precision >= 0 {
		multiplier := math.Pow(10, float64(precision))
		value = math.Round(value*multiplier) / multiplier
	}
	return &value
}

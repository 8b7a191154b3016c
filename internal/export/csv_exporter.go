package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/inferloop/tsforecast/internal/training"
)

// CSVExporter writes one row per epoch or per forecast step
type CSVExporter struct{}

// Name returns the exporter name
func (ce *CSVExporter) Name() string {
	return "csv"
}

// ExportHistory writes the per-epoch metrics of history
func (ce *CSVExporter) ExportHistory(ctx context.Context, writer io.Writer, history *training.History, options Options) error {
	csvWriter, err := ce.newWriter(writer, options)
	if err != nil {
		return err
	}

	if options.IncludeHeaders {
		headers := []string{
			"run_id",
			"epoch",
			"train_loss",
			"train_mae",
			"val_loss",
			"val_mae",
			"improved",
			"best",
			"duration_seconds",
			"finished_at",
		}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	finished := ""
	if !history.FinishedAt.IsZero() {
		finished = ce.formatTime(history.FinishedAt, options)
	}

	for _, e := range history.Epochs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		row := []string{
			history.RunID,
			strconv.Itoa(e.Epoch),
			ce.formatValue(e.Train.Loss, options.Precision),
			ce.formatValue(e.Train.MAE, options.Precision),
			ce.formatValue(e.Val.Loss, options.Precision),
			ce.formatValue(e.Val.MAE, options.Precision),
			strconv.FormatBool(e.Improved),
			strconv.FormatBool(e.Epoch == history.BestEpoch),
			strconv.FormatFloat(e.Duration.Seconds(), 'f', 3, 64),
			finished,
		}
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// ExportForecasts writes observed and predicted values per window step
func (ce *CSVExporter) ExportForecasts(ctx context.Context, writer io.Writer, records []ForecastRecord, options Options) error {
	csvWriter, err := ce.newWriter(writer, options)
	if err != nil {
		return err
	}

	if options.IncludeHeaders {
		if err := csvWriter.Write([]string{"window", "step", "column", "observed", "predicted", "error"}); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for i, r := range records {
		if i%1024 == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		row := []string{
			strconv.Itoa(r.Window),
			strconv.Itoa(r.Step),
			r.Column,
			ce.formatValue(r.Observed, options.Precision),
			ce.formatValue(r.Predicted, options.Precision),
			ce.formatValue(r.Predicted-r.Observed, options.Precision),
		}
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

func (ce *CSVExporter) newWriter(writer io.Writer, options Options) (*csv.Writer, error) {
	delimiter := options.Delimiter
	if delimiter == "" {
		delimiter = ","
	}
	if len(delimiter) != 1 {
		return nil, fmt.Errorf("CSV delimiter must be a single character")
	}

	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rune(delimiter[0])
	return csvWriter, nil
}

func (ce *CSVExporter) formatTime(t time.Time, options Options) string {
	format := options.DateFormat
	if format == "" {
		format = time.RFC3339
	}
	return t.Format(format)
}

func (ce *CSVExporter) formatValue(value float64, precision int) string {
	if precision < 0 {
		return strconv.FormatFloat(value, 'g', -1, 64)
	}
	return strconv.FormatFloat(value, 'f', precision, 64)
}

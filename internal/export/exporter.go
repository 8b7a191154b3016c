package export

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/inferloop/tsforecast/internal/training"
	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
)

// Options controls how records are rendered.
type Options struct {
	IncludeHeaders bool   `json:"include_headers"`
	DateFormat     string `json:"date_format"` // default time.RFC3339
	Precision      int    `json:"precision"`   // digits after the point, -1 keeps full precision
	Delimiter      string `json:"delimiter"`   // CSV only, default ","
	Pretty         bool   `json:"pretty"`      // JSON only
}

// DefaultOptions returns headers on, full precision, RFC3339 timestamps.
func DefaultOptions() Options {
	return Options{
		IncludeHeaders: true,
		Precision:      -1,
		Delimiter:      ",",
	}
}

// ForecastRecord is one predicted step of one evaluation window.
type ForecastRecord struct {
	Window    int     `json:"window"`
	Step      int     `json:"step"` // absolute step index within the window
	Column    string  `json:"column"`
	Observed  float64 `json:"observed"`
	Predicted float64 `json:"predicted"`
}

// Exporter writes training artefacts in one output format.
type Exporter interface {
	Name() string
	ExportHistory(ctx context.Context, w io.Writer, history *training.History, options Options) error
	ExportForecasts(ctx context.Context, w io.Writer, records []ForecastRecord, options Options) error
}

// New returns the exporter for format.
func New(format string) (Exporter, error) {
	switch format {
	case constants.OutputFormatCSV:
		return &CSVExporter{}, nil
	case constants.OutputFormatJSON:
		return &JSONExporter{}, nil
	default:
		return nil, errors.NewValidationError(errors.CodeInvalidInput,
			fmt.Sprintf("unsupported output format %q", format))
	}
}

// WriteHistoryFile exports history to path in the given format.
func WriteHistoryFile(ctx context.Context, path, format string, history *training.History, options Options) error {
	exporter, err := New(format)
	if err != nil {
		return err
	}
	return writeFile(path, func(w io.Writer) error {
		return exporter.ExportHistory(ctx, w, history, options)
	})
}

// WriteForecastFile exports forecast records to path in the given format.
func WriteForecastFile(ctx context.Context, path, format string, records []ForecastRecord, options Options) error {
	exporter, err := New(format)
	if err != nil {
		return err
	}
	return writeFile(path, func(w io.Writer) error {
		return exporter.ExportForecasts(ctx, w, records, options)
	})
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError,
			fmt.Sprintf("failed to create %s", path))
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError,
			fmt.Sprintf("failed to close %s", path))
	}
	return nil
}

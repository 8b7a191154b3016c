package file

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/internal/storage/tabular"
	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/models"
)

const backendName = "csv"

// CSVConfig contains configuration for CSV table sources
type CSVConfig struct {
	Path       string   `json:"path" yaml:"path"`
	Delimiter  string   `json:"delimiter" yaml:"delimiter"`     // single character, default ","
	TimeColumn string   `json:"time_column" yaml:"time_column"` // parsed into timestamps, excluded from features
	Columns    []string `json:"columns" yaml:"columns"`         // feature subset in order, default every non-time column
}

// CSVSource reads a table from a CSV file with a header row.
type CSVSource struct {
	config *CSVConfig
	logger *logrus.Logger
}

// NewCSVSource creates a CSV table source
func NewCSVSource(config *CSVConfig, logger *logrus.Logger) (*CSVSource, error) {
	if config == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, "CSVConfig cannot be nil")
	}
	if config.Path == "" {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, "CSV path is required")
	}
	if config.Delimiter == "" {
		config.Delimiter = ","
	}
	if utf8.RuneCountInString(config.Delimiter) != 1 {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, "CSV delimiter must be a single character")
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &CSVSource{config: config, logger: logger}, nil
}

// Name implements interfaces.TableSource.
func (s *CSVSource) Name() string { return backendName }

// Load reads the whole file.
func (s *CSVSource) Load(ctx context.Context) (*models.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.config.Path)
	if err != nil {
		return nil, errors.WrapStorageError(err, backendName, errors.OpConnect,
			fmt.Sprintf("failed to open %s", s.config.Path))
	}
	defer f.Close()

	table, err := ReadCSV(f, s.config)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"path":    s.config.Path,
		"rows":    table.Len(),
		"columns": table.Columns,
	}).Info("Loaded CSV table")

	return table, nil
}

// Close implements interfaces.TableSource.
func (s *CSVSource) Close() error { return nil }

// ReadCSV parses a header row followed by numeric rows.
func ReadCSV(r io.Reader, config *CSVConfig) (*models.Table, error) {
	reader := csv.NewReader(r)
	reader.Comma, _ = utf8.DecodeRuneInString(config.Delimiter)
	if config.Delimiter == "" {
		reader.Comma = ','
	}
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.WrapStorageError(err, backendName, errors.OpDecode, "failed to read CSV header")
	}

	position := make(map[string]int, len(header))
	for i, name := range header {
		position[name] = i
	}

	timeCol := -1
	if config.TimeColumn != "" {
		idx, ok := position[config.TimeColumn]
		if !ok {
			return nil, errors.UndefinedColumn(config.TimeColumn)
		}
		timeCol = idx
	}

	columns := config.Columns
	if len(columns) == 0 {
		columns = make([]string, 0, len(header))
		for i, name := range header {
			if i != timeCol {
				columns = append(columns, name)
			}
		}
	}
	gather := make([]int, len(columns))
	for i, name := range columns {
		idx, ok := position[name]
		if !ok {
			return nil, errors.UndefinedColumn(name)
		}
		gather[i] = idx
	}

	builder := tabular.NewBuilder(columns, timeCol >= 0)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WrapStorageError(err, backendName, errors.OpDecode,
				fmt.Sprintf("failed to read CSV line %d", line))
		}

		values := make([]float64, len(gather))
		for i, idx := range gather {
			v, err := tabular.ParseValue(columns[i], line, record[idx])
			if err != nil {
				return nil, err
			}
			values[i] = v
		}

		var ts time.Time
		if timeCol >= 0 {
			ts, err = tabular.ParseTime(record[timeCol])
			if err != nil {
				return nil, errors.WrapStorageError(err, backendName, errors.OpDecode,
					fmt.Sprintf("bad timestamp on CSV line %d", line))
			}
		}
		if err := builder.Append(ts, values); err != nil {
			return nil, err
		}
	}

	return builder.Table()
}

// Package tabular converts backend records into models.Table rows.
package tabular

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/models"
)

// TimeLayouts are tried in order when parsing timestamps from text.
var TimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02.01.2006 15:04:05",
	"2006-01-02",
}

// Builder accumulates rows for a fixed column list.
type Builder struct {
	columns    []string
	rows       [][]float64
	timestamps []time.Time
	timed      bool
}

// NewBuilder starts a table with the given columns. timed tables carry one timestamp per row.
func NewBuilder(columns []string, timed bool) *Builder {
	return &Builder{columns: columns, timed: timed}
}

// Append adds one row. ts is ignored for untimed builders.
func (b *Builder) Append(ts time.Time, values []float64) error {
	if len(values) != len(b.columns) {
		return errors.WrapError(errors.ErrInvalidTable, errors.ErrorTypeValidation, errors.CodeInvalidTable,
			fmt.Sprintf("row %d has %d values, expected %d", len(b.rows), len(values), len(b.columns)))
	}
	b.rows = append(b.rows, values)
	if b.timed {
		b.timestamps = append(b.timestamps, ts)
	}
	return nil
}

// Len returns the number of rows appended so far.
func (b *Builder) Len() int {
	return len(b.rows)
}

// Table validates and returns the accumulated table.
func (b *Builder) Table() (*models.Table, error) {
	if len(b.rows) == 0 {
		return nil, errors.WrapError(errors.ErrInvalidTable, errors.ErrorTypeValidation, errors.CodeInvalidTable,
			"source returned no rows")
	}
	t := &models.Table{Columns: b.columns, Rows: b.rows}
	if b.timed {
		t.Timestamps = b.timestamps
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// ParseTime parses s with the first matching layout in TimeLayouts.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range TimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// ParseValue parses one numeric cell, naming the column and row on failure.
func ParseValue(column string, row int, s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeInvalidInput,
			fmt.Sprintf("column %q row %d: %q is not numeric", column, row, s))
	}
	return v, nil
}

// ToFloat converts a decoded backend value to float64.
func ToFloat(column string, row int, v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return ParseValue(column, row, string(x))
	case string:
		return ParseValue(column, row, x)
	case nil:
		return 0, errors.WrapError(errors.ErrInvalidTable, errors.ErrorTypeValidation, errors.CodeInvalidInput,
			fmt.Sprintf("column %q row %d is null", column, row))
	default:
		return 0, errors.NewValidationError(errors.CodeInvalidInput,
			fmt.Sprintf("column %q row %d has unsupported type %T", column, row, v))
	}
}

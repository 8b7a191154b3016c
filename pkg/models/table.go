package models

import (
	"fmt"
	"math"
	"time"

	"github.com/inferloop/tsforecast/pkg/errors"
)

// Table is an ordered sequence of time steps, each a fixed-size vector of named numeric features.
type Table struct {
	Columns    []string    `json:"columns"`
	Rows       [][]float64 `json:"rows"`
	Timestamps []time.Time `json:"timestamps,omitempty"` // optional, parallel to Rows
}

// NewTable validates and builds a table. Rows are kept, not copied.
func NewTable(columns []string, rows [][]float64) (*Table, error) {
	t := &Table{Columns: columns, Rows: rows}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks column names and row widths.
func (t *Table) Validate() error {
	if len(t.Columns) == 0 {
		return errors.WrapError(errors.ErrInvalidTable, errors.ErrorTypeValidation, errors.CodeInvalidTable,
			"table has no columns")
	}

	seen := make(map[string]struct{}, len(t.Columns))
	for _, name := range t.Columns {
		if name == "" {
			return errors.WrapError(errors.ErrInvalidTable, errors.ErrorTypeValidation, errors.CodeInvalidTable,
				"table has an empty column name")
		}
		if _, dup := seen[name]; dup {
			return errors.WrapError(errors.ErrInvalidTable, errors.ErrorTypeValidation, errors.CodeDuplicateColumn,
				fmt.Sprintf("duplicate column %q", name))
		}
		seen[name] = struct{}{}
	}

	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return errors.WrapError(errors.ErrInvalidTable, errors.ErrorTypeValidation, errors.CodeInvalidTable,
				fmt.Sprintf("row %d has %d values, expected %d", i, len(row), len(t.Columns)))
		}
	}

	if t.Timestamps != nil && len(t.Timestamps) != len(t.Rows) {
		return errors.WrapError(errors.ErrInvalidTable, errors.ErrorTypeValidation, errors.CodeInvalidTable,
			fmt.Sprintf("%d timestamps for %d rows", len(t.Timestamps), len(t.Rows)))
	}

	return nil
}

// Len returns the number of time steps.
func (t *Table) Len() int {
	return len(t.Rows)
}

// NumColumns returns the feature count.
func (t *Table) NumColumns() int {
	return len(t.Columns)
}

// ColumnIndex maps column name to position.
func (t *Table) ColumnIndex() map[string]int {
	index := make(map[string]int, len(t.Columns))
	for i, name := range t.Columns {
		index[name] = i
	}
	return index
}

// Column returns a copy of the named column.
func (t *Table) Column(name string) ([]float64, error) {
	idx, ok := t.ColumnIndex()[name]
	if !ok {
		return nil, errors.UndefinedColumn(name)
	}
	out := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// SameColumns reports whether both tables carry identical column names in identical order.
func (t *Table) SameColumns(other *Table) bool {
	if other == nil || len(t.Columns) != len(other.Columns) {
		return false
	}
	for i := range t.Columns {
		if t.Columns[i] != other.Columns[i] {
			return false
		}
	}
	return true
}

// Slice returns rows [start, end) sharing the underlying row storage.
func (t *Table) Slice(start, end int) *Table {
	if start < 0 {
		start = 0
	}
	if end > len(t.Rows) {
		end = len(t.Rows)
	}
	if start > end {
		start = end
	}

	out := &Table{
		Columns: t.Columns,
		Rows:    t.Rows[start:end],
	}
	if t.Timestamps != nil {
		out.Timestamps = t.Timestamps[start:end]
	}
	return out
}

// Split cuts the table chronologically into train, validation and test parts.
// The test part receives everything after trainFrac+valFrac.
func (t *Table) Split(trainFrac, valFrac float64) (train, val, test *Table, err error) {
	if trainFrac <= 0 || valFrac <= 0 || trainFrac+valFrac >= 1 {
		return nil, nil, nil, errors.NewValidationError(errors.CodeOutOfRange,
			fmt.Sprintf("split fractions train=%.3f val=%.3f must be positive and sum below 1", trainFrac, valFrac))
	}

	n := t.Len()
	trainEnd := fractionOf(n, trainFrac)
	valEnd := trainEnd + fractionOf(n, valFrac)
	if trainEnd == 0 || valEnd == trainEnd || valEnd == n {
		return nil, nil, nil, errors.WrapError(errors.ErrInsufficientRows, errors.ErrorTypeValidation,
			errors.CodeInsufficientRows, fmt.Sprintf("%d rows leave an empty split", n))
	}

	return t.Slice(0, trainEnd), t.Slice(trainEnd, valEnd), t.Slice(valEnd, n), nil
}

// fractionOf truncates n*frac, ignoring float noise such as 100*0.7 = 69.99999999999999.
func fractionOf(n int, frac float64) int {
	return int(math.Floor(float64(n)*frac + 1e-9))
}

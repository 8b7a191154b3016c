package tabular

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/models"
)

// ScanRows reads every row of a query result into a table. The column named timeColumn, when
// non-empty, becomes the timestamps; every other result column becomes a feature.
func ScanRows(rows *sql.Rows, timeColumn string) (*models.Table, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	timeIdx := -1
	features := make([]string, 0, len(names))
	for i, name := range names {
		if timeColumn != "" && name == timeColumn {
			timeIdx = i
			continue
		}
		features = append(features, name)
	}
	if timeColumn != "" && timeIdx < 0 {
		return nil, errors.UndefinedColumn(timeColumn)
	}

	builder := NewBuilder(features, timeIdx >= 0)
	raw := make([]interface{}, len(names))
	dest := make([]interface{}, len(names))
	for i := range raw {
		dest[i] = &raw[i]
	}

	for row := 1; rows.Next(); row++ {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		values := make([]float64, 0, len(features))
		var ts time.Time
		for i, v := range raw {
			if i == timeIdx {
				if ts, err = ToTime(v); err != nil {
					return nil, errors.NewValidationError(errors.CodeInvalidInput,
						fmt.Sprintf("row %d: %v", row, err))
				}
				continue
			}
			f, err := ToFloat(names[i], row, v)
			if err != nil {
				return nil, err
			}
			values = append(values, f)
		}
		if err := builder.Append(ts, values); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return builder.Table()
}

// ToTime converts a decoded timestamp value. Integers are unix seconds.
func ToTime(v interface{}) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		return ParseTime(x)
	case []byte:
		return ParseTime(string(x))
	case int64:
		return time.Unix(x, 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

package file

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/tsforecast/pkg/errors"
)

const climateCSV = `Date Time,p (mbar),T (degC),rh (%)
01.01.2009 00:10:00,996.52,-8.02,93.3
01.01.2009 00:20:00,996.57,-8.41,93.4
01.01.2009 00:30:00,996.53,-8.51,93.9
`

func TestReadCSVWithTimeColumn(t *testing.T) {
	table, err := ReadCSV(strings.NewReader(climateCSV), &CSVConfig{TimeColumn: "Date Time"})
	require.NoError(t, err)

	assert.Equal(t, []string{"p (mbar)", "T (degC)", "rh (%)"}, table.Columns)
	assert.Equal(t, 3, table.Len())
	assert.Equal(t, []float64{996.57, -8.41, 93.4}, table.Rows[1])
	require.Len(t, table.Timestamps, 3)
	assert.Equal(t, time.Date(2009, 1, 1, 0, 30, 0, 0, time.UTC), table.Timestamps[2])
}

func TestReadCSVColumnSubsetOrder(t *testing.T) {
	table, err := ReadCSV(strings.NewReader(climateCSV), &CSVConfig{
		TimeColumn: "Date Time",
		Columns:    []string{"rh (%)", "T (degC)"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"rh (%)", "T (degC)"}, table.Columns)
	assert.Equal(t, []float64{93.3, -8.02}, table.Rows[0])
}

func TestReadCSVWithoutTimeColumn(t *testing.T) {
	table, err := ReadCSV(strings.NewReader("a;b\n1;2\n3;4\n"), &CSVConfig{Delimiter: ";"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, table.Columns)
	assert.Nil(t, table.Timestamps)
	assert.Equal(t, [][]float64{{1, 2}, {3, 4}}, table.Rows)
}

func TestReadCSVErrors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("a,b\n1,x\n"), &CSVConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `column "b" row 2`)

	_, err = ReadCSV(strings.NewReader("a,b\n1,2\n"), &CSVConfig{Columns: []string{"temp"}})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrUndefinedColumn))

	_, err = ReadCSV(strings.NewReader("a,b\n1,2\n3\n"), &CSVConfig{})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrStorageReadFailed))

	_, err = ReadCSV(strings.NewReader("a,b\n"), &CSVConfig{})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidTable))

	_, err = ReadCSV(strings.NewReader("t,a\nyesterday,1\n"), &CSVConfig{TimeColumn: "t"})
	require.Error(t, err)
}

func TestCSVSourceLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "series.csv")
	require.NoError(t, os.WriteFile(path, []byte(climateCSV), 0o644))

	source, err := NewCSVSource(&CSVConfig{Path: path, TimeColumn: "Date Time"}, logrus.New())
	require.NoError(t, err)
	defer source.Close()

	table, err := source.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len())
	assert.Equal(t, "csv", source.Name())

	missing, err := NewCSVSource(&CSVConfig{Path: filepath.Join(t.TempDir(), "none.csv")}, nil)
	require.NoError(t, err)
	_, err = missing.Load(context.Background())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrStorageConnectionFailed))
}

func TestNewCSVSourceValidation(t *testing.T) {
	_, err := NewCSVSource(nil, nil)
	assert.Error(t, err)
	_, err = NewCSVSource(&CSVConfig{}, nil)
	assert.Error(t, err)
	_, err = NewCSVSource(&CSVConfig{Path: "x.csv", Delimiter: ";;"}, nil)
	assert.Error(t, err)
}

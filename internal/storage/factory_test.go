package storage

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/tsforecast/internal/config"
	"github.com/inferloop/tsforecast/internal/storage/interfaces"
	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/models"
)

func TestFactorySupportedTypes(t *testing.T) {
	f := NewFactory(logrus.New())
	assert.Equal(t, []string{"csv", "influxdb", "postgres", "redis", "sqlite"}, f.GetSupportedTypes())
	assert.True(t, f.IsSupported(constants.SourceTypeSQLite))
	assert.False(t, f.IsSupported("parquet"))
}

func TestFactoryUnsupportedType(t *testing.T) {
	_, err := NewFactory(nil).CreateSource(config.SourceConfig{Type: "parquet"})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrUnsupportedSource))
}

func TestFactoryCreatesEachSource(t *testing.T) {
	tests := []struct {
		cfg  config.SourceConfig
		name string
	}{
		{config.SourceConfig{Type: "csv", Path: "jena.csv"}, "csv"},
		{config.SourceConfig{Type: "postgres", Table: "weather", TimeColumn: "ts", Start: "2016-01-01T00:00:00Z"}, "postgres"},
		{config.SourceConfig{Type: "sqlite", Path: "w.db", Table: "weather", TimeColumn: "ts"}, "sqlite"},
		{config.SourceConfig{Type: "influxdb", URL: "http://localhost:8086", Bucket: "b", Measurement: "m", Columns: []string{"t"}}, "influxdb"},
		{config.SourceConfig{Type: "redis", Addr: "localhost:6379", Stream: "s", Columns: []string{"t"}}, "redis"},
	}

	f := NewFactory(logrus.New())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source, err := f.CreateSource(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.name, source.Name())
			assert.NoError(t, source.Close())
		})
	}
}

func TestFactoryRejectsIncompleteConfig(t *testing.T) {
	f := NewFactory(logrus.New())

	_, err := f.CreateSource(config.SourceConfig{Type: "sqlite", Path: "w.db"})
	assert.Error(t, err)

	_, err = f.CreateSource(config.SourceConfig{Type: "postgres", Table: "weather", TimeColumn: "ts", End: "yesterday"})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration))
}

type staticSource struct{ table *models.Table }

func (s staticSource) Load(context.Context) (*models.Table, error) { return s.table, nil }
func (s staticSource) Name() string                                { return "static" }
func (s staticSource) Close() error                                { return nil }

func TestFactoryRegisterSource(t *testing.T) {
	f := NewFactory(logrus.New())
	assert.Error(t, f.RegisterSource("", nil))
	assert.Error(t, f.RegisterSource("static", nil))

	table, err := models.NewTable([]string{"a"}, [][]float64{{1}, {2}})
	require.NoError(t, err)
	require.NoError(t, f.RegisterSource("static", func(config.SourceConfig, *logrus.Logger) (interfaces.TableSource, error) {
		return staticSource{table: table}, nil
	}))

	source, err := f.CreateSource(config.SourceConfig{Type: "static"})
	require.NoError(t, err)
	loaded, err := source.Load(context.Background())
	require.NoError(t, err)
	assert.Same(t, table, loaded)
}

func TestFactoryLoadsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("Date Time,a,b\n2016-01-01 00:00:00,1,2\n2016-01-01 01:00:00,3,4\n"), 0o644))

	source, err := NewFactory(logrus.New()).CreateSource(config.SourceConfig{
		Type: "csv", Path: path, TimeColumn: "Date Time",
	})
	require.NoError(t, err)

	table, err := source.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, table.Columns)
	assert.Equal(t, [][]float64{{1, 2}, {3, 4}}, table.Rows)
}

func TestNewMirror(t *testing.T) {
	mirror, err := NewMirror(config.MirrorConfig{}, logrus.New())
	require.NoError(t, err)
	assert.Nil(t, mirror)

	_, err = NewMirror(config.MirrorConfig{Enabled: true}, logrus.New())
	assert.Error(t, err)

	mirror, err = NewMirror(config.MirrorConfig{Enabled: true, Bucket: "models", Prefix: "runs"}, logrus.New())
	require.NoError(t, err)
	assert.Equal(t, "runs/checkpoints/m.ckpt", mirror.Key("/tmp/m.ckpt"))
}

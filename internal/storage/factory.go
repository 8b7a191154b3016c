package storage

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/internal/config"
	"github.com/inferloop/tsforecast/internal/storage/implementations/file"
	"github.com/inferloop/tsforecast/internal/storage/implementations/influxdb"
	"github.com/inferloop/tsforecast/internal/storage/implementations/redis"
	"github.com/inferloop/tsforecast/internal/storage/implementations/s3"
	"github.com/inferloop/tsforecast/internal/storage/implementations/sqlite"
	"github.com/inferloop/tsforecast/internal/storage/implementations/timescaledb"
	"github.com/inferloop/tsforecast/internal/storage/interfaces"
	"github.com/inferloop/tsforecast/internal/storage/tabular"
	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
)

// SourceCreateFunc builds a table source from the source section of the configuration.
type SourceCreateFunc func(cfg config.SourceConfig, logger *logrus.Logger) (interfaces.TableSource, error)

// Factory maps source types to their constructors
type Factory struct {
	creators map[string]SourceCreateFunc
	mu       sync.RWMutex
	logger   *logrus.Logger
}

// NewFactory creates a factory with every built-in source type registered
func NewFactory(logger *logrus.Logger) *Factory {
	if logger == nil {
		logger = logrus.New()
	}

	factory := &Factory{
		creators: make(map[string]SourceCreateFunc),
		logger:   logger,
	}

	factory.registerDefaults()

	return factory
}

// CreateSource builds the source named by cfg.Type
func (f *Factory) CreateSource(cfg config.SourceConfig) (interfaces.TableSource, error) {
	f.mu.RLock()
	createFunc, exists := f.creators[cfg.Type]
	f.mu.RUnlock()

	if !exists {
		return nil, errors.UnsupportedSource(cfg.Type)
	}

	source, err := createFunc(cfg, f.logger)
	if err != nil {
		return nil, err
	}

	f.logger.WithFields(logrus.Fields{
		"source_type": cfg.Type,
	}).Debug("Created table source")

	return source, nil
}

// GetSupportedTypes returns the registered source types, sorted
func (f *Factory) GetSupportedTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]string, 0, len(f.creators))
	for sourceType := range f.creators {
		types = append(types, sourceType)
	}
	sort.Strings(types)

	return types
}

// RegisterSource registers or replaces a source type
func (f *Factory) RegisterSource(sourceType string, createFunc SourceCreateFunc) error {
	if sourceType == "" {
		return errors.NewValidationError(errors.CodeInvalidInput, "Source type cannot be empty")
	}

	if createFunc == nil {
		return errors.NewValidationError(errors.CodeInvalidInput, "Source create function cannot be nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.creators[sourceType] = createFunc

	return nil
}

// IsSupported checks if a source type is registered
func (f *Factory) IsSupported(sourceType string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	_, exists := f.creators[sourceType]
	return exists
}

func (f *Factory) registerDefaults() {
	f.RegisterSource(constants.SourceTypeCSV, func(cfg config.SourceConfig, logger *logrus.Logger) (interfaces.TableSource, error) {
		return file.NewCSVSource(&file.CSVConfig{
			Path:       cfg.Path,
			Delimiter:  cfg.Delimiter,
			TimeColumn: cfg.TimeColumn,
			Columns:    cfg.Columns,
		}, logger)
	})

	f.RegisterSource(constants.SourceTypePostgres, func(cfg config.SourceConfig, logger *logrus.Logger) (interfaces.TableSource, error) {
		start, err := optionalTime("source.start", cfg.Start)
		if err != nil {
			return nil, err
		}
		end, err := optionalTime("source.end", cfg.End)
		if err != nil {
			return nil, err
		}

		return timescaledb.NewSource(&timescaledb.Config{
			Host:           cfg.Host,
			Port:           cfg.Port,
			Database:       cfg.Database,
			Username:       cfg.Username,
			Password:       cfg.Password,
			SSLMode:        cfg.SSLMode,
			ConnectTimeout: cfg.Timeout,
			Table:          cfg.Table,
			TimeColumn:     cfg.TimeColumn,
			Columns:        cfg.Columns,
			Start:          start,
			End:            end,
			Limit:          cfg.Limit,
		}, logger)
	})

	f.RegisterSource(constants.SourceTypeSQLite, func(cfg config.SourceConfig, logger *logrus.Logger) (interfaces.TableSource, error) {
		return sqlite.NewSource(&sqlite.Config{
			Path:       cfg.Path,
			Table:      cfg.Table,
			TimeColumn: cfg.TimeColumn,
			Columns:    cfg.Columns,
			Start:      cfg.Start,
			End:        cfg.End,
			Limit:      cfg.Limit,
		}, logger)
	})

	f.RegisterSource(constants.SourceTypeInfluxDB, func(cfg config.SourceConfig, logger *logrus.Logger) (interfaces.TableSource, error) {
		return influxdb.NewSource(&influxdb.Config{
			URL:          cfg.URL,
			Token:        cfg.Token,
			Organization: cfg.Organization,
			Bucket:       cfg.Bucket,
			Measurement:  cfg.Measurement,
			Fields:       cfg.Columns,
			Start:        cfg.Start,
			Stop:         cfg.End,
			Limit:        cfg.Limit,
		}, logger)
	})

	f.RegisterSource(constants.SourceTypeRedis, func(cfg config.SourceConfig, logger *logrus.Logger) (interfaces.TableSource, error) {
		return redis.NewStreamSource(&redis.StreamConfig{
			Addr:        cfg.Addr,
			Password:    cfg.Password,
			DB:          cfg.DB,
			ReadTimeout: cfg.Timeout,
			Stream:      cfg.Stream,
			Columns:     cfg.Columns,
			Start:       cfg.Start,
			End:         cfg.End,
			Count:       int64(cfg.Limit),
		}, logger)
	})
}

// NewMirror builds the S3 checkpoint mirror, or returns nil when the mirror is disabled.
func NewMirror(cfg config.MirrorConfig, logger *logrus.Logger) (*s3.CheckpointMirror, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return s3.NewCheckpointMirror(&s3.Config{
		Region:          cfg.Region,
		Bucket:          cfg.Bucket,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		Endpoint:        cfg.Endpoint,
		ForcePathStyle:  cfg.ForcePathStyle,
		DisableSSL:      cfg.DisableSSL,
		Prefix:          cfg.Prefix,
		Timeout:         cfg.Timeout,
		MaxRetries:      cfg.MaxRetries,
	}, logger)
}

func optionalTime(key, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := tabular.ParseTime(value)
	if err != nil {
		return nil, errors.NewConfigurationError(errors.CodeInvalidConfig,
			fmt.Sprintf("%s %q is not a timestamp", key, value))
	}
	return &t, nil
}

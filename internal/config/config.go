package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/inferloop/tsforecast/internal/forecast"
	"github.com/inferloop/tsforecast/internal/training"
	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
)

// Config is the full tsforecast configuration.
type Config struct {
	Window   WindowConfig        `mapstructure:"window" yaml:"window"`
	Model    forecast.LSTMConfig `mapstructure:"model" yaml:"model"`
	Training training.Config     `mapstructure:"training" yaml:"training"`
	Source   SourceConfig        `mapstructure:"source" yaml:"source"`
	Mirror   MirrorConfig        `mapstructure:"mirror" yaml:"mirror"`
	Logging  LoggingConfig       `mapstructure:"logging" yaml:"logging"`
	Metrics  MetricsConfig       `mapstructure:"metrics" yaml:"metrics"`
	Server   ServerConfig        `mapstructure:"server" yaml:"server"`
}

// WindowConfig holds the window geometry and the chronological split.
type WindowConfig struct {
	InputWidth    int      `mapstructure:"input_width" yaml:"input_width"`
	LabelWidth    int      `mapstructure:"label_width" yaml:"label_width"`
	LabelColumns  []string `mapstructure:"label_columns" yaml:"label_columns"`
	TargetColumn  string   `mapstructure:"target_column" yaml:"target_column"` // plotted column
	BatchSize     int      `mapstructure:"batch_size" yaml:"batch_size"`
	Seed          int64    `mapstructure:"seed" yaml:"seed"`
	TrainFraction float64  `mapstructure:"train_fraction" yaml:"train_fraction"`
	ValFraction   float64  `mapstructure:"val_fraction" yaml:"val_fraction"`
}

// SourceConfig selects and parameterises the table source. Fields apply per Type.
type SourceConfig struct {
	Type       string   `mapstructure:"type" yaml:"type"`
	TimeColumn string   `mapstructure:"time_column" yaml:"time_column"`
	Columns    []string `mapstructure:"columns" yaml:"columns"`
	Start      string   `mapstructure:"start" yaml:"start,omitempty"`
	End        string   `mapstructure:"end" yaml:"end,omitempty"`
	Limit      int      `mapstructure:"limit" yaml:"limit,omitempty"`

	// csv, sqlite
	Path      string `mapstructure:"path" yaml:"path,omitempty"`
	Delimiter string `mapstructure:"delimiter" yaml:"delimiter,omitempty"`

	// postgres, sqlite
	Table    string `mapstructure:"table" yaml:"table,omitempty"`
	Host     string `mapstructure:"host" yaml:"host,omitempty"`
	Port     int    `mapstructure:"port" yaml:"port,omitempty"`
	Database string `mapstructure:"database" yaml:"database,omitempty"`
	Username string `mapstructure:"username" yaml:"username,omitempty"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	SSLMode  string `mapstructure:"ssl_mode" yaml:"ssl_mode,omitempty"`

	// influxdb
	URL          string `mapstructure:"url" yaml:"url,omitempty"`
	Token        string `mapstructure:"token" yaml:"token,omitempty"`
	Organization string `mapstructure:"organization" yaml:"organization,omitempty"`
	Bucket       string `mapstructure:"bucket" yaml:"bucket,omitempty"`
	Measurement  string `mapstructure:"measurement" yaml:"measurement,omitempty"`

	// redis
	Addr   string `mapstructure:"addr" yaml:"addr,omitempty"`
	DB     int    `mapstructure:"db" yaml:"db,omitempty"`
	Stream string `mapstructure:"stream" yaml:"stream,omitempty"`

	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// MirrorConfig configures the optional S3 checkpoint mirror.
type MirrorConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	Region          string        `mapstructure:"region" yaml:"region"`
	Bucket          string        `mapstructure:"bucket" yaml:"bucket"`
	AccessKeyID     string        `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string        `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
	Endpoint        string        `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	ForcePathStyle  bool          `mapstructure:"force_path_style" yaml:"force_path_style"`
	DisableSSL      bool          `mapstructure:"disable_ssl" yaml:"disable_ssl"`
	Prefix          string        `mapstructure:"prefix" yaml:"prefix"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries      int           `mapstructure:"max_retries" yaml:"max_retries"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// ServerConfig configures the inspection server started by serve.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	PlotRPS         float64       `mapstructure:"plot_rps" yaml:"plot_rps"`
	PlotBurst       int           `mapstructure:"plot_burst" yaml:"plot_burst"`
}

// Default returns the configuration used when no file or environment overrides a key.
func Default() *Config {
	return &Config{
		Window: WindowConfig{
			InputWidth:    constants.DefaultInputWidth,
			LabelWidth:    constants.DefaultLabelWidth,
			BatchSize:     constants.DefaultBatchSize,
			TrainFraction: constants.DefaultTrainFraction,
			ValFraction:   constants.DefaultValFraction,
		},
		Model: forecast.LSTMConfig{
			HiddenUnits:  constants.DefaultHiddenUnits,
			LearningRate: constants.DefaultLearningRate,
		},
		Training: training.DefaultConfig(),
		Source: SourceConfig{
			Type:      constants.SourceTypeCSV,
			Delimiter: ",",
			Timeout:   constants.DefaultStorageTimeout,
		},
		Mirror: MirrorConfig{
			Region:     constants.DefaultMirrorRegion,
			Prefix:     constants.DefaultMirrorPrefix,
			Timeout:    5 * time.Minute,
			MaxRetries: constants.DefaultMirrorRetries,
		},
		Logging: LoggingConfig{
			Level:  constants.LogLevelInfo,
			Format: constants.LogFormatText,
		},
		Metrics: MetricsConfig{
			Namespace: constants.MetricsNamespace,
		},
		Server: ServerConfig{
			Addr:            constants.DefaultServerAddr,
			ReadTimeout:     constants.DefaultReadTimeout,
			WriteTimeout:    constants.DefaultWriteTimeout,
			IdleTimeout:     constants.DefaultIdleTimeout,
			ShutdownTimeout: constants.DefaultShutdownTimeout,
			PlotRPS:         constants.DefaultPlotRPS,
			PlotBurst:       constants.DefaultPlotBurst,
		},
	}
}

// Load reads cfgFile, or ./tsforecast.yaml when cfgFile is empty and the file exists, then applies
// TSFORECAST_* environment overrides (TSFORECAST_WINDOW_INPUT_WIDTH overrides window.input_width).
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(constants.AppName)
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(constants.ConfigEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.WrapError(err, errors.ErrorTypeConfiguration, errors.CodeConfigLoad,
				"error reading config file")
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeConfiguration, errors.CodeConfigLoad,
			"error unmarshaling config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("window.input_width", d.Window.InputWidth)
	v.SetDefault("window.label_width", d.Window.LabelWidth)
	v.SetDefault("window.label_columns", d.Window.LabelColumns)
	v.SetDefault("window.target_column", d.Window.TargetColumn)
	v.SetDefault("window.batch_size", d.Window.BatchSize)
	v.SetDefault("window.seed", d.Window.Seed)
	v.SetDefault("window.train_fraction", d.Window.TrainFraction)
	v.SetDefault("window.val_fraction", d.Window.ValFraction)

	v.SetDefault("model.hidden_units", d.Model.HiddenUnits)
	v.SetDefault("model.learning_rate", d.Model.LearningRate)
	v.SetDefault("model.clip_norm", d.Model.ClipNorm)
	v.SetDefault("model.seed", d.Model.Seed)

	v.SetDefault("training.max_epochs", d.Training.MaxEpochs)
	v.SetDefault("training.patience", d.Training.Patience)
	v.SetDefault("training.min_delta", d.Training.MinDelta)
	v.SetDefault("training.checkpoint_dir", d.Training.CheckpointDir)

	v.SetDefault("source.type", d.Source.Type)
	v.SetDefault("source.time_column", d.Source.TimeColumn)
	v.SetDefault("source.columns", d.Source.Columns)
	v.SetDefault("source.start", d.Source.Start)
	v.SetDefault("source.end", d.Source.End)
	v.SetDefault("source.limit", d.Source.Limit)
	v.SetDefault("source.path", d.Source.Path)
	v.SetDefault("source.delimiter", d.Source.Delimiter)
	v.SetDefault("source.table", d.Source.Table)
	v.SetDefault("source.host", "localhost")
	v.SetDefault("source.port", 5432)
	v.SetDefault("source.database", d.Source.Database)
	v.SetDefault("source.username", d.Source.Username)
	v.SetDefault("source.password", d.Source.Password)
	v.SetDefault("source.ssl_mode", "prefer")
	v.SetDefault("source.url", d.Source.URL)
	v.SetDefault("source.token", d.Source.Token)
	v.SetDefault("source.organization", d.Source.Organization)
	v.SetDefault("source.bucket", d.Source.Bucket)
	v.SetDefault("source.measurement", d.Source.Measurement)
	v.SetDefault("source.addr", "localhost:6379")
	v.SetDefault("source.db", d.Source.DB)
	v.SetDefault("source.stream", d.Source.Stream)
	v.SetDefault("source.timeout", d.Source.Timeout)

	v.SetDefault("mirror.enabled", d.Mirror.Enabled)
	v.SetDefault("mirror.region", d.Mirror.Region)
	v.SetDefault("mirror.bucket", d.Mirror.Bucket)
	v.SetDefault("mirror.access_key_id", d.Mirror.AccessKeyID)
	v.SetDefault("mirror.secret_access_key", d.Mirror.SecretAccessKey)
	v.SetDefault("mirror.endpoint", d.Mirror.Endpoint)
	v.SetDefault("mirror.force_path_style", d.Mirror.ForcePathStyle)
	v.SetDefault("mirror.disable_ssl", d.Mirror.DisableSSL)
	v.SetDefault("mirror.prefix", d.Mirror.Prefix)
	v.SetDefault("mirror.timeout", d.Mirror.Timeout)
	v.SetDefault("mirror.max_retries", d.Mirror.MaxRetries)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.plot_rps", d.Server.PlotRPS)
	v.SetDefault("server.plot_burst", d.Server.PlotBurst)
}

// Validate rejects configurations no command could run with.
func (c *Config) Validate() error {
	switch {
	case c.Window.InputWidth <= 0 || c.Window.LabelWidth <= 0:
		return invalid("window.input_width and window.label_width must be positive, got %d and %d",
			c.Window.InputWidth, c.Window.LabelWidth)
	case c.Window.BatchSize < 0:
		return invalid("window.batch_size must not be negative, got %d", c.Window.BatchSize)
	case c.Window.TrainFraction <= 0 || c.Window.ValFraction <= 0 ||
		c.Window.TrainFraction+c.Window.ValFraction >= 1:
		return invalid("window.train_fraction %.3f and window.val_fraction %.3f must be positive and sum below 1",
			c.Window.TrainFraction, c.Window.ValFraction)
	case c.Model.HiddenUnits < 0 || c.Model.LearningRate < 0 || c.Model.ClipNorm < 0:
		return invalid("model.hidden_units, model.learning_rate and model.clip_norm must not be negative")
	case c.Training.MaxEpochs <= 0 || c.Training.Patience <= 0:
		return invalid("training.max_epochs and training.patience must be positive, got %d and %d",
			c.Training.MaxEpochs, c.Training.Patience)
	case c.Training.MinDelta < 0:
		return invalid("training.min_delta must not be negative, got %g", c.Training.MinDelta)
	case c.Training.CheckpointDir == "":
		return invalid("training.checkpoint_dir is required")
	case c.Mirror.Enabled && c.Mirror.Bucket == "":
		return invalid("mirror.bucket is required when the mirror is enabled")
	case c.Server.PlotRPS < 0 || c.Server.PlotBurst < 0:
		return invalid("server.plot_rps and server.plot_burst must not be negative")
	}

	switch c.Source.Type {
	case constants.SourceTypeCSV, constants.SourceTypePostgres, constants.SourceTypeSQLite,
		constants.SourceTypeInfluxDB, constants.SourceTypeRedis:
	default:
		return errors.UnsupportedSource(c.Source.Type)
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return invalid("logging.level %q is not a log level", c.Logging.Level)
	}
	if c.Logging.Format != constants.LogFormatJSON && c.Logging.Format != constants.LogFormatText {
		return invalid("logging.format must be %q or %q, got %q",
			constants.LogFormatJSON, constants.LogFormatText, c.Logging.Format)
	}
	return nil
}

// Save writes cfg as YAML to path. An existing file is only replaced when overwrite is set.
func Save(cfg *Config, path string, overwrite bool) error {
	if path == "" {
		path = constants.DefaultConfigFile
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return errors.NewConfigurationError(errors.CodeInvalidConfig,
				fmt.Sprintf("config file %s already exists", path))
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeConfiguration, errors.CodeInvalidConfig,
			"error marshaling config")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.WrapError(err, errors.ErrorTypeConfiguration, errors.CodeInvalidConfig,
			fmt.Sprintf("error writing config file %s", path))
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return errors.NewConfigurationError(errors.CodeInvalidConfig, fmt.Sprintf(format, args...))
}

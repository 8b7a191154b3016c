package constants

import "time"

// Application constants
const (
	// Application metadata
	AppName        = "tsforecast"
	AppDescription = "Sliding-window time series datasets and recurrent forecasters"
	AppVersion     = "0.1.0"

	// Config
	ConfigEnvPrefix   = "TSFORECAST"
	DefaultConfigFile = "./tsforecast.yaml"
	MetricsNamespace  = "tsforecast"

	// Windowing defaults
	DefaultInputWidth    = 24
	DefaultLabelWidth    = 24
	DefaultBatchSize     = 32
	DefaultStride        = 1
	DefaultMaxSubplots   = 4
	DefaultTrainFraction = 0.7
	DefaultValFraction   = 0.2

	// Model defaults
	DefaultHiddenUnits  = 64
	DefaultLearningRate = 0.001

	// Training defaults
	DefaultMaxEpochs     = 2000
	DefaultPatience      = 2000
	DefaultMinDelta      = 0.0
	DefaultCheckpointDir = "checkpoints"

	// CheckpointNameFormat is keyed by input feature count and output width.
	CheckpointNameFormat = "best_model_numfeatures=%d output_width=%d.ckpt"

	// Server defaults
	DefaultServerAddr      = ":8080"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultPlotRPS         = 2.0
	DefaultPlotBurst       = 4

	// Storage defaults
	DefaultStorageTimeout = 30 * time.Second
	DefaultMirrorPrefix   = "tsforecast"
	DefaultMirrorRegion   = "us-east-1"
	DefaultMirrorRetries  = 3
)

// Log levels
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Log formats
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Table source types
const (
	SourceTypeCSV      = "csv"
	SourceTypePostgres = "postgres"
	SourceTypeSQLite   = "sqlite"
	SourceTypeInfluxDB = "influxdb"
	SourceTypeRedis    = "redis"
)

// Output formats
const (
	OutputFormatCSV  = "csv"
	OutputFormatJSON = "json"
)

// Content types
const (
	ContentTypeJSON = "application/json"
	ContentTypePNG  = "image/png"
)

// HTTP headers
const (
	HeaderContentType  = "Content-Type"
	HeaderRequestID    = "X-Request-ID"
	HeaderForwardedFor = "X-Forwarded-For"
	HeaderRealIP       = "X-Real-IP"
	HeaderRetryAfter   = "Retry-After"
)

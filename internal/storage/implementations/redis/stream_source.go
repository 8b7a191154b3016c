package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/internal/storage/tabular"
	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/models"
)

const backendName = "redis"

// StreamConfig holds configuration for Redis stream table sources
type StreamConfig struct {
	Addr        string        `json:"addr"`
	Password    string        `json:"password"`
	DB          int           `json:"db"`
	DialTimeout time.Duration `json:"dial_timeout"`
	ReadTimeout time.Duration `json:"read_timeout"`

	Stream  string   `json:"stream"`
	Columns []string `json:"columns"` // entry fields, in order
	Start   string   `json:"start"`   // stream ID, default "-"
	End     string   `json:"end"`     // stream ID, default "+"
	Count   int64    `json:"count"`   // 0 reads the whole range
}

// StreamSource reads a table from a Redis stream; each entry is one row and its ID gives the timestamp
type StreamSource struct {
	config *StreamConfig
	client *redis.Client
	logger *logrus.Logger
	mu     sync.Mutex
}

// NewStreamSource creates a new Redis stream table source
func NewStreamSource(config *StreamConfig, logger *logrus.Logger) (*StreamSource, error) {
	if config == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, "Redis config cannot be nil")
	}
	if config.Addr == "" || config.Stream == "" || len(config.Columns) == 0 {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig,
			"Redis source needs an address, a stream and at least one column")
	}
	if config.Start == "" {
		config.Start = "-"
	}
	if config.End == "" {
		config.End = "+"
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 5 * time.Second
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &StreamSource{config: config, logger: logger}, nil
}

// Name implements interfaces.TableSource.
func (s *StreamSource) Name() string { return backendName }

// Connect establishes connection to Redis
func (s *StreamSource) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:        s.config.Addr,
		Password:    s.config.Password,
		DB:          s.config.DB,
		DialTimeout: s.config.DialTimeout,
		ReadTimeout: s.config.ReadTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return errors.WrapStorageError(err, backendName, errors.OpConnect, "failed to connect to Redis")
	}
	s.client = client

	s.logger.WithFields(logrus.Fields{
		"addr": s.config.Addr,
		"db":   s.config.DB,
	}).Info("Connected to Redis")

	return nil
}

// Load reads the configured ID range of the stream.
func (s *StreamSource) Load(ctx context.Context) (*models.Table, error) {
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}

	var cmd *redis.XMessageSliceCmd
	if s.config.Count > 0 {
		cmd = s.client.XRangeN(ctx, s.config.Stream, s.config.Start, s.config.End, s.config.Count)
	} else {
		cmd = s.client.XRange(ctx, s.config.Stream, s.config.Start, s.config.End)
	}
	messages, err := cmd.Result()
	if err != nil {
		return nil, errors.WrapStorageError(err, backendName, errors.OpQuery, "failed to read stream")
	}

	table, err := DecodeMessages(messages, s.config.Columns)
	if err != nil {
		return nil, errors.WrapStorageError(err, backendName, errors.OpDecode, "failed to decode stream entries")
	}

	s.logger.WithFields(logrus.Fields{
		"stream": s.config.Stream,
		"rows":   table.Len(),
	}).Info("Loaded Redis stream table")

	return table, nil
}

// Close closes the Redis connection
func (s *StreamSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// DecodeMessages converts stream entries, already in ID order, into table rows.
func DecodeMessages(messages []redis.XMessage, columns []string) (*models.Table, error) {
	builder := tabular.NewBuilder(columns, true)
	for row, msg := range messages {
		ts, err := idTime(msg.ID)
		if err != nil {
			return nil, err
		}
		values := make([]float64, len(columns))
		for i, c := range columns {
			raw, ok := msg.Values[c]
			if !ok {
				return nil, fmt.Errorf("entry %s has no field %q", msg.ID, c)
			}
			v, err := tabular.ToFloat(c, row+1, raw)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		if err := builder.Append(ts, values); err != nil {
			return nil, err
		}
	}
	return builder.Table()
}

// idTime reads the millisecond part of a stream ID such as "1700000000000-0".
func idTime(id string) (time.Time, error) {
	ms, _, _ := strings.Cut(id, "-")
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed stream id %q", id)
	}
	return time.UnixMilli(n).UTC(), nil
}

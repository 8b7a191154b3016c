package influxdb

import (
	"context"
	"fmt"
	"strings"
	"sync"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/query"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/internal/storage/tabular"
	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/models"
)

const backendName = "influxdb"

// Config contains configuration for InfluxDB table sources
type Config struct {
	URL          string   `json:"url" yaml:"url"`
	Token        string   `json:"token" yaml:"token"`
	Organization string   `json:"organization" yaml:"organization"`
	Bucket       string   `json:"bucket" yaml:"bucket"`
	Measurement  string   `json:"measurement" yaml:"measurement"`
	Fields       []string `json:"fields" yaml:"fields"` // become the table columns, in order
	Start        string   `json:"start" yaml:"start"`   // Flux time or duration, default 0
	Stop         string   `json:"stop" yaml:"stop"`     // Flux time or duration, default now()
	Limit        int      `json:"limit" yaml:"limit"`
	UseGZip      bool     `json:"use_gzip" yaml:"use_gzip"`
}

// Source reads a table from InfluxDB by pivoting fields into columns
type Source struct {
	config   *Config
	client   influxdb2.Client
	queryAPI api.QueryAPI
	logger   *logrus.Logger
	mu       sync.Mutex
}

// NewSource creates a new InfluxDB table source
func NewSource(config *Config, logger *logrus.Logger) (*Source, error) {
	if config == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, "InfluxDB config cannot be nil")
	}
	if config.URL == "" || config.Bucket == "" || config.Measurement == "" || len(config.Fields) == 0 {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig,
			"InfluxDB source needs a url, bucket, measurement and at least one field")
	}
	if config.Start == "" {
		config.Start = "0"
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Source{config: config, logger: logger}, nil
}

// Name implements interfaces.TableSource.
func (s *Source) Name() string { return backendName }

// Connect establishes connection to InfluxDB
func (s *Source) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return nil
	}

	options := influxdb2.DefaultOptions()
	options.SetUseGZip(s.config.UseGZip)
	client := influxdb2.NewClientWithOptions(s.config.URL, s.config.Token, options)

	ok, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return errors.WrapStorageError(err, backendName, errors.OpConnect, "failed to connect to InfluxDB")
	}
	if !ok {
		client.Close()
		return errors.WrapStorageError(fmt.Errorf("ping returned not ready"), backendName, errors.OpConnect,
			"InfluxDB ping failed")
	}

	s.client = client
	s.queryAPI = client.QueryAPI(s.config.Organization)

	s.logger.WithFields(logrus.Fields{
		"url":          s.config.URL,
		"organization": s.config.Organization,
		"bucket":       s.config.Bucket,
	}).Info("Connected to InfluxDB")

	return nil
}

// Load runs the pivot query.
func (s *Source) Load(ctx context.Context) (*models.Table, error) {
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}

	flux := BuildFluxQuery(s.config)
	s.logger.WithFields(logrus.Fields{
		"query": flux,
	}).Debug("Executing InfluxDB query")

	result, err := s.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, errors.WrapStorageError(err, backendName, errors.OpQuery, "failed to execute InfluxDB query")
	}
	defer result.Close()

	table, err := DecodeRecords(func() (*query.FluxRecord, bool) {
		if result.Next() {
			return result.Record(), true
		}
		return nil, false
	}, s.config.Fields)
	if err != nil {
		return nil, errors.WrapStorageError(err, backendName, errors.OpDecode, "failed to decode InfluxDB records")
	}
	if result.Err() != nil {
		return nil, errors.WrapStorageError(result.Err(), backendName, errors.OpQuery, "error reading query results")
	}

	s.logger.WithFields(logrus.Fields{
		"measurement": s.config.Measurement,
		"rows":        table.Len(),
	}).Info("Loaded InfluxDB table")

	return table, nil
}

// Close closes the connection to InfluxDB
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
	return nil
}

// BuildFluxQuery selects the configured fields of one measurement, one row per timestamp.
func BuildFluxQuery(config *Config) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `from(bucket: %s)`, fluxString(config.Bucket))

	if config.Stop != "" {
		fmt.Fprintf(&sb, "\n  |> range(start: %s, stop: %s)", config.Start, config.Stop)
	} else {
		fmt.Fprintf(&sb, "\n  |> range(start: %s)", config.Start)
	}

	fmt.Fprintf(&sb, "\n  |> filter(fn: (r) => r._measurement == %s)", fluxString(config.Measurement))

	preds := make([]string, len(config.Fields))
	keep := []string{fluxString("_time")}
	for i, f := range config.Fields {
		preds[i] = "r._field == " + fluxString(f)
		keep = append(keep, fluxString(f))
	}
	fmt.Fprintf(&sb, "\n  |> filter(fn: (r) => %s)", strings.Join(preds, " or "))

	sb.WriteString("\n  |> pivot(rowKey: [\"_time\"], columnKey: [\"_field\"], valueColumn: \"_value\")")
	fmt.Fprintf(&sb, "\n  |> keep(columns: [%s])", strings.Join(keep, ", "))
	sb.WriteString("\n  |> group()")
	sb.WriteString("\n  |> sort(columns: [\"_time\"])")

	if config.Limit > 0 {
		fmt.Fprintf(&sb, "\n  |> limit(n: %d)", config.Limit)
	}
	return sb.String()
}

// DecodeRecords turns pivoted records into table rows. A record missing a field is an error.
func DecodeRecords(next func() (*query.FluxRecord, bool), fields []string) (*models.Table, error) {
	builder := tabular.NewBuilder(fields, true)
	for row := 1; ; row++ {
		record, ok := next()
		if !ok {
			break
		}
		values := make([]float64, len(fields))
		for i, f := range fields {
			raw, present := record.Values()[f]
			if !present || raw == nil {
				return nil, fmt.Errorf("record %d at %s has no field %q", row, record.Time(), f)
			}
			v, err := tabular.ToFloat(f, row, raw)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		if err := builder.Append(record.Time(), values); err != nil {
			return nil, err
		}
	}
	return builder.Table()
}

func fluxString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

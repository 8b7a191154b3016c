package timescaledb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/internal/storage/tabular"
	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/models"
)

const backendName = "postgres"

// Config holds configuration for PostgreSQL/TimescaleDB table sources
type Config struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	Database       string        `json:"database"`
	Username       string        `json:"username"`
	Password       string        `json:"password"`
	SSLMode        string        `json:"ssl_mode"`
	ConnectTimeout time.Duration `json:"connect_timeout"`

	Table      string     `json:"table"`       // optionally schema-qualified
	TimeColumn string     `json:"time_column"` // orders rows chronologically
	Columns    []string   `json:"columns"`     // empty selects every column
	Start      *time.Time `json:"start,omitempty"`
	End        *time.Time `json:"end,omitempty"`
	Limit      int        `json:"limit"`
}

// Source reads a table from PostgreSQL or TimescaleDB
type Source struct {
	config *Config
	db     *sql.DB
	logger *logrus.Logger
	mu     sync.Mutex
}

// NewSource creates a new PostgreSQL table source
func NewSource(config *Config, logger *logrus.Logger) (*Source, error) {
	if config == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, "postgres config cannot be nil")
	}
	if config.Table == "" || config.TimeColumn == "" {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, "postgres source needs a table and a time column")
	}
	if config.Port == 0 {
		config.Port = 5432
	}
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = constants.DefaultStorageTimeout
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Source{config: config, logger: logger}, nil
}

// Name implements interfaces.TableSource.
func (s *Source) Name() string { return backendName }

// Connect establishes connection to the database
func (s *Source) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		s.config.Host,
		s.config.Port,
		s.config.Username,
		s.config.Password,
		s.config.Database,
		s.config.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return errors.WrapStorageError(err, backendName, errors.OpConnect, "failed to open database connection")
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return errors.WrapStorageError(err, backendName, errors.OpConnect, "failed to ping database")
	}
	s.db = db

	s.logger.WithFields(logrus.Fields{
		"host":     s.config.Host,
		"port":     s.config.Port,
		"database": s.config.Database,
	}).Info("Connected to PostgreSQL")

	return nil
}

// Load runs the table query, connecting first if needed.
func (s *Source) Load(ctx context.Context) (*models.Table, error) {
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}

	query, args := BuildQuery(s.config)
	s.logger.WithFields(logrus.Fields{
		"query": query,
	}).Debug("Executing table query")

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WrapStorageError(err, backendName, errors.OpQuery, "failed to query table")
	}
	defer rows.Close()

	table, err := tabular.ScanRows(rows, s.config.TimeColumn)
	if err != nil {
		return nil, errors.WrapStorageError(err, backendName, errors.OpDecode, "failed to decode table rows")
	}

	s.logger.WithFields(logrus.Fields{
		"table": s.config.Table,
		"rows":  table.Len(),
	}).Info("Loaded PostgreSQL table")

	return table, nil
}

// Close closes the database connection
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// BuildQuery renders the SELECT for config with quoted identifiers and positional arguments.
func BuildQuery(config *Config) (string, []interface{}) {
	timeCol := pq.QuoteIdentifier(config.TimeColumn)

	selectList := "*"
	if len(config.Columns) > 0 {
		quoted := []string{timeCol}
		for _, c := range config.Columns {
			quoted = append(quoted, pq.QuoteIdentifier(c))
		}
		selectList = strings.Join(quoted, ", ")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", selectList, quoteQualified(config.Table))

	var args []interface{}
	var conds []string
	if config.Start != nil {
		args = append(args, *config.Start)
		conds = append(conds, fmt.Sprintf("%s >= $%d", timeCol, len(args)))
	}
	if config.End != nil {
		args = append(args, *config.End)
		conds = append(conds, fmt.Sprintf("%s < $%d", timeCol, len(args)))
	}
	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}

	fmt.Fprintf(&sb, " ORDER BY %s ASC", timeCol)
	if config.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", config.Limit)
	}

	return sb.String(), args
}

func quoteQualified(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

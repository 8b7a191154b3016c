package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/inferloop/tsforecast/internal/storage/tabular"
	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/models"
)

const backendName = "sqlite"

// Config contains configuration for SQLite table sources
type Config struct {
	Path       string   `json:"path"`
	Table      string   `json:"table"`
	TimeColumn string   `json:"time_column"` // orders rows chronologically
	Columns    []string `json:"columns"`     // empty selects every column
	Start      string   `json:"start"`       // inclusive lower bound compared as stored
	End        string   `json:"end"`         // exclusive upper bound compared as stored
	Limit      int      `json:"limit"`
}

// Source reads a table from a SQLite database file
type Source struct {
	config *Config
	db     *sql.DB
	logger *logrus.Logger
	mu     sync.Mutex
}

// NewSource creates a new SQLite table source
func NewSource(config *Config, logger *logrus.Logger) (*Source, error) {
	if config == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, "sqlite config cannot be nil")
	}
	if config.Path == "" || config.Table == "" || config.TimeColumn == "" {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, "sqlite source needs a path, a table and a time column")
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Source{config: config, logger: logger}, nil
}

// Name implements interfaces.TableSource.
func (s *Source) Name() string { return backendName }

// Connect opens the database file.
func (s *Source) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.config.Path)
	if err != nil {
		return errors.WrapStorageError(err, backendName, errors.OpConnect, "failed to open database")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return errors.WrapStorageError(err, backendName, errors.OpConnect, "failed to open database")
	}
	s.db = db

	s.logger.WithFields(logrus.Fields{
		"path": s.config.Path,
	}).Info("Opened SQLite database")

	return nil
}

// Load runs the table query.
func (s *Source) Load(ctx context.Context) (*models.Table, error) {
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}

	query, args := BuildQuery(s.config)
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
	}).Info("Loaded SQLite table")

	return table, nil
}

// Close closes the database
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

// BuildQuery renders the SELECT for config with quoted identifiers and ? placeholders.
func BuildQuery(config *Config) (string, []interface{}) {
	timeCol := quoteIdentifier(config.TimeColumn)

	selectList := "*"
	if len(config.Columns) > 0 {
		quoted := []string{timeCol}
		for _, c := range config.Columns {
			quoted = append(quoted, quoteIdentifier(c))
		}
		selectList = strings.Join(quoted, ", ")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", selectList, quoteIdentifier(config.Table))

	var args []interface{}
	var conds []string
	if config.Start != "" {
		args = append(args, config.Start)
		conds = append(conds, timeCol+" >= ?")
	}
	if config.End != "" {
		args = append(args, config.End)
		conds = append(conds, timeCol+" < ?")
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

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

package window

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/models"
)

// Options configures a Windower beyond its geometry.
type Options struct {
	LabelColumns []string `json:"label_columns" mapstructure:"label_columns"` // empty: every column is a label
	BatchSize    int      `json:"batch_size" mapstructure:"batch_size"`
	Seed         int64    `json:"seed" mapstructure:"seed"` // 0: seeded from the clock
}

// Windower turns the train, validation and test tables into windowed datasets.
// It is read-only after construction apart from the example cache.
type Windower struct {
	spec         Spec
	train        *models.Table
	val          *models.Table
	test         *models.Table
	columns      map[string]int
	labelColumns []string
	labelIndex   map[string]int // position within the label tensor
	batchSize    int
	logger       *logrus.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	exampleMu sync.Mutex
	example   *models.Batch
}

// New validates the tables against each other and resolves the label columns.
func New(spec Spec, train, val, test *models.Table, opts Options, logger *logrus.Logger) (*Windower, error) {
	if spec.TotalWindowSize() == 0 {
		return nil, errors.NewWindowError(errors.ErrInvalidGeometry, errors.CodeInvalidGeometry,
			"window spec must be built with NewSpec")
	}
	if train == nil || val == nil || test == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "train, validation and test tables are required")
	}
	for name, t := range map[string]*models.Table{"train": train, "validation": val, "test": test} {
		if err := t.Validate(); err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeInvalidTable,
				fmt.Sprintf("%s table is invalid", name))
		}
	}
	if !train.SameColumns(val) || !train.SameColumns(test) {
		return nil, errors.NewWindowError(errors.ErrColumnMismatch, errors.CodeColumnMismatch,
			"train, validation and test tables must share the same columns in the same order")
	}

	columns := train.ColumnIndex()
	labelIndex := make(map[string]int, len(opts.LabelColumns))
	for i, name := range opts.LabelColumns {
		if _, ok := columns[name]; !ok {
			return nil, errors.UndefinedColumn(name)
		}
		if _, dup := labelIndex[name]; dup {
			return nil, errors.NewWindowError(errors.ErrInvalidGeometry, errors.CodeDuplicateColumn,
				fmt.Sprintf("label column %q listed twice", name))
		}
		labelIndex[name] = i
	}

	if opts.BatchSize <= 0 {
		opts.BatchSize = constants.DefaultBatchSize
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	if logger == nil {
		logger = logrus.New()
	}

	labelColumns := make([]string, len(opts.LabelColumns))
	copy(labelColumns, opts.LabelColumns)

	return &Windower{
		spec:         spec,
		train:        train,
		val:          val,
		test:         test,
		columns:      columns,
		labelColumns: labelColumns,
		labelIndex:   labelIndex,
		batchSize:    opts.BatchSize,
		logger:       logger,
		rng:          rand.New(rand.NewSource(opts.Seed)),
	}, nil
}

// Spec returns the window geometry.
func (w *Windower) Spec() Spec { return w.spec }

// Columns returns the table column names in order.
func (w *Windower) Columns() []string {
	out := make([]string, len(w.train.Columns))
	copy(out, w.train.Columns)
	return out
}

// LabelColumns returns the configured label subset, nil when every column is a label.
func (w *Windower) LabelColumns() []string {
	if len(w.labelColumns) == 0 {
		return nil
	}
	out := make([]string, len(w.labelColumns))
	copy(out, w.labelColumns)
	return out
}

// NumInputFeatures is the feature count of the input tensor.
func (w *Windower) NumInputFeatures() int { return len(w.columns) }

// NumLabelFeatures is the feature count of the label tensor.
func (w *Windower) NumLabelFeatures() int {
	if len(w.labelColumns) > 0 {
		return len(w.labelColumns)
	}
	return len(w.columns)
}

// BatchSize returns the dataset batch size.
func (w *Windower) BatchSize() int { return w.batchSize }

func (w *Windower) String() string {
	return w.spec.describe(w.labelColumns)
}

// SplitWindow splits a batch of raw windows into inputs and labels.
func (w *Windower) SplitWindow(raw models.Tensor) (models.Tensor, models.Tensor, error) {
	return w.spec.SplitWindow(raw, w.columns, w.labelColumns)
}

// MakeDataset builds a lazy batched dataset sliding over table with the given stride.
// It fails when the table cannot hold a single window.
func (w *Windower) MakeDataset(table *models.Table, shuffle bool, stride int) (*Dataset, error) {
	if table == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "table is required")
	}
	if !table.SameColumns(w.train) {
		return nil, errors.NewWindowError(errors.ErrColumnMismatch, errors.CodeColumnMismatch,
			"table columns differ from the windower's columns")
	}
	if stride <= 0 {
		stride = constants.DefaultStride
	}

	total := w.spec.TotalWindowSize()
	if table.Len() < total {
		return nil, errors.NewWindowError(errors.ErrInsufficientRows, errors.CodeInsufficientRows,
			fmt.Sprintf("table has %d rows, a window needs %d", table.Len(), total)).
			WithContext("rows", table.Len()).
			WithContext("total_window_size", total)
	}

	ds := newDataset(table, total, stride, w.batchSize, shuffle, w.nextSeed(), w.SplitWindow)

	w.logger.WithFields(logrus.Fields{
		"rows":    table.Len(),
		"windows": ds.NumWindows(),
		"batches": ds.NumBatches(),
		"stride":  stride,
		"shuffle": shuffle,
	}).Debug("Built windowed dataset")

	return ds, nil
}

// Train windows the training table, shuffled, stride 1.
func (w *Windower) Train() (*Dataset, error) {
	return w.MakeDataset(w.train, true, 1)
}

// Val windows the validation table, shuffled, stride 1.
func (w *Windower) Val() (*Dataset, error) {
	return w.MakeDataset(w.val, true, 1)
}

// Test windows the test table in chronological order with stride equal to the label width,
// so consecutive windows have adjacent, non-overlapping label ranges.
func (w *Windower) Test() (*Dataset, error) {
	return w.MakeDataset(w.test, false, w.spec.LabelWidth())
}

// Example returns the first training batch, computed on the first call and reused afterwards.
// A failed computation is not cached.
func (w *Windower) Example() (*models.Batch, error) {
	w.exampleMu.Lock()
	defer w.exampleMu.Unlock()

	if w.example != nil {
		return w.example, nil
	}

	ds, err := w.Train()
	if err != nil {
		return nil, err
	}
	batch, err := ds.First()
	if err != nil {
		return nil, err
	}

	w.example = &batch
	return w.example, nil
}

func (w *Windower) nextSeed() int64 {
	w.rngMu.Lock()
	defer w.rngMu.Unlock()
	return w.rng.Int63()
}

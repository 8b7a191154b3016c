package window

import (
	"math/rand"

	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/models"
)

type splitFunc func(raw models.Tensor) (models.Tensor, models.Tensor, error)

// Dataset is a lazy, restartable, finite sequence of windowed batches over one table.
// Every call to Iterator starts a new pass; nothing is materialised until Next is called.
// A Dataset is not safe for concurrent use.
type Dataset struct {
	table     *models.Table
	total     int
	stride    int
	shuffle   bool
	batchSize int
	starts    []int
	rng       *rand.Rand
	split     splitFunc
}

func newDataset(table *models.Table, total, stride, batchSize int, shuffle bool, seed int64, split splitFunc) *Dataset {
	// start positions 0, s, 2s, ... while start+total <= L: floor((L-total)/s)+1 windows
	count := (table.Len()-total)/stride + 1
	starts := make([]int, count)
	for i := range starts {
		starts[i] = i * stride
	}

	return &Dataset{
		table:     table,
		total:     total,
		stride:    stride,
		shuffle:   shuffle,
		batchSize: batchSize,
		starts:    starts,
		rng:       rand.New(rand.NewSource(seed)),
		split:     split,
	}
}

// NumWindows returns the number of raw windows one pass produces.
func (d *Dataset) NumWindows() int {
	return len(d.starts)
}

// NumBatches returns the number of batches one pass produces.
func (d *Dataset) NumBatches() int {
	return (len(d.starts) + d.batchSize - 1) / d.batchSize
}

// BatchSize returns the configured batch size. The last batch of a pass may be smaller.
func (d *Dataset) BatchSize() int { return d.batchSize }

// Stride returns the step between successive window starts.
func (d *Dataset) Stride() int { return d.stride }

// Shuffled reports whether each pass randomises window order.
func (d *Dataset) Shuffled() bool { return d.shuffle }

// WindowStarts returns the chronological start row of every window.
func (d *Dataset) WindowStarts() []int {
	out := make([]int, len(d.starts))
	copy(out, d.starts)
	return out
}

// Iterator starts a new pass. Shuffled datasets draw a fresh permutation per pass.
func (d *Dataset) Iterator() *Iterator {
	order := d.WindowStarts()
	if d.shuffle {
		d.rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}
	return &Iterator{ds: d, order: order}
}

// First materialises the first batch of a new pass.
func (d *Dataset) First() (models.Batch, error) {
	it := d.Iterator()
	if !it.Next() {
		if it.Err() != nil {
			return models.Batch{}, it.Err()
		}
		return models.Batch{}, errors.NewTrainingError(errors.ErrEmptyDataset, errors.CodeEmptyDataset,
			"dataset produced no batches")
	}
	return it.Batch(), nil
}

// Iterator walks one pass of a Dataset.
type Iterator struct {
	ds    *Dataset
	order []int
	pos   int
	batch models.Batch
	err   error
}

// Next materialises the next batch. It returns false at the end of the pass or on error.
func (it *Iterator) Next() bool {
	if it.err != nil || it.pos >= len(it.order) {
		return false
	}

	end := it.pos + it.ds.batchSize
	if end > len(it.order) {
		end = len(it.order)
	}

	raw := make(models.Tensor, 0, end-it.pos)
	for _, start := range it.order[it.pos:end] {
		raw = append(raw, it.ds.table.Rows[start:start+it.ds.total])
	}

	inputs, labels, err := it.ds.split(raw)
	if err != nil {
		it.err = err
		return false
	}

	it.batch = models.Batch{Inputs: inputs, Labels: labels}
	it.pos = end
	return true
}

// Batch returns the batch produced by the last successful Next.
func (it *Iterator) Batch() models.Batch {
	return it.batch
}

// Err returns the error that stopped the pass, if any.
func (it *Iterator) Err() error {
	return it.err
}

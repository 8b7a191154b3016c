package window

import (
	stderrors "errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/tsforecast/pkg/errors"
)

func TestNewValidatesTables(t *testing.T) {
	spec, err := NewSpec(3, 1)
	require.NoError(t, err)
	ab := rampTable(t, 10, "a", "b")

	_, err = New(spec, ab, nil, ab, Options{}, nil)
	require.Error(t, err)

	_, err = New(spec, ab, rampTable(t, 10, "a", "c"), ab, Options{}, nil)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrColumnMismatch))

	_, err = New(Spec{}, ab, ab, ab, Options{}, nil)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidGeometry))

	_, err = New(spec, ab, ab, ab, Options{LabelColumns: []string{"a", "a"}}, nil)
	require.Error(t, err)
}

func TestNewUndefinedLabelColumn(t *testing.T) {
	spec, err := NewSpec(3, 1)
	require.NoError(t, err)
	ab := rampTable(t, 10, "a", "b")

	_, err = New(spec, ab, ab, ab, Options{LabelColumns: []string{"temp"}}, logrus.New())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrUndefinedColumn))
	assert.Equal(t, 400, errors.StatusOf(err))
}

func TestWindowerDefaults(t *testing.T) {
	w := newTestWindower(t, 24, 1, 100, Options{}, "a", "b")

	assert.Equal(t, 32, w.BatchSize())
	assert.Nil(t, w.LabelColumns())
	assert.Equal(t, []string{"a", "b"}, w.Columns())
	assert.Equal(t, 2, w.NumInputFeatures())
	assert.Equal(t, 2, w.NumLabelFeatures())
	assert.Contains(t, w.String(), "Label column name(s): None")
}

func TestWindowerLabelSubset(t *testing.T) {
	w := newTestWindower(t, 4, 2, 30, Options{LabelColumns: []string{"c3", "c1"}}, "c1", "c2", "c3")

	assert.Equal(t, []string{"c3", "c1"}, w.LabelColumns())
	assert.Equal(t, 3, w.NumInputFeatures())
	assert.Equal(t, 2, w.NumLabelFeatures())
	assert.Contains(t, w.String(), "Label column name(s): [c3, c1]")

	ds, err := w.Train()
	require.NoError(t, err)
	batch, err := ds.First()
	require.NoError(t, err)
	assert.Equal(t, [3]int{batch.Size(), 4, 3}, batch.Inputs.Shape())
	assert.Equal(t, [3]int{batch.Size(), 2, 2}, batch.Labels.Shape())

	// c3 sits at table column 2, c1 at 0
	row := batch.Inputs[0][0][0] / 100
	assert.Equal(t, (row+4)*100+2, batch.Labels[0][0][0])
	assert.Equal(t, (row+4)*100, batch.Labels[0][0][1])
}

func TestHundredRowSeriesWindowCounts(t *testing.T) {
	w := newTestWindower(t, 24, 1, 100, Options{}, "T")

	train, err := w.Train()
	require.NoError(t, err)
	assert.Equal(t, 76, train.NumWindows())
	assert.Equal(t, 3, train.NumBatches())

	test, err := w.Test()
	require.NoError(t, err)
	assert.Equal(t, 76, test.NumWindows(), "test stride equals label width 1")

	sizes := []int{}
	for _, b := range collect(t, test) {
		sizes = append(sizes, b.Size())
	}
	assert.Equal(t, []int{32, 32, 12}, sizes)
}

func TestExampleIsCached(t *testing.T) {
	w := newTestWindower(t, 5, 1, 80, Options{}, "a", "b")

	first, err := w.Example()
	require.NoError(t, err)
	second, err := w.Example()
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 32, first.Size())
}

func TestExampleConcurrentCallersShareBatch(t *testing.T) {
	w := newTestWindower(t, 5, 1, 80, Options{}, "a")

	var wg sync.WaitGroup
	results := make([]interface{}, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := w.Example()
			assert.NoError(t, err)
			results[i] = b
		}(i)
	}
	wg.Wait()

	for _, r := range results[1:] {
		assert.Same(t, results[0], r)
	}
}

func TestExampleErrorIsNotCached(t *testing.T) {
	spec, err := NewSpec(10, 5)
	require.NoError(t, err)
	short := rampTable(t, 8, "a")

	w, err := New(spec, short, short, short, Options{Seed: 1}, nil)
	require.NoError(t, err)

	_, err = w.Example()
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrInsufficientRows))
	assert.Nil(t, w.example)
}

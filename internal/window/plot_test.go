package window

import (
	"bytes"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/models"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

// lastValue repeats the final input step across the label horizon.
type lastValue struct {
	steps, features int
	calls           int
}

func (p *lastValue) Predict(inputs models.Tensor) (models.Tensor, error) {
	p.calls++
	out := models.NewTensor(len(inputs), p.steps, p.features)
	for b, window := range inputs {
		last := window[len(window)-1]
		for s := range out[b] {
			for f := range out[b][s] {
				out[b][s][f] = last[f%len(last)]
			}
		}
	}
	return out, nil
}

func TestPlotRendersPNG(t *testing.T) {
	w := newTestWindower(t, 8, 2, 60, Options{}, "a", "b")
	predictor := &lastValue{steps: 2, features: 2}

	var buf bytes.Buffer
	require.NoError(t, w.Plot(&buf, predictor, "b", 3))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))
	assert.Equal(t, 1, predictor.calls)
}

func TestPlotWithoutPredictor(t *testing.T) {
	w := newTestWindower(t, 8, 1, 60, Options{}, "a")

	var buf bytes.Buffer
	require.NoError(t, w.Plot(&buf, nil, "a", 0))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))
}

func TestPlotNonLabelColumnSkipsPredictions(t *testing.T) {
	w := newTestWindower(t, 8, 1, 60, Options{LabelColumns: []string{"b"}}, "a", "b")
	predictor := &lastValue{steps: 1, features: 1}

	var buf bytes.Buffer
	require.NoError(t, w.Plot(&buf, predictor, "a", 2))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))
	assert.Zero(t, predictor.calls)
}

func TestPlotUndefinedColumn(t *testing.T) {
	w := newTestWindower(t, 8, 1, 60, Options{}, "a")

	err := w.Plot(&bytes.Buffer{}, nil, "temp", 2)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrUndefinedColumn))
}

func TestPlotRejectsMisshapedPredictions(t *testing.T) {
	w := newTestWindower(t, 8, 2, 60, Options{}, "a", "b", "c")

	err := w.Plot(&bytes.Buffer{}, &lastValue{steps: 3, features: 3}, "a", 2)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrShapeMismatch))

	err = w.Plot(&bytes.Buffer{}, &lastValue{steps: 2, features: 2}, "a", 2)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrShapeMismatch))
}

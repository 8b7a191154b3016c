package forecast

import (
	stderrors "errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/models"
)

func randomBatch(rng *rand.Rand, g Geometry, size int) models.Batch {
	inputs := models.NewTensor(size, g.InSteps, g.InputFeatures)
	labels := models.NewTensor(size, g.OutSteps, g.OutputFeatures)
	for b := range inputs {
		var sum float64
		for t := range inputs[b] {
			for f := range inputs[b][t] {
				inputs[b][t][f] = rng.Float64()*2 - 1
				sum += inputs[b][t][f]
			}
		}
		for s := range labels[b] {
			for k := range labels[b][s] {
				labels[b][s][k] = 0.5 + sum/float64(g.InSteps*g.InputFeatures) + 0.1*float64(s+k)
			}
		}
	}
	return models.Batch{Inputs: inputs, Labels: labels}
}

func TestNewLSTMInitialisation(t *testing.T) {
	g := Geometry{InSteps: 5, OutSteps: 3, InputFeatures: 2, OutputFeatures: 1}
	m, err := NewLSTM(g, LSTMConfig{HiddenUnits: 6, Seed: 1})
	require.NoError(t, err)

	rows, cols := m.params[paramInputKernel].Dims()
	assert.Equal(t, []int{24, 2}, []int{rows, cols})
	rows, cols = m.params[paramRecurrentKernel].Dims()
	assert.Equal(t, []int{24, 6}, []int{rows, cols})

	// orthonormal columns
	var gram mat.Dense
	wh := m.params[paramRecurrentKernel]
	gram.Mul(wh.T(), wh)
	assert.True(t, mat.EqualApprox(&gram, identity(6), 1e-10))

	bias := m.params[paramLSTMBias]
	for r := 0; r < 24; r++ {
		want := 0.0
		if r >= 6 && r < 12 {
			want = 1
		}
		assert.Equal(t, want, bias.At(r, 0), "bias row %d", r)
	}

	assert.Zero(t, mat.Norm(m.params[paramDenseKernel], 2))

	preds, err := m.Predict(randomBatch(rand.New(rand.NewSource(2)), g, 4).Inputs)
	require.NoError(t, err)
	assert.Equal(t, [3]int{4, 3, 1}, preds.Shape())
	for _, w := range preds {
		for _, s := range w {
			assert.Equal(t, 0.0, s[0], "zero dense projection predicts zero")
		}
	}
}

func TestNewLSTMDefaultsAndValidation(t *testing.T) {
	m, err := NewLSTM(Geometry{InSteps: 2, OutSteps: 1, InputFeatures: 1, OutputFeatures: 1}, LSTMConfig{})
	require.NoError(t, err)
	assert.Equal(t, 64, m.HiddenUnits())
	assert.Equal(t, 0.001, m.optimizer.learningRate)

	_, err = NewLSTM(Geometry{InSteps: 2, OutSteps: 0, InputFeatures: 1, OutputFeatures: 1}, LSTMConfig{})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidGeometry))
}

func TestPredictRejectsWrongShape(t *testing.T) {
	g := Geometry{InSteps: 4, OutSteps: 1, InputFeatures: 2, OutputFeatures: 2}
	m, err := NewLSTM(g, LSTMConfig{HiddenUnits: 4, Seed: 1})
	require.NoError(t, err)

	_, err = m.Predict(models.NewTensor(2, 3, 2))
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrShapeMismatch))

	batch := randomBatch(rand.New(rand.NewSource(1)), g, 2)
	batch.Labels = models.NewTensor(2, 2, 2)
	_, err = m.TrainBatch(batch)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrShapeMismatch))
}

func TestBackwardMatchesNumericalGradient(t *testing.T) {
	g := Geometry{InSteps: 4, OutSteps: 2, InputFeatures: 2, OutputFeatures: 2}
	m, err := NewLSTM(g, LSTMConfig{HiddenUnits: 3, Seed: 11})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(5))
	// a zero projection would hide every recurrent gradient
	wd := m.params[paramDenseKernel]
	r, c := wd.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			wd.Set(i, j, rng.NormFloat64())
		}
	}

	batch := randomBatch(rng, g, 3)
	target := m.flatten(batch.Labels)
	loss := func() float64 {
		y, _ := m.forward(batch.Inputs)
		return regressionMetrics(y, target, 3).Loss
	}

	y, steps := m.forward(batch.Inputs)
	grads := m.backward(y, target, steps)

	const eps = 1e-5
	for _, name := range paramOrder {
		p := m.params[name]
		rows, cols := p.Dims()
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				orig := p.At(i, j)
				p.Set(i, j, orig+eps)
				up := loss()
				p.Set(i, j, orig-eps)
				down := loss()
				p.Set(i, j, orig)

				numeric := (up - down) / (2 * eps)
				assert.InDelta(t, numeric, grads[name].At(i, j), 1e-6, "%s[%d,%d]", name, i, j)
			}
		}
	}
}

func TestTrainBatchReducesLoss(t *testing.T) {
	g := Geometry{InSteps: 6, OutSteps: 2, InputFeatures: 1, OutputFeatures: 1}
	m, err := NewLSTM(g, LSTMConfig{HiddenUnits: 8, LearningRate: 0.01, Seed: 3})
	require.NoError(t, err)

	batch := randomBatch(rand.New(rand.NewSource(9)), g, 16)
	first, err := m.Evaluate(batch)
	require.NoError(t, err)

	for i := 0; i < 300; i++ {
		_, err := m.TrainBatch(batch)
		require.NoError(t, err)
	}

	last, err := m.Evaluate(batch)
	require.NoError(t, err)
	assert.Less(t, last.Loss, first.Loss/4)
	assert.Equal(t, 16, last.Samples)
	assert.Greater(t, last.MAE, 0.0)
}

func TestClipByGlobalNorm(t *testing.T) {
	grads := map[string]*mat.Dense{
		"a": mat.NewDense(1, 2, []float64{3, 0}),
		"b": mat.NewDense(2, 1, []float64{0, 4}),
	}
	norm := clipByGlobalNorm(grads, 1)
	assert.InDelta(t, 5, norm, 1e-12)
	assert.InDelta(t, 0.6, grads["a"].At(0, 0), 1e-12)
	assert.InDelta(t, 0.8, grads["b"].At(1, 0), 1e-12)

	clipByGlobalNorm(grads, 0)
	assert.InDelta(t, 0.6, grads["a"].At(0, 0), 1e-12)
}

func TestMarshalRoundTrip(t *testing.T) {
	g := Geometry{InSteps: 3, OutSteps: 2, InputFeatures: 2, OutputFeatures: 1}
	rng := rand.New(rand.NewSource(4))
	batch := randomBatch(rng, g, 5)

	trained, err := NewLSTM(g, LSTMConfig{HiddenUnits: 4, LearningRate: 0.05, Seed: 1})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		_, err := trained.TrainBatch(batch)
		require.NoError(t, err)
	}

	data, err := trained.MarshalBinary()
	require.NoError(t, err)

	fresh, err := NewLSTM(g, LSTMConfig{HiddenUnits: 4, Seed: 99})
	require.NoError(t, err)
	require.NoError(t, fresh.UnmarshalBinary(data))

	want, err := trained.Predict(batch.Inputs)
	require.NoError(t, err)
	got, err := fresh.Predict(batch.Inputs)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestUnmarshalRejectsMismatchedState(t *testing.T) {
	g := Geometry{InSteps: 3, OutSteps: 2, InputFeatures: 2, OutputFeatures: 1}
	m, err := NewLSTM(g, LSTMConfig{HiddenUnits: 4, Seed: 1})
	require.NoError(t, err)
	data, err := m.MarshalBinary()
	require.NoError(t, err)

	other, err := NewLSTM(g, LSTMConfig{HiddenUnits: 5, Seed: 1})
	require.NoError(t, err)
	err = other.UnmarshalBinary(data)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrCheckpointCorrupt))

	err = m.UnmarshalBinary([]byte("not json"))
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrCheckpointCorrupt))
}

func TestRegressionMetrics(t *testing.T) {
	y := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	target := mat.NewDense(2, 2, []float64{1, 0, 3, 8})

	m := regressionMetrics(y, target, 2)
	assert.InDelta(t, (4.0+16.0)/4, m.Loss, 1e-12)
	assert.InDelta(t, 6.0/4, m.MAE, 1e-12)
	assert.False(t, math.IsNaN(m.Loss))
}

func identity(n int) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, 1)
	}
	return d
}

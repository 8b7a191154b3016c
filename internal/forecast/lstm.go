package forecast

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/inferloop/tsforecast/internal/training"
	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/models"
)

// LSTMConfig contains configuration for the LSTM forecaster
type LSTMConfig struct {
	HiddenUnits  int     `json:"hidden_units" mapstructure:"hidden_units" yaml:"hidden_units"`    // LSTM state size
	LearningRate float64 `json:"learning_rate" mapstructure:"learning_rate" yaml:"learning_rate"` // Adam step size
	ClipNorm     float64 `json:"clip_norm" mapstructure:"clip_norm" yaml:"clip_norm"`             // global gradient norm cap, 0 disables
	Seed         int64   `json:"seed" mapstructure:"seed" yaml:"seed"`                            // weight initialisation seed, 0 uses the clock
}

// Parameter names, also the checkpoint keys.
const (
	paramInputKernel     = "lstm/kernel"
	paramRecurrentKernel = "lstm/recurrent_kernel"
	paramLSTMBias        = "lstm/bias"
	paramDenseKernel     = "dense/kernel"
	paramDenseBias       = "dense/bias"
)

var paramOrder = []string{paramInputKernel, paramRecurrentKernel, paramLSTMBias, paramDenseKernel, paramDenseBias}

// LSTM is a single-layer LSTM returning its last hidden state, followed by a dense projection to
// OutSteps*OutputFeatures values reshaped to [B, OutSteps, OutputFeatures]. It trains on mean
// squared error with Adam.
//
// Gate blocks are stacked in the order input, forget, cell, output. Predict and Evaluate only read
// parameters; TrainBatch must not run concurrently with anything else.
type LSTM struct {
	geometry Geometry
	hidden   int
	clipNorm float64

	params    map[string]*mat.Dense
	optimizer *adam
}

// NewLSTM initialises weights: glorot-uniform input kernel, orthogonal recurrent kernel,
// unit forget-gate bias and a zero dense projection.
func NewLSTM(geometry Geometry, cfg LSTMConfig) (*LSTM, error) {
	if err := geometry.Validate(); err != nil {
		return nil, err
	}
	if cfg.HiddenUnits <= 0 {
		cfg.HiddenUnits = constants.DefaultHiddenUnits
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = constants.DefaultLearningRate
	}
	if cfg.ClipNorm < 0 {
		return nil, errors.NewValidationError(errors.CodeOutOfRange, "clip norm must not be negative")
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	h := cfg.HiddenUnits

	bias := mat.NewDense(4*h, 1, nil)
	for r := h; r < 2*h; r++ {
		bias.Set(r, 0, 1)
	}

	m := &LSTM{
		geometry: geometry,
		hidden:   h,
		clipNorm: cfg.ClipNorm,
		params: map[string]*mat.Dense{
			paramInputKernel:     glorotUniform(rng, 4*h, geometry.InputFeatures),
			paramRecurrentKernel: orthogonal(rng, 4*h, h),
			paramLSTMBias:        bias,
			paramDenseKernel:     mat.NewDense(geometry.Outputs(), h, nil),
			paramDenseBias:       mat.NewDense(geometry.Outputs(), 1, nil),
		},
	}
	m.optimizer = newAdam(cfg.LearningRate, m.params)
	return m, nil
}

// Geometry returns the shapes the model was built for.
func (m *LSTM) Geometry() Geometry { return m.geometry }

// HiddenUnits returns the LSTM state size.
func (m *LSTM) HiddenUnits() int { return m.hidden }

// Predict runs the forward pass on inputs [B, InSteps, InputFeatures].
func (m *LSTM) Predict(inputs models.Tensor) (models.Tensor, error) {
	if err := m.checkInputs(inputs); err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return models.Tensor{}, nil
	}
	y, _ := m.forward(inputs)
	return m.toTensor(y), nil
}

// TrainBatch runs forward and backward passes and applies one Adam step.
// The returned metrics are computed before the update.
func (m *LSTM) TrainBatch(batch models.Batch) (training.Metrics, error) {
	target, err := m.prepare(batch)
	if err != nil {
		return training.Metrics{}, err
	}

	y, steps := m.forward(batch.Inputs)
	metrics := regressionMetrics(y, target, batch.Size())
	if math.IsNaN(metrics.Loss) || math.IsInf(metrics.Loss, 0) {
		return metrics, errors.NewTrainingError(errors.ErrNonFiniteLoss, errors.CodeNonFiniteLoss,
			fmt.Sprintf("batch loss is %v", metrics.Loss))
	}

	grads := m.backward(y, target, steps)
	clipByGlobalNorm(grads, m.clipNorm)
	m.optimizer.step(m.params, grads)

	return metrics, nil
}

// Evaluate computes loss and MAE without touching parameters.
func (m *LSTM) Evaluate(batch models.Batch) (training.Metrics, error) {
	target, err := m.prepare(batch)
	if err != nil {
		return training.Metrics{}, err
	}
	y, _ := m.forward(batch.Inputs)
	return regressionMetrics(y, target, batch.Size()), nil
}

func (m *LSTM) prepare(batch models.Batch) (*mat.Dense, error) {
	if err := m.checkInputs(batch.Inputs); err != nil {
		return nil, err
	}
	if batch.Size() == 0 {
		return nil, errors.NewTrainingError(errors.ErrEmptyDataset, errors.CodeEmptyDataset, "batch holds no windows")
	}
	want := [3]int{batch.Size(), m.geometry.OutSteps, m.geometry.OutputFeatures}
	if got := batch.Labels.Shape(); got != want {
		return nil, errors.NewWindowError(errors.ErrShapeMismatch, errors.CodeShapeMismatch,
			fmt.Sprintf("labels shaped %v, model expects %v", got, want))
	}
	return m.flatten(batch.Labels), nil
}

func (m *LSTM) checkInputs(inputs models.Tensor) error {
	shape := inputs.Shape()
	if len(inputs) == 0 {
		return nil
	}
	if shape[1] != m.geometry.InSteps || shape[2] != m.geometry.InputFeatures {
		return errors.NewWindowError(errors.ErrShapeMismatch, errors.CodeShapeMismatch,
			fmt.Sprintf("inputs shaped %v, model expects [B %d %d]", shape, m.geometry.InSteps, m.geometry.InputFeatures))
	}
	for b, window := range inputs {
		if len(window) != m.geometry.InSteps {
			return errors.NewWindowError(errors.ErrShapeMismatch, errors.CodeShapeMismatch,
				fmt.Sprintf("window %d has %d steps", b, len(window)))
		}
		for t, step := range window {
			if len(step) != m.geometry.InputFeatures {
				return errors.NewWindowError(errors.ErrShapeMismatch, errors.CodeShapeMismatch,
					fmt.Sprintf("window %d step %d has %d features", b, t, len(step)))
			}
		}
	}
	return nil
}

// stepCache holds the activations of one time step, each [H, B] except x [F, B].
type stepCache struct {
	x, hPrev, cPrev *mat.Dense
	i, f, g, o      *mat.Dense
	tanhC           *mat.Dense
}

// forward returns the dense output [O, B] and the per-step activations needed by backward.
func (m *LSTM) forward(inputs models.Tensor) (*mat.Dense, []stepCache) {
	h, batch := m.hidden, len(inputs)
	wx, wh, bias := m.params[paramInputKernel], m.params[paramRecurrentKernel], m.params[paramLSTMBias]

	hPrev := mat.NewDense(h, batch, nil)
	cPrev := mat.NewDense(h, batch, nil)
	steps := make([]stepCache, m.geometry.InSteps)

	for t := range steps {
		x := stepColumns(inputs, t, m.geometry.InputFeatures)

		z := mat.NewDense(4*h, batch, nil)
		var rec mat.Dense
		z.Mul(wx, x)
		rec.Mul(wh, hPrev)
		z.Add(z, &rec)
		z.Apply(func(r, _ int, v float64) float64 { return v + bias.At(r, 0) }, z)

		i := gate(z, 0, h, sigmoid)
		f := gate(z, 1, h, sigmoid)
		g := gate(z, 2, h, math.Tanh)
		o := gate(z, 3, h, sigmoid)

		c := mat.NewDense(h, batch, nil)
		var ig mat.Dense
		c.MulElem(f, cPrev)
		ig.MulElem(i, g)
		c.Add(c, &ig)

		tanhC := mat.NewDense(h, batch, nil)
		tanhC.Apply(func(_, _ int, v float64) float64 { return math.Tanh(v) }, c)

		hNext := mat.NewDense(h, batch, nil)
		hNext.MulElem(o, tanhC)

		steps[t] = stepCache{x: x, hPrev: hPrev, cPrev: cPrev, i: i, f: f, g: g, o: o, tanhC: tanhC}
		hPrev, cPrev = hNext, c
	}

	wd, bd := m.params[paramDenseKernel], m.params[paramDenseBias]
	y := mat.NewDense(m.geometry.Outputs(), batch, nil)
	y.Mul(wd, hPrev)
	y.Apply(func(r, _ int, v float64) float64 { return v + bd.At(r, 0) }, y)

	return y, steps
}

// backward returns gradients of the mean squared error for every parameter.
func (m *LSTM) backward(y, target *mat.Dense, steps []stepCache) map[string]*mat.Dense {
	h := m.hidden
	outputs, batch := y.Dims()
	grads := make(map[string]*mat.Dense, len(m.params))
	for name, p := range m.params {
		r, c := p.Dims()
		grads[name] = mat.NewDense(r, c, nil)
	}

	// d/dy of mean((y-t)^2) over all O*B elements
	dy := mat.NewDense(outputs, batch, nil)
	dy.Sub(y, target)
	dy.Scale(2/float64(outputs*batch), dy)

	last := steps[len(steps)-1]
	hT := mat.NewDense(h, batch, nil)
	hT.MulElem(last.o, last.tanhC)

	grads[paramDenseKernel].Mul(dy, hT.T())
	addRowSums(grads[paramDenseBias], dy)

	dh := mat.NewDense(h, batch, nil)
	dh.Mul(m.params[paramDenseKernel].T(), dy)
	dc := mat.NewDense(h, batch, nil)

	wh := m.params[paramRecurrentKernel]
	var tmp mat.Dense
	for t := len(steps) - 1; t >= 0; t-- {
		s := steps[t]
		dz := mat.NewDense(4*h, batch, nil)

		for r := 0; r < h; r++ {
			for b := 0; b < batch; b++ {
				i, f, g, o := s.i.At(r, b), s.f.At(r, b), s.g.At(r, b), s.o.At(r, b)
				tc := s.tanhC.At(r, b)
				dhv := dh.At(r, b)

				dcv := dc.At(r, b) + dhv*o*(1-tc*tc)
				dc.Set(r, b, dcv*f)

				dz.Set(r, b, dcv*g*i*(1-i))
				dz.Set(h+r, b, dcv*s.cPrev.At(r, b)*f*(1-f))
				dz.Set(2*h+r, b, dcv*i*(1-g*g))
				dz.Set(3*h+r, b, dhv*tc*o*(1-o))
			}
		}

		tmp.Reset()
		tmp.Mul(dz, s.x.T())
		grads[paramInputKernel].Add(grads[paramInputKernel], &tmp)

		tmp.Reset()
		tmp.Mul(dz, s.hPrev.T())
		grads[paramRecurrentKernel].Add(grads[paramRecurrentKernel], &tmp)

		addRowSums(grads[paramLSTMBias], dz)

		dh.Mul(wh.T(), dz)
	}

	return grads
}

// flatten lays a [B, OutSteps, OutputFeatures] tensor out as [O, B] in the dense output order.
func (m *LSTM) flatten(t models.Tensor) *mat.Dense {
	out := mat.NewDense(m.geometry.Outputs(), len(t), nil)
	for b, window := range t {
		for s, step := range window {
			for k, v := range step {
				out.Set(s*m.geometry.OutputFeatures+k, b, v)
			}
		}
	}
	return out
}

func (m *LSTM) toTensor(y *mat.Dense) models.Tensor {
	_, batch := y.Dims()
	out := models.NewTensor(batch, m.geometry.OutSteps, m.geometry.OutputFeatures)
	for b := range out {
		for s := range out[b] {
			for k := range out[b][s] {
				out[b][s][k] = y.At(s*m.geometry.OutputFeatures+k, b)
			}
		}
	}
	return out
}

type checkpointState struct {
	Geometry    Geometry             `json:"geometry"`
	HiddenUnits int                  `json:"hidden_units"`
	Params      map[string][]float64 `json:"params"`
}

// MarshalBinary serialises the parameter state. Optimizer moments are not included.
func (m *LSTM) MarshalBinary() ([]byte, error) {
	state := checkpointState{
		Geometry:    m.geometry,
		HiddenUnits: m.hidden,
		Params:      make(map[string][]float64, len(m.params)),
	}
	for _, name := range paramOrder {
		state.Params[name] = denseValues(m.params[name])
	}
	return json.Marshal(state)
}

// UnmarshalBinary restores parameters written by MarshalBinary for the same geometry.
func (m *LSTM) UnmarshalBinary(data []byte) error {
	var state checkpointState
	if err := json.Unmarshal(data, &state); err != nil {
		return errors.NewCheckpointError(errors.ErrCheckpointCorrupt, errors.CodeCheckpointCorrupt,
			"checkpoint is not a valid model state").WithDetails(err.Error())
	}
	if state.Geometry != m.geometry || state.HiddenUnits != m.hidden {
		return errors.NewCheckpointError(errors.ErrCheckpointCorrupt, errors.CodeCheckpointCorrupt,
			fmt.Sprintf("checkpoint holds geometry %+v with %d units, model has %+v with %d units",
				state.Geometry, state.HiddenUnits, m.geometry, m.hidden))
	}

	restored := make(map[string]*mat.Dense, len(paramOrder))
	for _, name := range paramOrder {
		values, ok := state.Params[name]
		r, c := m.params[name].Dims()
		if !ok || len(values) != r*c {
			return errors.NewCheckpointError(errors.ErrCheckpointCorrupt, errors.CodeCheckpointCorrupt,
				fmt.Sprintf("parameter %s missing or wrongly sized", name))
		}
		restored[name] = mat.NewDense(r, c, values)
	}
	for name, p := range restored {
		m.params[name].Copy(p)
	}
	return nil
}

// regressionMetrics computes MSE and MAE over every element of an [O, B] output.
func regressionMetrics(y, target *mat.Dense, samples int) training.Metrics {
	yv, tv := denseValues(y), denseValues(target)
	n := float64(len(yv))
	d := floats.Distance(yv, tv, 2)
	return training.Metrics{
		Loss:    d * d / n,
		MAE:     floats.Distance(yv, tv, 1) / n,
		Samples: samples,
	}
}

// denseValues copies a matrix's elements in row-major order.
func denseValues(d *mat.Dense) []float64 {
	r, c := d.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		data = append(data, d.RawRowView(i)...)
	}
	return data
}

func stepColumns(inputs models.Tensor, t, features int) *mat.Dense {
	x := mat.NewDense(features, len(inputs), nil)
	for b, window := range inputs {
		for f, v := range window[t] {
			x.Set(f, b, v)
		}
	}
	return x
}

func gate(z *mat.Dense, block, h int, act func(float64) float64) *mat.Dense {
	_, batch := z.Dims()
	out := mat.NewDense(h, batch, nil)
	out.Apply(func(_, _ int, v float64) float64 { return act(v) }, z.Slice(block*h, (block+1)*h, 0, batch))
	return out
}

func addRowSums(dst *mat.Dense, src *mat.Dense) {
	rows, _ := src.Dims()
	for r := 0; r < rows; r++ {
		dst.Set(r, 0, dst.At(r, 0)+floats.Sum(src.RawRowView(r)))
	}
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}

func glorotUniform(rng *rand.Rand, fanOut, fanIn int) *mat.Dense {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	data := make([]float64, fanOut*fanIn)
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * limit
	}
	return mat.NewDense(fanOut, fanIn, data)
}

// orthogonal returns a rows×cols matrix with orthonormal columns from the QR factorisation of a
// gaussian matrix, sign-corrected so the distribution is uniform.
func orthogonal(rng *rand.Rand, rows, cols int) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	a := mat.NewDense(rows, cols, data)

	var qr mat.QR
	qr.Factorize(a)
	var q, r mat.Dense
	qr.QTo(&q)
	qr.RTo(&r)

	out := mat.NewDense(rows, cols, nil)
	out.Copy(q.Slice(0, rows, 0, cols))
	for j := 0; j < cols; j++ {
		if r.At(j, j) < 0 {
			for i := 0; i < rows; i++ {
				out.Set(i, j, -out.At(i, j))
			}
		}
	}
	return out
}

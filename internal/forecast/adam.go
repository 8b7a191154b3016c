package forecast

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// adam implements the Adam optimizer with bias-corrected step size.
type adam struct {
	learningRate float64
	beta1        float64
	beta2        float64
	epsilon      float64
	t            int

	momentum map[string]*mat.Dense
	velocity map[string]*mat.Dense
}

func newAdam(learningRate float64, params map[string]*mat.Dense) *adam {
	opt := &adam{
		learningRate: learningRate,
		beta1:        0.9,
		beta2:        0.999,
		epsilon:      1e-7,
		momentum:     make(map[string]*mat.Dense, len(params)),
		velocity:     make(map[string]*mat.Dense, len(params)),
	}
	for name, p := range params {
		r, c := p.Dims()
		opt.momentum[name] = mat.NewDense(r, c, nil)
		opt.velocity[name] = mat.NewDense(r, c, nil)
	}
	return opt
}

func (a *adam) step(params, grads map[string]*mat.Dense) {
	a.t++
	lr := a.learningRate * math.Sqrt(1-math.Pow(a.beta2, float64(a.t))) / (1 - math.Pow(a.beta1, float64(a.t)))

	for name, p := range params {
		g := grads[name]
		m, v := a.momentum[name], a.velocity[name]
		rows, _ := p.Dims()
		for r := 0; r < rows; r++ {
			pr, gr, mr, vr := p.RawRowView(r), g.RawRowView(r), m.RawRowView(r), v.RawRowView(r)
			for c := range pr {
				mr[c] = a.beta1*mr[c] + (1-a.beta1)*gr[c]
				vr[c] = a.beta2*vr[c] + (1-a.beta2)*gr[c]*gr[c]
				pr[c] -= lr * mr[c] / (math.Sqrt(vr[c]) + a.epsilon)
			}
		}
	}
}

// clipByGlobalNorm rescales every gradient when their joint L2 norm exceeds maxNorm.
func clipByGlobalNorm(grads map[string]*mat.Dense, maxNorm float64) float64 {
	var sum float64
	for _, g := range grads {
		n := mat.Norm(g, 2)
		sum += n * n
	}
	norm := math.Sqrt(sum)
	if maxNorm <= 0 || norm <= maxNorm {
		return norm
	}
	scale := maxNorm / norm
	for _, g := range grads {
		rows, _ := g.Dims()
		for r := 0; r < rows; r++ {
			floats.Scale(scale, g.RawRowView(r))
		}
	}
	return norm
}

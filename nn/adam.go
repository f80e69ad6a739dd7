package nn

import "math"

// AdamConfig holds the Adam hyperparameters.
type AdamConfig struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64
}

// DefaultAdamConfig returns the usual defaults with the given learning rate.
func DefaultAdamConfig(lr float64) AdamConfig {
	return AdamConfig{LearningRate: lr, Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-8}
}

// Adam implements the Adam optimizer with bias correction. It owns the
// parameters it was created with; nothing else should update them.
//
//	m = β1·m + (1-β1)·g
//	v = β2·v + (1-β2)·g²
//	θ -= lr · m̂ / (√v̂ + ε)
type Adam struct {
	cfg    AdamConfig
	params []*Param
	m, v   [][]float64
	t      int
}

// NewAdam creates an optimizer over params.
func NewAdam(params []*Param, cfg AdamConfig) *Adam {
	a := &Adam{cfg: cfg, params: params}
	a.m = make([][]float64, len(params))
	a.v = make([][]float64, len(params))
	for i, p := range params {
		a.m[i] = make([]float64, p.Value.Len())
		a.v[i] = make([]float64, p.Value.Len())
	}
	return a
}

// Params returns the parameters owned by the optimizer.
func (a *Adam) Params() []*Param { return a.params }

// Steps returns how many updates have been applied.
func (a *Adam) Steps() int { return a.t }

// ZeroGrad clears the gradients of the owned parameters.
func (a *Adam) ZeroGrad() { ZeroGrad(a.params) }

// Step applies one update from the accumulated gradients.
func (a *Adam) Step() {
	a.t++
	b1, b2 := a.cfg.Beta1, a.cfg.Beta2
	bias1 := 1 - math.Pow(b1, float64(a.t))
	bias2 := 1 - math.Pow(b2, float64(a.t))
	for i, p := range a.params {
		m, v := a.m[i], a.v[i]
		for j, g32 := range p.Grad.Data {
			g := float64(g32)
			m[j] = b1*m[j] + (1-b1)*g
			v[j] = b2*v[j] + (1-b2)*g*g
			mHat := m[j] / bias1
			vHat := v[j] / bias2
			p.Value.Data[j] -= float32(a.cfg.LearningRate * mHat / (math.Sqrt(vHat) + a.cfg.Epsilon))
		}
	}
}

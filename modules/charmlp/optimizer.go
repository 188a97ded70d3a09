package charmlp

import (
	"errors"
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/vk/lmrun/internal/checkpoint"
	"github.com/vk/lmrun/internal/runerr"
)

const adamDamping = 1e-8

// OptimizerType names this optimizer in checkpoints.
const OptimizerType = "adamw"

// Adam implements adaptive moment estimation with decoupled weight decay.
// Unlike a plain gradient transformer it owns its moment vectors as float64
// slices so they can be saved in and restored from checkpoints.
type Adam struct {
	DecayRate1  float64
	DecayRate2  float64
	WeightDecay float64
	// GradClip caps the global L2 norm of the gradient. Zero disables it.
	GradClip float64

	params    []*anydiff.Var
	first     [][]float64
	second    [][]float64
	iteration int
}

// NewAdam returns an optimizer for params.
func NewAdam(params []*anydiff.Var, h *Hyper) *Adam {
	a := &Adam{
		DecayRate1:  h.Beta1,
		DecayRate2:  h.Beta2,
		WeightDecay: h.WeightDecay,
		GradClip:    h.GradClip,
		params:      params,
		first:       make([][]float64, len(params)),
		second:      make([][]float64, len(params)),
	}
	for i, p := range params {
		a.first[i] = make([]float64, p.Vector.Len())
		a.second[i] = make([]float64, p.Vector.Len())
	}
	return a
}

// Step applies one update with learning rate lr.
func (a *Adam) Step(grad anydiff.Grad, lr float64) error {
	grads := make([][]float64, len(a.params))
	var sq float64
	for i, p := range a.params {
		g, ok := grad[p]
		if !ok {
			return errors.New("gradient is missing a parameter")
		}
		grads[i] = vectorData(g)
		for _, x := range grads[i] {
			sq += x * x
		}
	}
	norm := math.Sqrt(sq)
	if math.IsNaN(norm) || math.IsInf(norm, 0) {
		return errors.New("gradient norm is not finite")
	}
	if a.GradClip > 0 && norm > a.GradClip {
		scale := a.GradClip / norm
		for _, g := range grads {
			for j := range g {
				g[j] *= scale
			}
		}
	}

	a.iteration++
	b1, b2 := a.DecayRate1, a.DecayRate2
	corr1 := 1 - math.Pow(b1, float64(a.iteration))
	corr2 := 1 - math.Pow(b2, float64(a.iteration))
	for i, p := range a.params {
		values := vectorData(p.Vector)
		m, v, g := a.first[i], a.second[i], grads[i]
		for j := range values {
			m[j] = b1*m[j] + (1-b1)*g[j]
			v[j] = b2*v[j] + (1-b2)*g[j]*g[j]
			update := (m[j] / corr1) / (math.Sqrt(v[j]/corr2) + adamDamping)
			values[j] -= lr * (update + a.WeightDecay*values[j])
		}
		setVectorData(p.Vector, values)
	}
	return nil
}

// Iteration returns the number of updates applied.
func (a *Adam) Iteration() int {
	return a.iteration
}

// State implements trainer.Optimizer.
func (a *Adam) State() *checkpoint.OptimizerState {
	s := &checkpoint.OptimizerState{
		Type:      OptimizerType,
		Iteration: a.iteration,
		First:     make([][]float64, len(a.first)),
		Second:    make([][]float64, len(a.second)),
	}
	for i := range a.first {
		s.First[i] = append([]float64(nil), a.first[i]...)
		s.Second[i] = append([]float64(nil), a.second[i]...)
	}
	return s
}

// Restore loads a saved state. The slot count and every slot length must
// match the parameters.
func (a *Adam) Restore(s *checkpoint.OptimizerState) error {
	if s.Type != OptimizerType {
		return runerr.Configuration("restore optimizer", "checkpoint optimizer is %q, want %q", s.Type, OptimizerType)
	}
	if len(s.First) != len(a.params) || len(s.Second) != len(a.params) {
		return runerr.Configuration("restore optimizer", "checkpoint has %d moment slots, model has %d parameters",
			len(s.First), len(a.params))
	}
	for i, p := range a.params {
		if len(s.First[i]) != p.Vector.Len() || len(s.Second[i]) != p.Vector.Len() {
			return runerr.Configuration("restore optimizer", "slot %d has length %d, parameter has %d",
				i, len(s.First[i]), p.Vector.Len())
		}
	}
	for i := range a.params {
		a.first[i] = append([]float64(nil), s.First[i]...)
		a.second[i] = append([]float64(nil), s.Second[i]...)
	}
	a.iteration = s.Iteration
	return nil
}

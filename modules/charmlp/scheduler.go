package charmlp

import (
	"math"

	"github.com/vk/lmrun/internal/runerr"
)

// Scheduler names accepted by the `scheduler` hyperparameter.
const (
	SchedulerConstant    = "constant"
	SchedulerStep        = "step"
	SchedulerCosine      = "cosine"
	SchedulerExponential = "exponential"
)

// LRFunc maps a zero-based step to a learning rate.
type LRFunc func(step int) float64

// Scheduler yields the learning rate of the current step.
type Scheduler struct {
	name string
	fn   LRFunc
	step int
}

// NewScheduler builds the schedule named by h.Scheduler, positioned at start
// so a resumed run continues the same curve.
func NewScheduler(h *Hyper, start int) (*Scheduler, error) {
	fn, err := lrFunc(h)
	if err != nil {
		return nil, err
	}
	return &Scheduler{name: h.Scheduler, fn: fn, step: start}, nil
}

func lrFunc(h *Hyper) (LRFunc, error) {
	base := h.LearningRate
	switch h.Scheduler {
	case SchedulerConstant, "":
		return func(int) float64 { return base }, nil
	case SchedulerStep:
		return func(step int) float64 {
			return base * math.Pow(h.LRGamma, float64(step/h.LRStepSize))
		}, nil
	case SchedulerExponential:
		return func(step int) float64 {
			return base * math.Pow(h.LRGamma, float64(step))
		}, nil
	case SchedulerCosine:
		return cosineWithWarmup(base, h.LRMin, h.WarmupSteps, h.MaxSteps), nil
	default:
		return nil, runerr.Configuration("scheduler", "unknown scheduler %q", h.Scheduler)
	}
}

// cosineWithWarmup ramps linearly to base over warmup steps, then anneals to
// lrMin by maxSteps and stays there.
func cosineWithWarmup(base, lrMin float64, warmup, maxSteps int) LRFunc {
	return func(step int) float64 {
		if step < warmup {
			return base * float64(step+1) / float64(warmup)
		}
		span := maxSteps - warmup
		if span <= 0 {
			return lrMin
		}
		progress := math.Min(1, float64(step-warmup)/float64(span))
		return lrMin + 0.5*(base-lrMin)*(1+math.Cos(math.Pi*progress))
	}
}

// Name returns the schedule name.
func (s *Scheduler) Name() string {
	return s.name
}

// LR implements trainer.Scheduler.
func (s *Scheduler) LR() float64 {
	return s.fn(s.step)
}

// Step implements trainer.Scheduler.
func (s *Scheduler) Step() {
	s.step++
}

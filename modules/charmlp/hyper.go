package charmlp

import (
	"github.com/vk/lmrun/internal/config"
	"github.com/vk/lmrun/internal/runerr"
)

// Hyper holds the hyperparameters this module reads from a flat config.
type Hyper struct {
	VocabSize   int
	BlockSize   int
	ContextSize int
	NHidden     int

	LearningRate float64
	WeightDecay  float64
	Beta1        float64
	Beta2        float64
	GradClip     float64

	Scheduler   string
	WarmupSteps int
	LRMin       float64
	LRStepSize  int
	LRGamma     float64
	MaxSteps    int
}

// HyperFromParams reads and checks the hyperparameters.
func HyperFromParams(p *config.Params) (*Hyper, error) {
	h := &Hyper{}
	var err error
	ints := []struct {
		key string
		dst *int
		def int
		req bool
	}{
		{"vocab_size", &h.VocabSize, 0, true},
		{"block_size", &h.BlockSize, 0, true},
		{"max_steps", &h.MaxSteps, 0, true},
		{"context_size", &h.ContextSize, 3, false},
		{"n_hidden", &h.NHidden, 64, false},
		{"warmup_steps", &h.WarmupSteps, 0, false},
		{"lr_step_size", &h.LRStepSize, 100, false},
	}
	for _, f := range ints {
		if f.req {
			*f.dst, err = p.Int(f.key)
		} else {
			*f.dst, err = p.IntOr(f.key, f.def)
		}
		if err != nil {
			return nil, err
		}
	}
	floats := []struct {
		key string
		dst *float64
		def float64
	}{
		{"learning_rate", &h.LearningRate, 1e-3},
		{"weight_decay", &h.WeightDecay, 0},
		{"beta1", &h.Beta1, 0.9},
		{"beta2", &h.Beta2, 0.999},
		{"grad_clip", &h.GradClip, 0},
		{"lr_min", &h.LRMin, 0},
		{"lr_gamma", &h.LRGamma, 0.5},
	}
	for _, f := range floats {
		if *f.dst, err = p.FloatOr(f.key, f.def); err != nil {
			return nil, err
		}
	}
	if h.Scheduler, err = p.StringOr("scheduler", SchedulerConstant); err != nil {
		return nil, err
	}
	return h, h.validate()
}

func (h *Hyper) validate() error {
	for _, f := range []struct {
		key string
		v   int
	}{
		{"vocab_size", h.VocabSize},
		{"block_size", h.BlockSize},
		{"context_size", h.ContextSize},
		{"n_hidden", h.NHidden},
		{"lr_step_size", h.LRStepSize},
	} {
		if err := config.Positive(f.key, f.v); err != nil {
			return err
		}
	}
	switch {
	case h.LearningRate <= 0:
		return runerr.Configuration("char_mlp", "learning_rate must be positive, got %g", h.LearningRate)
	case h.WeightDecay < 0:
		return runerr.Configuration("char_mlp", "weight_decay must not be negative, got %g", h.WeightDecay)
	case h.Beta1 < 0 || h.Beta1 >= 1:
		return runerr.Configuration("char_mlp", "beta1 must be in [0, 1), got %g", h.Beta1)
	case h.Beta2 < 0 || h.Beta2 >= 1:
		return runerr.Configuration("char_mlp", "beta2 must be in [0, 1), got %g", h.Beta2)
	case h.GradClip < 0:
		return runerr.Configuration("char_mlp", "grad_clip must not be negative, got %g", h.GradClip)
	case h.WarmupSteps < 0:
		return runerr.Configuration("char_mlp", "warmup_steps must not be negative, got %d", h.WarmupSteps)
	case h.LRGamma <= 0:
		return runerr.Configuration("char_mlp", "lr_gamma must be positive, got %g", h.LRGamma)
	}
	return nil
}

// Package charmlp is the character-level MLP language model: a
// fully-connected network over a window of one-hot characters, trained with
// Adam and a configurable learning-rate schedule. It registers itself under
// the model name "char_mlp".
package charmlp

import (
	"context"

	"github.com/vk/lmrun/internal/checkpoint"
	"github.com/vk/lmrun/internal/config"
	"github.com/vk/lmrun/internal/ctxlog"
	"github.com/vk/lmrun/internal/pipeline"
	"github.com/vk/lmrun/internal/registry"
	"github.com/vk/lmrun/internal/rng"
	"github.com/vk/lmrun/internal/runerr"
	"github.com/vk/lmrun/internal/trainer"
)

// Name is the value of the `model` hyperparameter that selects this module.
const Name = "char_mlp"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the model builder.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterBuilder(Name, &Builder{})
}

// Builder implements pipeline.Builder.
type Builder struct{}

// SetupModel implements pipeline.Builder.
func (b *Builder) SetupModel(ctx context.Context, variable, fixed *config.Params, ckpt *checkpoint.Checkpoint, r *rng.Context) (trainer.Model, *config.Params, error) {
	logger := ctxlog.FromContext(ctx).With("model", Name)
	flat := config.Merge(variable, fixed)
	h, err := HyperFromParams(flat)
	if err != nil {
		return nil, nil, err
	}

	if ckpt == nil {
		m := NewModel(h.VocabSize, h.ContextSize, h.NHidden, r)
		logger.Debug("Initialized new model.", "params", m.NumParams())
		return m, flat, nil
	}

	if err := ckpt.Validate(); err != nil {
		return nil, nil, err
	}
	if len(ckpt.Vocab) > 0 && len(ckpt.Vocab) != h.VocabSize {
		return nil, nil, runerr.Configuration("restore model", "checkpoint vocabulary has %d characters, vocab_size is %d",
			len(ckpt.Vocab), h.VocabSize)
	}
	m, err := DecodeModel(ckpt.Model, h.VocabSize, h.ContextSize, h.NHidden)
	if err != nil {
		return nil, nil, err
	}
	flat.SetInt(pipeline.ResumeStepKey, ckpt.Step)
	logger.Info("Restored model from checkpoint.", "step", ckpt.Step, "params", m.NumParams())
	return m, flat, nil
}

// SetupTraining implements pipeline.Builder.
func (b *Builder) SetupTraining(ctx context.Context, model trainer.Model, flat *config.Params, ckpt *checkpoint.Checkpoint) (*pipeline.TrainingSetup, error) {
	m, ok := model.(*Model)
	if !ok {
		return nil, runerr.Configuration("setup training", "model %T was not built by %s", model, Name)
	}
	h, err := HyperFromParams(flat)
	if err != nil {
		return nil, err
	}

	opt := NewAdam(m.Parameters(), h)
	start := 0
	if ckpt != nil {
		start = ckpt.Step
		if ckpt.Optimizer != nil {
			if err := opt.Restore(ckpt.Optimizer); err != nil {
				return nil, err
			}
			if opt.Iteration() != ckpt.Step {
				ctxlog.FromContext(ctx).Warn("Optimizer state does not match checkpoint step.",
					"iteration", opt.Iteration(), "step", ckpt.Step)
			}
		}
	}
	sched, err := NewScheduler(h, start)
	if err != nil {
		return nil, err
	}

	ctxlog.FromContext(ctx).Debug("Training set up.", "optimizer", OptimizerType, "scheduler", sched.Name(), "start_step", start)
	return &pipeline.TrainingSetup{
		Optimizer: opt,
		Scheduler: sched,
		Step:      start,
		Info: map[string]any{
			"model":     Name,
			"params":    m.NumParams(),
			"optimizer": OptimizerType,
			"scheduler": sched.Name(),
		},
	}, nil
}

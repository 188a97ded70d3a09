package pipeline

import (
	"context"

	"github.com/vk/lmrun/internal/checkpoint"
	"github.com/vk/lmrun/internal/config"
	"github.com/vk/lmrun/internal/rng"
	"github.com/vk/lmrun/internal/trainer"
)

// ResumeStepKey is set in the flat config when a run resumes from a
// checkpoint.
const ResumeStepKey = "resume_step"

// TrainingSetup is what a Builder produces for the training loop.
type TrainingSetup struct {
	Optimizer trainer.Optimizer
	Scheduler trainer.Scheduler
	// Step is the number of already completed steps: 0 for a fresh run,
	// the checkpoint's step when resuming.
	Step int
	Info map[string]any
}

// Builder constructs a model family.
type Builder interface {
	// SetupModel merges variable over fixed (fixed wins), builds the model
	// and, when ckpt is non-nil, restores its parameters after checking
	// them against the flat config. It returns the model and the flat
	// config. All randomness comes from r.
	SetupModel(ctx context.Context, variable, fixed *config.Params, ckpt *checkpoint.Checkpoint, r *rng.Context) (trainer.Model, *config.Params, error)
	// SetupTraining builds the optimizer and scheduler for model,
	// restoring their state from ckpt when it is non-nil.
	SetupTraining(ctx context.Context, model trainer.Model, flat *config.Params, ckpt *checkpoint.Checkpoint) (*TrainingSetup, error)
}

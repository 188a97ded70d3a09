package trainer

import (
	"context"

	"github.com/unixpickle/anydiff"
	"github.com/vk/lmrun/internal/checkpoint"
	"github.com/vk/lmrun/internal/dataset"
)

// Weight is a read-only copy of one parameter tensor.
type Weight struct {
	Name   string
	Values []float64
}

// Model is a trainable language model.
type Model interface {
	// LossAndGrad returns the mean loss of batch and the gradient of that
	// loss with respect to every parameter.
	LossAndGrad(batch *dataset.Batch) (float64, anydiff.Grad, error)
	// Loss returns the mean loss of batch without computing gradients.
	Loss(batch *dataset.Batch) (float64, error)
	// Weights returns copies of the parameters. The model is not changed.
	Weights() []Weight
	// NumParams returns the number of scalar parameters.
	NumParams() int
	// MarshalBinary serializes the parameters for a checkpoint.
	MarshalBinary() ([]byte, error)
}

// Optimizer applies gradients to the model it was built for.
type Optimizer interface {
	Step(grad anydiff.Grad, lr float64) error
	State() *checkpoint.OptimizerState
}

// Scheduler yields the learning rate for the current step.
type Scheduler interface {
	LR() float64
	Step()
}

// Evaluator estimates the loss of model on a split without updating it.
type Evaluator interface {
	Evaluate(ctx context.Context, model Model, source dataset.BatchSource, split string) (float64, error)
}

// MetricSink receives the records of one step. Errors are reported by the
// loop and never stop training.
type MetricSink interface {
	Log(ctx context.Context, step int, metrics map[string]float64) error
}

// Checkpointer persists a snapshot of the loop.
type Checkpointer interface {
	Checkpoint(ctx context.Context, snap Snapshot) (string, error)
}

// Snapshot is what the loop hands to a Checkpointer.
type Snapshot struct {
	Step          int
	Model         Model
	Optimizer     Optimizer
	BestValidLoss float64
	BestStep      int
	HasBest       bool
	Reason        string
}

// State is the mutable training state owned by one Loop.
type State struct {
	Model     Model
	Optimizer Optimizer
	Scheduler Scheduler
	Step      int
	Info      map[string]any
}
